// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nm-connection-action/lib/clock"
	"github.com/bureau-foundation/nm-connection-action/lib/config"
	"github.com/bureau-foundation/nm-connection-action/lib/process"
	"github.com/bureau-foundation/nm-connection-action/lib/sysbus"
	"github.com/bureau-foundation/nm-connection-action/lib/version"
	"github.com/bureau-foundation/nm-connection-action/lib/watcher"
)

const binaryName = "nm-connection-action"

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// options holds the parsed command line.
type options struct {
	configPath      string
	logLevel        string
	logFormat       string
	propertyTimeout time.Duration
	shell           string
	completionQueue int
	adoptActive     bool
	lockFile        string
	showVersion     bool
	showHelp        bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "minimum log level: debug, info, warn or error")
	flagSet.StringVar(&opts.logFormat, "log-format", logFormatAuto, "log format: auto, text or json")
	flagSet.DurationVar(&opts.propertyTimeout, "property-timeout", watcher.DefaultPropertyTimeout, "timeout for each connection property read")
	flagSet.StringVar(&opts.shell, "shell", watcher.DefaultShell, "shell used to run scripts as <shell> -c <script>")
	flagSet.IntVar(&opts.completionQueue, "completion-queue", watcher.DefaultCompletionQueue, "capacity of the script completion queue")
	flagSet.BoolVar(&opts.adoptActive, "adopt-active", false, "run up-scripts for connections already active at startup")
	flagSet.StringVar(&opts.lockFile, "lock-file", "", "refuse to start if another instance holds this lock file")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.showHelp, "help", "h", false, "show help")
	return flagSet
}

// parseFlags parses args into options. Positional arguments are
// rejected.
func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	opts := &options{}
	flagSet := newFlagSet(opts)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.showHelp = true
			return opts, flagSet, nil
		}
		return nil, nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if opts.propertyTimeout <= 0 {
		return nil, nil, fmt.Errorf("--property-timeout must be positive, got %v", opts.propertyTimeout)
	}
	if opts.completionQueue <= 0 {
		return nil, nil, fmt.Errorf("--completion-queue must be positive, got %d", opts.completionQueue)
	}
	return opts, flagSet, nil
}

func run(args []string) error {
	opts, flagSet, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showHelp {
		printHelp(os.Stderr, flagSet)
		return nil
	}
	if opts.showVersion {
		version.Print(os.Stdout, binaryName)
		return nil
	}

	logger, err := newLogger(os.Stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}

	connections, err := config.Load(opts.configPath, os.Getenv)
	if err != nil {
		return err
	}

	if opts.lockFile != "" {
		lock, err := acquireLock(opts.lockFile)
		if err != nil {
			return err
		}
		defer lock.Unlock()
	}

	byUUID, byName := connections.Summary()
	logger.Info("loaded configuration",
		"path", connections.File(),
		"connections", connections.Len(),
		"by_uuid", byUUID,
		"by_name", byName,
		"version", version.Info(),
	)
	logger.Debug("configured connections", "keys", connections.Keys())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch(ctx, opts, connections, logger)
}

// watch connects to the system bus and runs the watcher until ctx is
// cancelled or the bus goes away.
func watch(ctx context.Context, opts *options, connections *config.Config, logger *slog.Logger) error {
	session, err := sysbus.Dial(ctx, logger.With("component", "sysbus"))
	if err != nil {
		return err
	}
	defer session.Close()

	w, err := watcher.New(watcher.Options{
		Bus:             session,
		Connections:     connections,
		PropertyTimeout: opts.propertyTimeout,
		Shell:           opts.shell,
		CompletionQueue: opts.completionQueue,
		AdoptActive:     opts.adoptActive,
		Clock:           clock.Real(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	if err := w.Run(ctx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// acquireLock takes an exclusive lock on path without blocking. The
// caller releases it with Unlock.
func acquireLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another %s instance holds %s", binaryName, path)
	}
	return lock, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `%s runs scripts when NetworkManager connections come up or go down.

Usage:
  %s [flags]

The configuration file is named by --config or $%s.

Example configuration (TOML):
  [connections.3f1f0a5e-8c1b-4a4e-9d1e-2c1a6a1e7b20]
  name = "Home"
  context = "default"
  up-script = "systemctl --user start home-mounts.target"
  down-script = "systemctl --user stop home-mounts.target"

Flags:
`, binaryName, binaryName, config.EnvironmentVariable)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
