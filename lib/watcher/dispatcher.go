// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/bureau-foundation/nm-connection-action/lib/clock"
	"github.com/bureau-foundation/nm-connection-action/lib/config"
)

// DefaultShell runs every script as `<shell> -c <script>`.
const DefaultShell = "/bin/sh"

// Environment variables set for every script. Values come from the
// matched configuration entry, not from the live connection.
const (
	EnvConnectionName    = "CONNECTION_NAME"
	EnvConnectionContext = "CONNECTION_CONTEXT"
)

// Child is a started script, owned by the Supervisor until its
// completion has been observed.
type Child struct {
	Action Kind

	// Name and Key identify the configuration entry that was matched.
	Name string
	Key  string

	Script  string
	PID     int
	Started time.Time

	wait func() (ExitStatus, error)
}

// ExitStatus describes how a script ended.
type ExitStatus struct {
	// Code is the exit code, or -1 if the script was killed by a
	// signal or never reported a status.
	Code int

	// Signaled is true when the script was terminated by Signal.
	Signaled bool
	Signal   syscall.Signal
}

// Success reports a zero exit code.
func (s ExitStatus) Success() bool { return !s.Signaled && s.Code == 0 }

// Dispatcher starts the configured script for a connection event.
type Dispatcher struct {
	connections *config.Config
	shell       string
	stdout      io.Writer
	stderr      io.Writer
	clock       clock.Clock
	logger      *slog.Logger

	// start launches cmd. Defaults to (*exec.Cmd).Start; tests replace
	// it to capture the command without running it.
	start func(cmd *exec.Cmd) error
}

// NewDispatcher returns a Dispatcher for connections. Scripts inherit
// stdout and stderr; nil writers select the process's own streams.
func NewDispatcher(connections *config.Config, shell string, stdout, stderr io.Writer, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	if shell == "" {
		shell = DefaultShell
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Dispatcher{
		connections: connections,
		shell:       shell,
		stdout:      stdout,
		stderr:      stderr,
		clock:       clk,
		logger:      logger,
		start:       (*exec.Cmd).Start,
	}
}

// Dispatch starts the script for action on the connection with
// identity. The UUID is looked up first, then the name. A connection
// with no configuration, or a configuration with an empty script for
// this action, returns (nil, nil): unconfigured connections are the
// common case, not an error. A script that cannot be started returns a
// *SpawnError.
func (d *Dispatcher) Dispatch(action Kind, identity Identity) (*Child, error) {
	entry, key, ok := d.connections.Lookup(identity.UUID, identity.ID)
	if !ok {
		d.logger.Debug("no configuration for connection",
			"action", action.String(), "id", identity.ID, "uuid", identity.UUID)
		return nil, nil
	}

	script := entry.UpScript
	if action == Down {
		script = entry.DownScript
	}
	if script == "" {
		d.logger.Debug("no script configured for action",
			"action", action.String(), "name", entry.Name, "key", key)
		return nil, nil
	}

	cmd := exec.Command(d.shell, "-c", script)
	cmd.Env = append(os.Environ(),
		EnvConnectionName+"="+entry.Name,
		EnvConnectionContext+"="+entry.Context,
	)
	// A nil Stdin reads from the null device.
	cmd.Stdin = nil
	cmd.Stdout = d.stdout
	cmd.Stderr = d.stderr

	if err := d.start(cmd); err != nil {
		return nil, &SpawnError{Action: action, Name: entry.Name, Command: script, Err: err}
	}

	child := &Child{
		Action:  action,
		Name:    entry.Name,
		Key:     key,
		Script:  script,
		Started: d.clock.Now(),
		wait:    waitCommand(cmd),
	}
	if cmd.Process != nil {
		child.PID = cmd.Process.Pid
	}

	d.logger.Info("connection "+action.String(),
		"name", entry.Name, "context", entry.Context, "key", key, "pid", child.PID)
	return child, nil
}

// waitCommand adapts cmd.Wait to an ExitStatus. A non-zero exit or a
// signal is reported in the status, not as an error; the error is
// reserved for failures to wait at all.
func waitCommand(cmd *exec.Cmd) func() (ExitStatus, error) {
	return func() (ExitStatus, error) {
		err := cmd.Wait()
		state := cmd.ProcessState
		if state == nil {
			return ExitStatus{Code: -1}, err
		}
		if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return ExitStatus{Code: -1, Signaled: true, Signal: status.Signal()}, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = nil
		}
		return ExitStatus{Code: state.ExitCode()}, err
	}
}
