// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// ErrBusSessionLost is returned by Run when the system bus connection
// goes away. No further events can arrive, so the process must exit.
var ErrBusSessionLost = errors.New("system bus connection lost")

// ResolveError reports that an active connection's identity could not
// be read. The Up event is dropped; this is routine when a connection
// flaps faster than its properties can be read.
type ResolveError struct {
	Path dbus.ObjectPath
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving %s: %v", e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// SpawnError reports that a script could not be started.
type SpawnError struct {
	Action  Kind
	Name    string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting %s script for %s: %v", e.Action, e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// UnsubscribeError reports match rules that could not be removed during
// teardown. Err joins every failure; both removals are always attempted.
type UnsubscribeError struct {
	Err error
}

func (e *UnsubscribeError) Error() string {
	return fmt.Sprintf("tearing down signal subscriptions: %v", e.Err)
}

func (e *UnsubscribeError) Unwrap() error { return e.Err }

// discard logs a per-event failure and drops it. Every soft-failure
// boundary in the loop goes through here; nothing logged here stops
// the watcher.
func discard(logger *slog.Logger, level slog.Level, message string, err error, args ...any) {
	logger.Log(context.Background(), level, message, append(args, "error", err)...)
}
