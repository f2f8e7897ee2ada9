// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/nm-connection-action/lib/clock"
)

// DefaultCompletionQueue is the default capacity of the completion
// channel.
const DefaultCompletionQueue = 16

// Completion reports that a tracked script has exited.
type Completion struct {
	Child    *Child
	Status   ExitStatus
	Err      error
	Duration time.Duration
}

// Supervisor waits for scripts off the loop and feeds their completion
// back into it as a second event source.
//
// Each tracked child gets a waiter goroutine. Completions go through a
// bounded channel: when the loop falls behind, waiters block on the
// send, the loop never does. Pending and Observe are called only from
// the loop goroutine.
type Supervisor struct {
	completions chan Completion
	pending     int
	clock       clock.Clock
	logger      *slog.Logger
}

// NewSupervisor returns a Supervisor whose completion channel holds up
// to capacity unobserved completions. A non-positive capacity selects
// DefaultCompletionQueue.
func NewSupervisor(capacity int, clk clock.Clock, logger *slog.Logger) *Supervisor {
	if capacity <= 0 {
		capacity = DefaultCompletionQueue
	}
	return &Supervisor{
		completions: make(chan Completion, capacity),
		clock:       clk,
		logger:      logger,
	}
}

// Track takes ownership of child and waits for it in the background.
func (s *Supervisor) Track(child *Child) {
	s.pending++
	go func() {
		status, err := child.wait()
		s.completions <- Completion{
			Child:    child,
			Status:   status,
			Err:      err,
			Duration: clock.Since(s.clock, child.Started),
		}
	}()
}

// Completions delivers one Completion per tracked child.
func (s *Supervisor) Completions() <-chan Completion { return s.completions }

// Pending returns the number of tracked children whose completion has
// not yet been observed.
func (s *Supervisor) Pending() int { return s.pending }

// Observe records and logs a completion received from Completions.
// Failures are warnings only: a failing script has no effect on
// connection state.
func (s *Supervisor) Observe(completion Completion) {
	s.pending--

	child := completion.Child
	args := []any{
		"action", child.Action.String(),
		"name", child.Name,
		"pid", child.PID,
		"duration", completion.Duration,
	}

	switch {
	case completion.Err != nil:
		discard(s.logger, slog.LevelWarn, "waiting for script failed", completion.Err, args...)
	case completion.Status.Signaled:
		s.logger.Warn("script terminated by signal",
			append(args, "signal", unix.SignalName(completion.Status.Signal))...)
	case completion.Status.Code != 0:
		s.logger.Warn("script exited with non-zero status",
			append(args, "exit_code", completion.Status.Code)...)
	default:
		s.logger.Info("script finished", args...)
	}
}
