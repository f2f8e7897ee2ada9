// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sysbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

// propertiesGet is the standard property accessor method.
const propertiesGet = "org.freedesktop.DBus.Properties.Get"

// signalBuffer is the capacity of the channel registered with godbus.
const signalBuffer = 64

// Session is a connection to the system bus shared by the watcher's
// subscriptions and property reads.
type Session struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	router  *router
	logger  *slog.Logger
}

// Dial connects to the system bus and starts signal routing.
//
// ctx bounds only the handshake. The connection outlives it so that
// match rules can still be removed after the caller's context is
// cancelled.
func Dial(ctx context.Context, logger *slog.Logger) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	type result struct {
		conn *dbus.Conn
		err  error
	}
	connected := make(chan result, 1)
	go func() {
		conn, err := dbus.ConnectSystemBus()
		connected <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if late := <-connected; late.conn != nil {
				late.conn.Close()
			}
		}()
		return nil, fmt.Errorf("connecting to system bus: %w", ctx.Err())
	case dialed := <-connected:
		if dialed.err != nil {
			return nil, fmt.Errorf("connecting to system bus: %w", dialed.err)
		}
		return newSession(dialed.conn, logger), nil
	}
}

func newSession(conn *dbus.Conn, logger *slog.Logger) *Session {
	session := &Session{
		conn:    conn,
		signals: make(chan *dbus.Signal, signalBuffer),
		router:  newRouter(),
		logger:  logger,
	}
	conn.Signal(session.signals)
	go session.router.run(session.signals, conn.Context().Done())
	return session
}

// Subscribe installs rule on the bus and returns a token and the stream
// of matching signals. The stream is closed by Unsubscribe or when the
// connection is lost.
func (s *Session) Subscribe(ctx context.Context, rule MatchRule) (Token, <-chan *dbus.Signal, error) {
	// Register locally first so no signal that matches is missed
	// between the bus accepting the rule and the router knowing about it.
	id, stream, err := s.router.add(rule)
	if err != nil {
		return Token{}, nil, err
	}

	if err := s.conn.AddMatchSignalContext(ctx, rule.options()...); err != nil {
		s.router.remove(id)
		return Token{}, nil, fmt.Errorf("adding match %s: %w", rule, err)
	}

	s.logger.Debug("subscribed", "rule", rule.String(), "token", id)
	return Token{ID: id, Rule: rule}, stream, nil
}

// Unsubscribe removes the match rule for token from the bus and closes
// its stream.
func (s *Session) Unsubscribe(ctx context.Context, token Token) error {
	if !s.router.remove(token.ID) {
		return fmt.Errorf("unsubscribing %s: unknown or already closed subscription %d", token.Rule, token.ID)
	}
	if err := s.conn.RemoveMatchSignalContext(ctx, token.Rule.options()...); err != nil {
		return fmt.Errorf("removing match %s: %w", token.Rule, err)
	}
	s.logger.Debug("unsubscribed", "rule", token.Rule.String(), "token", token.ID)
	return nil
}

// ReadProperty reads iface.property from the object at path owned by
// destination. A positive timeout bounds the call; a vanished object,
// missing property, or expired timeout is returned as an error.
func (s *Session) ReadProperty(ctx context.Context, destination string, path dbus.ObjectPath, iface, property string, timeout time.Duration) (dbus.Variant, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var value dbus.Variant
	call := s.conn.Object(destination, path).CallWithContext(ctx, propertiesGet, 0, iface, property)
	if err := call.Store(&value); err != nil {
		return dbus.Variant{}, fmt.Errorf("reading %s.%s on %s: %w", iface, property, path, err)
	}
	return value, nil
}

// Done is closed when the bus connection is gone, whether lost or
// closed by Close.
func (s *Session) Done() <-chan struct{} {
	return s.router.lost
}

// Close closes the bus connection. Every subscription stream is closed.
func (s *Session) Close() error {
	return s.conn.Close()
}
