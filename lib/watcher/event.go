// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// Kind tags an Event as a connection becoming active or inactive.
type Kind int

const (
	Up Kind = iota + 1
	Down
)

func (k Kind) String() string {
	switch k {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// Event is one connection lifecycle change taken from the bus.
type Event struct {
	Kind Kind

	// Path is the transient active-connection object path.
	Path dbus.ObjectPath

	// Payload is the raw signal the event was derived from. Nil for
	// events synthesized at startup from already-active connections.
	Payload *dbus.Signal
}

// Merge fans in the InterfacesAdded (added) and InterfacesRemoved
// (removed) streams. Whichever source is ready first is forwarded
// first; nothing is reordered or batched. Signals whose subject path is
// outside prefix, or whose body does not start with an object path, are
// dropped without logging: the object manager announces every object
// NetworkManager exports, and almost none of them are active
// connections.
//
// The returned channel is closed once both inputs are closed, or when
// ctx is done.
func Merge(ctx context.Context, added, removed <-chan *dbus.Signal, prefix string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for added != nil || removed != nil {
			var (
				signal *dbus.Signal
				kind   Kind
				ok     bool
			)
			select {
			case <-ctx.Done():
				return
			case signal, ok = <-added:
				if !ok {
					added = nil
					continue
				}
				kind = Up
			case signal, ok = <-removed:
				if !ok {
					removed = nil
					continue
				}
				kind = Down
			}

			path, valid := subjectPath(signal)
			if !valid || !underPrefix(path, prefix) {
				continue
			}

			select {
			case out <- Event{Kind: kind, Path: path, Payload: signal}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// subjectPath extracts the object the signal is about. Both
// InterfacesAdded and InterfacesRemoved carry it as the first argument;
// the signal's own path is the object manager root.
func subjectPath(signal *dbus.Signal) (dbus.ObjectPath, bool) {
	if signal == nil || len(signal.Body) == 0 {
		return "", false
	}
	path, ok := signal.Body[0].(dbus.ObjectPath)
	return path, ok
}
