// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"sort"
	"time"

	"github.com/godbus/dbus/v5"
)

// Identity is the stable identity of the settings profile behind an
// active connection.
type Identity struct {
	// ID is the human-readable connection name (the Id property).
	ID string

	// UUID is the connection profile UUID.
	UUID string
}

// ActiveEntry is one active connection as the tracker remembers it.
type ActiveEntry struct {
	Path     dbus.ObjectPath
	Identity Identity

	// Since is when the Up event was recorded.
	Since time.Time
}

// Tracker maps transient active-connection paths to the identity
// resolved when they came up. It is owned by the watcher loop and is
// not safe for concurrent use.
type Tracker struct {
	entries map[dbus.ObjectPath]ActiveEntry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[dbus.ObjectPath]ActiveEntry)}
}

// RecordUp records path as active with identity. If path is already
// active, the existing entry is kept and returned with inserted false:
// a path never has two entries, and a repeated Up is not a transition.
func (t *Tracker) RecordUp(path dbus.ObjectPath, identity Identity, now time.Time) (entry ActiveEntry, inserted bool) {
	if existing, ok := t.entries[path]; ok {
		return existing, false
	}
	entry = ActiveEntry{Path: path, Identity: identity, Since: now}
	t.entries[path] = entry
	return entry, true
}

// TakeDown removes path and returns its entry, if it was active.
func (t *Tracker) TakeDown(path dbus.ObjectPath) (ActiveEntry, bool) {
	entry, ok := t.entries[path]
	if ok {
		delete(t.entries, path)
	}
	return entry, ok
}

// Lookup returns the entry for path without removing it.
func (t *Tracker) Lookup(path dbus.ObjectPath) (ActiveEntry, bool) {
	entry, ok := t.entries[path]
	return entry, ok
}

// Len returns the number of active connections.
func (t *Tracker) Len() int { return len(t.entries) }

// Entries returns a snapshot of all active entries ordered by path.
func (t *Tracker) Entries() []ActiveEntry {
	entries := make([]ActiveEntry, 0, len(t.entries))
	for _, entry := range t.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}
