// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/bureau-foundation/nm-connection-action/lib/sysbus"
)

const (
	activePath1 = dbus.ObjectPath(ActiveConnectionPrefix + "1")
	activePath2 = dbus.ObjectPath(ActiveConnectionPrefix + "2")
	devicePath  = dbus.ObjectPath("/org/freedesktop/NetworkManager/Devices/3")
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// syncBuffer is a bytes.Buffer safe for a logger writing from the loop
// goroutine while the test reads.
type syncBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func addedSignal(path dbus.ObjectPath) *dbus.Signal {
	return &dbus.Signal{
		Sender: ":1.4",
		Path:   "/org/freedesktop",
		Name:   "org.freedesktop.DBus.ObjectManager.InterfacesAdded",
		Body: []interface{}{
			path,
			map[string]map[string]dbus.Variant{
				ActiveConnectionInterface: {"Id": dbus.MakeVariant("Home")},
			},
		},
	}
}

func removedSignal(path dbus.ObjectPath) *dbus.Signal {
	return &dbus.Signal{
		Sender: ":1.4",
		Path:   "/org/freedesktop",
		Name:   "org.freedesktop.DBus.ObjectManager.InterfacesRemoved",
		Body:   []interface{}{path, []string{ActiveConnectionInterface}},
	}
}

// fakeBus stands in for *sysbus.Session. Signal channels are
// unbuffered, so a completed send means the merger has taken the
// signal and every earlier signal has reached the loop.
type fakeBus struct {
	added   chan *dbus.Signal
	removed chan *dbus.Signal
	done    chan struct{}

	mu             sync.Mutex
	properties     map[dbus.ObjectPath]map[string]dbus.Variant
	slow           map[dbus.ObjectPath]bool
	reads          int
	subscribeErr   map[string]error
	unsubscribeErr map[string]error
	subscribed     []sysbus.Token
	unsubscribed   []sysbus.Token
	nextToken      uint64
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		added:          make(chan *dbus.Signal),
		removed:        make(chan *dbus.Signal),
		done:           make(chan struct{}),
		properties:     make(map[dbus.ObjectPath]map[string]dbus.Variant),
		slow:           make(map[dbus.ObjectPath]bool),
		subscribeErr:   make(map[string]error),
		unsubscribeErr: make(map[string]error),
	}
}

// connection publishes an active connection object with Id and Uuid.
func (b *fakeBus) connection(path dbus.ObjectPath, id, uuid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.properties[path] = map[string]dbus.Variant{
		"Id":   dbus.MakeVariant(id),
		"Uuid": dbus.MakeVariant(uuid),
	}
}

func (b *fakeBus) setProperty(path dbus.ObjectPath, property string, value dbus.Variant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.properties[path] == nil {
		b.properties[path] = make(map[string]dbus.Variant)
	}
	b.properties[path][property] = value
}

// vanish removes an object, as NetworkManager does on deactivation.
func (b *fakeBus) vanish(path dbus.ObjectPath) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.properties, path)
}

func (b *fakeBus) Subscribe(ctx context.Context, rule sysbus.MatchRule) (sysbus.Token, <-chan *dbus.Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.subscribeErr[rule.Member]; err != nil {
		return sysbus.Token{}, nil, err
	}
	b.nextToken++
	token := sysbus.Token{ID: b.nextToken, Rule: rule}
	b.subscribed = append(b.subscribed, token)
	switch rule {
	case InterfacesAddedRule:
		return token, b.added, nil
	case InterfacesRemovedRule:
		return token, b.removed, nil
	}
	return sysbus.Token{}, nil, fmt.Errorf("unexpected rule %s", rule)
}

func (b *fakeBus) Unsubscribe(ctx context.Context, token sysbus.Token) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribed = append(b.unsubscribed, token)
	return b.unsubscribeErr[token.Rule.Member]
}

func (b *fakeBus) ReadProperty(ctx context.Context, destination string, path dbus.ObjectPath, iface, property string, timeout time.Duration) (dbus.Variant, error) {
	b.mu.Lock()
	b.reads++
	slow := b.slow[path]
	value, found := b.properties[path][property]
	b.mu.Unlock()

	if slow {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		<-ctx.Done()
		return dbus.Variant{}, fmt.Errorf("reading %s.%s on %s: %w", iface, property, path, ctx.Err())
	}
	if !found {
		return dbus.Variant{}, dbus.Error{
			Name: "org.freedesktop.DBus.Error.UnknownObject",
			Body: []interface{}{fmt.Sprintf("no such object %s", path)},
		}
	}
	return value, nil
}

func (b *fakeBus) Done() <-chan struct{} { return b.done }

func (b *fakeBus) readCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

func (b *fakeBus) unsubscribedMembers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	members := make([]string, len(b.unsubscribed))
	for i, token := range b.unsubscribed {
		members[i] = token.Rule.Member
	}
	return members
}

func requireNoError(t *testing.T, err error, what string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}
