// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sysbus

import (
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
)

// ErrClosed is returned when subscribing on a session whose connection
// has already gone away.
var ErrClosed = errors.New("sysbus: session closed")

// subscriptionBuffer is the per-subscription channel capacity. Bursts
// larger than this stall the router until the consumer catches up.
const subscriptionBuffer = 64

type subscription struct {
	rule    MatchRule
	signals chan *dbus.Signal

	// mu serializes sends with the close of signals. A send may block
	// while holding mu; closing detached releases it.
	mu       sync.Mutex
	closed   bool
	detached chan struct{}
	once     sync.Once
}

// send delivers signal unless the subscription is closed or detached
// first.
func (s *subscription) send(signal *dbus.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.signals <- signal:
	case <-s.detached:
	}
}

// close detaches the subscription and closes its stream. Safe to call
// more than once.
func (s *subscription) close() {
	s.once.Do(func() { close(s.detached) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.signals)
	}
}

// router fans signals from one godbus channel out to subscriptions.
// mu guards the subscription table only; it is never held across a
// send.
type router struct {
	mu            sync.Mutex
	subscriptions map[uint64]*subscription
	nextID        uint64
	closed        bool

	lost     chan struct{}
	lostOnce sync.Once
}

func newRouter() *router {
	return &router{
		subscriptions: make(map[uint64]*subscription),
		lost:          make(chan struct{}),
	}
}

// add registers a subscription and returns its id and stream.
func (r *router) add(rule MatchRule) (uint64, <-chan *dbus.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, nil, ErrClosed
	}

	r.nextID++
	sub := &subscription{
		rule:     rule,
		signals:  make(chan *dbus.Signal, subscriptionBuffer),
		detached: make(chan struct{}),
	}
	r.subscriptions[r.nextID] = sub
	return r.nextID, sub.signals, nil
}

// remove closes a subscription. Returns false if id is unknown
// (already removed, or closed by shutdown).
func (r *router) remove(id uint64) bool {
	r.mu.Lock()
	sub, ok := r.subscriptions[id]
	delete(r.subscriptions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	sub.close()
	return true
}

// run delivers signals from in until in is closed or connectionDone
// fires, then shuts down.
func (r *router) run(in <-chan *dbus.Signal, connectionDone <-chan struct{}) {
	defer r.shutdown()
	for {
		select {
		case signal, ok := <-in:
			if !ok {
				return
			}
			r.deliver(signal)
		case <-connectionDone:
			return
		}
	}
}

// deliver sends signal to every matching subscription in subscription
// order, so two subscriptions on the same rule see the same sequence.
func (r *router) deliver(signal *dbus.Signal) {
	r.mu.Lock()
	var targets []*subscription
	for id := uint64(1); id <= r.nextID; id++ {
		if sub, ok := r.subscriptions[id]; ok && sub.rule.Matches(signal) {
			targets = append(targets, sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range targets {
		sub.send(signal)
	}
}

// shutdown marks the session lost, then closes every subscription.
// Done is closed first so consumers observing a closed stream can tell
// a lost connection from an orderly unsubscribe.
func (r *router) shutdown() {
	r.lostOnce.Do(func() { close(r.lost) })

	r.mu.Lock()
	r.closed = true
	subscriptions := r.subscriptions
	r.subscriptions = make(map[uint64]*subscription)
	r.mu.Unlock()

	for _, sub := range subscriptions {
		sub.close()
	}
}
