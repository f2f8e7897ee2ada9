// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysbus owns the process's single connection to the D-Bus
// system bus.
//
// A [Session] provides three operations:
//
//   - Subscribe installs a signal match rule on the bus daemon and
//     returns a [Token] plus a channel carrying only the signals that
//     match that rule.
//   - Unsubscribe removes the match rule and closes the channel.
//   - ReadProperty performs org.freedesktop.DBus.Properties.Get with a
//     per-call timeout. Calls are independent and may run concurrently.
//
// godbus delivers every signal the connection receives to every
// registered channel. The session registers a single channel and a
// router goroutine fans signals out to subscriptions by interface and
// member. Delivery blocks on a full subscription buffer rather than
// dropping, so per-subscription order is the bus arrival order.
//
// Losing the connection is not recoverable: [Session.Done] is closed,
// then every subscription channel is closed. Callers treat Done as
// fatal.
package sysbus
