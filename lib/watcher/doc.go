// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watcher runs user scripts when NetworkManager connections
// become active or inactive.
//
// The pipeline, leaves first:
//
//   - [Merge] combines the InterfacesAdded and InterfacesRemoved signal
//     streams into one ordered stream of [Event] values, dropping
//     everything outside the active-connection namespace.
//   - [Resolver] reads the stable Id and Uuid of an active connection
//     object. Failures drop the event.
//   - [Tracker] maps each active-connection object path to the identity
//     resolved when it came up.
//   - [Dispatcher] looks the identity up in the configuration and starts
//     the configured script through the shell.
//   - [Supervisor] waits for scripts in the background and hands their
//     completion back to the loop.
//
// [Watcher.Run] is the single consumer loop. It alone touches the
// tracker, so neither the tracker nor the configuration is locked.
// Scripts run in parallel with the loop; a slow script never delays the
// next bus event.
//
// Per object path the state machine is Unknown -> Active -> Unknown. An
// Up event whose identity cannot be read leaves the path Unknown. A
// repeated Up for an already Active path is ignored, so the up-script
// runs once per real transition. A Down for an Unknown path does
// nothing. The down-script is chosen with the identity cached at Up
// time, since the bus object is usually gone by then.
package watcher
