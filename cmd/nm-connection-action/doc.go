// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// nm-connection-action runs user scripts when NetworkManager
// connections come up or go down.
//
// It connects to the system bus, watches the object manager for active
// connection objects appearing and disappearing, reads each new
// connection's Id and Uuid, and runs the matching up-script or
// down-script from the configuration file through /bin/sh. Scripts see
// CONNECTION_NAME and CONNECTION_CONTEXT in their environment. Script
// failures are logged and never stop the watcher.
//
// The configuration file is named by -c/--config or, failing that, by
// NM_DBUS_CONNECTION_ACTION_CONFIG:
//
//	nm-connection-action --config ~/.config/nm-connection-action.toml
//
// SIGINT and SIGTERM stop the watcher cleanly: both match rules are
// removed from the bus and the process exits 0. Losing the bus
// connection, failing to load the configuration, or failing to remove a
// match rule exits 1.
package main
