// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the connection action table: which scripts to
// run when a NetworkManager connection comes up or goes down.
//
// The configuration file is located by exactly one of:
//   - the --config flag passed to the binary, or
//   - the NM_DBUS_CONNECTION_ACTION_CONFIG environment variable.
//
// There is no discovery and no default path. If neither is set, loading
// fails and the binary exits non-zero.
//
// The file has a single top-level table, connections, keyed by either
// a connection UUID or a connection name (as shown by `nmcli c`):
//
//	[connections.3f1f0a5e-8c1b-4a4e-9d1e-2c1a6a1e7b20]
//	name = "Home"
//	context = "default"
//	up-script = "systemctl --user start home-mounts.target"
//	down-script = "systemctl --user stop home-mounts.target"
//
// The connections table is required, and every entry needs a name and
// a context. Either script may be omitted; an omitted script means
// nothing runs for that transition.
//
// TOML is the primary format. Files ending in .yaml or .yml are parsed
// as YAML, and files ending in .json or .jsonc as JSON with comments.
// The schema is identical across formats.
//
// A loaded [Config] is read-only. Keys that parse as UUIDs are stored in
// canonical lowercase form so that [Config.Lookup] matches the UUID
// strings NetworkManager publishes regardless of how the user typed them.
package config
