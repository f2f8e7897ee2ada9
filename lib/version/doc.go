// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of nm-connection-action is
// running. [Info] is logged once at startup and [Print] backs the
// --version flag.
//
// Release builds stamp the values with the linker:
//
//	go build -ldflags "-X github.com/bureau-foundation/nm-connection-action/lib/version.Version=1.2.0 \
//	  -X github.com/bureau-foundation/nm-connection-action/lib/version.GitCommit=$(git rev-parse --short HEAD)" \
//	  ./cmd/nm-connection-action
//
// Unstamped builds report "0.1.0-dev (unknown, unknown)".
package version
