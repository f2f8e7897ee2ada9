// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint error handler.
//
// Errors that reach main() are reported with a plain "error: ..." line
// on stderr rather than through the structured logger, because the most
// common fatal errors (no config path, unreadable config, bad flags)
// happen before the logger is configured.
package process
