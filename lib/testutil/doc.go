// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireSend], [RequireNoReceive], and
// [RequireClosed] encapsulate
// the timeout safety valve pattern (select with a wall-clock fallback)
// so that individual tests do not need direct time.After calls. A test
// waiting on a watcher goroutine that never delivers fails with a
// message instead of hanging the package.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
