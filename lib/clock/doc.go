// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code takes a Clock instead of calling time.Now directly,
// so that recorded timestamps (when a connection became active, how
// long a script ran) are deterministic under test:
//
//	type Supervisor struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production pass Real(). In tests pass Fake(epoch) and move time
// forward explicitly with Advance.
package clock
