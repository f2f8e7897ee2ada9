// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the current time for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Since returns the time elapsed on clock since t.
func Since(clock Clock, t time.Time) time.Duration {
	return clock.Now().Sub(t)
}
