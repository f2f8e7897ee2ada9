// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Report writes "error: err" to w.
func Report(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run(), which may happen before the structured
// logger exists.
func Fatal(err error) {
	Report(os.Stderr, err)
	os.Exit(1)
}
