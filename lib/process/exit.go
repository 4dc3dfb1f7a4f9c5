// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for startup configuration errors from run() where the
// structured logger may not be initialized yet.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// Usage writes "error: err" to stderr and exits with code 2, the
// conventional exit code for CLI usage errors (bad flags, missing
// required arguments).
func Usage(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(2)
}
