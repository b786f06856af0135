// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError requests a specific exit code without an extra "error:"
// line; the command has already reported the outcome itself. 
// "propscan pending --check" uses it to exit 1 when work is left.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the requested exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
