// Package typeset drives external typesetting toolchains that turn markup documents into PDFs.
package typeset

import (
	"fmt"
	"time"
)

// Error represents a general typesetting failure, such as an unwritable directory.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("typeset error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("typeset error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// TimeoutError is returned when a toolchain process outlives its deadline and is killed.
type TimeoutError struct {
	Toolchain   string
	Timeout     time.Duration
	Diagnostics string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Toolchain, e.Timeout)
}

// CrashError is returned when a toolchain exits non-zero, cannot be started, or
// produces an artifact the pipeline refuses to accept.
type CrashError struct {
	Toolchain   string
	ExitCode    int
	Message     string
	Diagnostics string
	Cause       error
}

func (e *CrashError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed (exit %d): %s: %v", e.Toolchain, e.ExitCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s failed (exit %d): %s", e.Toolchain, e.ExitCode, e.Message)
}

func (e *CrashError) Unwrap() error {
	return e.Cause
}

// MissingArtifactError is returned when a toolchain reports success but the
// expected output file is absent or empty.
type MissingArtifactError struct {
	Toolchain   string
	Artifact    string
	Diagnostics string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("%s exited successfully but %s was not produced", e.Toolchain, e.Artifact)
}
