// Package assistant implements the LLM-backed operations of the browser
// extension: resume parsing, search queries, job analysis, cover letters and
// resume tailoring.
package assistant

import "fmt"

// OutputError means the model answered with something unusable. It is retried.
type OutputError struct {
	Message string
	// Raw is the model output; it is only populated when private data logging is on.
	Raw   string
	Cause error
}

func (e *OutputError) Error() string {
	msg := e.Message
	if e.Raw != "" {
		msg += " Response: " + e.Raw
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *OutputError) Unwrap() error {
	return e.Cause
}

// InvalidOutput keeps quoted model text out of rate-limit classification.
func (e *OutputError) InvalidOutput() bool {
	return true
}
