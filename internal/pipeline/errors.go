package pipeline

import (
	"errors"
	"fmt"

	"github.com/jonathan/resume-render-api/internal/rendering"
	"github.com/jonathan/resume-render-api/internal/schemas"
	"github.com/jonathan/resume-render-api/internal/typeset"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindInvalidRequest      Kind = "InvalidRequest"
	KindInvalidResumeSchema Kind = "InvalidResumeSchema"
	KindToolchainTimeout    Kind = "ToolchainTimeout"
	KindToolchainCrash      Kind = "ToolchainCrash"
	KindArtifactMissing     Kind = "ArtifactMissing"
)

// IsClientError reports whether the failure was caused by the request itself.
func (k Kind) IsClientError() bool {
	return k == KindInvalidRequest || k == KindInvalidResumeSchema
}

// Error is the only error type returned by Orchestrator.Run.
// Message is safe to show to callers; Diagnostics and Cause are for logs only.
type Error struct {
	Kind        Kind
	Message     string
	Diagnostics string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Generic caller-facing messages for server-side failures.
const (
	msgTimeout  = "document rendering timed out"
	msgCrash    = "document rendering failed"
	msgMissing  = "document rendering produced no output"
	msgInternal = "document rendering failed due to an internal error"
)

// classify converts a renderer or typesetter error into a pipeline Error.
func classify(err error) *Error {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr
	}

	var (
		validationErr *schemas.ValidationError
		schemaErr     *rendering.SchemaError
		styleErr      *rendering.StyleError
		timeoutErr    *typeset.TimeoutError
		crashErr      *typeset.CrashError
		missingErr    *typeset.MissingArtifactError
	)

	switch {
	case errors.As(err, &validationErr):
		return &Error{Kind: KindInvalidResumeSchema, Message: "resume does not match the schema: " + validationErr.Summary(), Cause: err}
	case errors.As(err, &schemaErr):
		return &Error{Kind: KindInvalidResumeSchema, Message: schemaErr.Error(), Cause: err}
	case errors.As(err, &styleErr):
		return &Error{Kind: KindInvalidRequest, Message: "invalid style: " + styleErr.Error(), Cause: err}
	case errors.As(err, &timeoutErr):
		return &Error{Kind: KindToolchainTimeout, Message: msgTimeout, Diagnostics: timeoutErr.Diagnostics, Cause: err}
	case errors.As(err, &crashErr):
		return &Error{Kind: KindToolchainCrash, Message: msgCrash, Diagnostics: crashErr.Diagnostics, Cause: err}
	case errors.As(err, &missingErr):
		return &Error{Kind: KindArtifactMissing, Message: msgMissing, Diagnostics: missingErr.Diagnostics, Cause: err}
	default:
		return &Error{Kind: KindToolchainCrash, Message: msgInternal, Cause: err}
	}
}
