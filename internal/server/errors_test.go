package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/resume-render-api/internal/assistant"
	"github.com/jonathan/resume-render-api/internal/ingestion"
	"github.com/jonathan/resume-render-api/internal/llm"
	"github.com/jonathan/resume-render-api/internal/pipeline"
)

func TestErrInvalidCredentials(t *testing.T) {
	err := &ErrInvalidCredentials{}
	assert.Equal(t, "Invalid client secret", err.Error())
}

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "filename", Message: "Missing filename"}
	assert.Equal(t, "validation error: filename - Missing filename", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "validation",
			err:     &ErrValidation{Field: "resume_content", Message: "Missing 'resume_content'"},
			status:  http.StatusBadRequest,
			message: "Missing 'resume_content'",
		},
		{
			name:    "invalid credentials",
			err:     &ErrInvalidCredentials{},
			status:  http.StatusUnauthorized,
			message: "Invalid client secret",
		},
		{
			name:    "invalid resume schema",
			err:     &pipeline.Error{Kind: pipeline.KindInvalidResumeSchema, Message: "resume has no content"},
			status:  http.StatusBadRequest,
			message: "resume has no content",
		},
		{
			name: "toolchain crash hides diagnostics",
			err: &pipeline.Error{
				Kind:        pipeline.KindToolchainCrash,
				Message:     "document rendering failed",
				Diagnostics: "! Undefined control sequence at /tmp/render-x/resume.tex",
			},
			status:  http.StatusInternalServerError,
			message: "document rendering failed",
		},
		{
			name:    "wrapped toolchain timeout",
			err:     fmt.Errorf("tailor: %w", &pipeline.Error{Kind: pipeline.KindToolchainTimeout, Message: "document rendering timed out"}),
			status:  http.StatusInternalServerError,
			message: "document rendering timed out",
		},
		{
			name:    "bad pdf upload",
			err:     &ingestion.InputError{Message: "resume PDF could not be read"},
			status:  http.StatusBadRequest,
			message: "resume PDF could not be read",
		},
		{
			name:    "blocked response",
			err:     llm.Permanent(&llm.BlockedError{Reason: "FinishReasonSafety"}),
			status:  http.StatusInternalServerError,
			message: "response blocked by the model: FinishReasonSafety",
		},
		{
			name:    "upstream rate limit",
			err:     &llm.UpstreamError{Status: http.StatusTooManyRequests, Message: llm.MsgRateLimited},
			status:  http.StatusTooManyRequests,
			message: "Rate limit exceeded. Please try again later.",
		},
		{
			name:    "upstream unavailable",
			err:     &llm.UpstreamError{Status: http.StatusServiceUnavailable, Message: llm.MsgUnavailable},
			status:  http.StatusServiceUnavailable,
			message: "Service temporarily unavailable. Please try again later.",
		},
		{
			name:    "no api key",
			err:     llm.ErrNoAPIKey,
			status:  http.StatusInternalServerError,
			message: "No Gemini API key provided. Please provide one.",
		},
		{
			name:    "unusable model output",
			err:     &assistant.OutputError{Message: "LLM output is empty."},
			status:  http.StatusInternalServerError,
			message: "LLM output is empty.",
		},
		{
			name:    "unknown",
			err:     errors.New("open /etc/secret: permission denied"),
			status:  http.StatusInternalServerError,
			message: msgInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.message, ErrorMessage(tt.err))
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ArtifactMissing", errorKind(&pipeline.Error{Kind: pipeline.KindArtifactMissing}))
	assert.Empty(t, errorKind(&ErrValidation{}))
}
