// Package server provides the HTTP REST API consumed by the browser extension.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/resume-render-api/internal/assistant"
	"github.com/jonathan/resume-render-api/internal/ingestion"
	"github.com/jonathan/resume-render-api/internal/llm"
	"github.com/jonathan/resume-render-api/internal/pipeline"
)

// Caller-facing messages.
const (
	msgInvalidSecret = "Invalid client secret"
	msgNoAPIKey      = "No Gemini API key provided. Please provide one."
	msgInternal      = "An internal error occurred. Please try again later."
)

// ErrInvalidCredentials indicates the client secret did not match
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return msgInvalidSecret
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr  *ErrValidation
		credentialsErr *ErrInvalidCredentials
		pipelineErr    *pipeline.Error
		inputErr       *ingestion.InputError
		upstreamErr    *llm.UpstreamError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &credentialsErr):
		return http.StatusUnauthorized
	case errors.As(err, &pipelineErr):
		if pipelineErr.Kind.IsClientError() {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case errors.As(err, &upstreamErr):
		if upstreamErr.Status >= 400 {
			return upstreamErr.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorMessage returns the message shown to callers for err. Internal details
// such as toolchain diagnostics and file paths never reach it.
func ErrorMessage(err error) string {
	var (
		validationErr  *ErrValidation
		credentialsErr *ErrInvalidCredentials
		pipelineErr    *pipeline.Error
		inputErr       *ingestion.InputError
		upstreamErr    *llm.UpstreamError
		outputErr      *assistant.OutputError
		blockedErr     *llm.BlockedError
	)

	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.As(err, &credentialsErr):
		return msgInvalidSecret
	case errors.As(err, &pipelineErr):
		return pipelineErr.Message
	case errors.As(err, &inputErr):
		return inputErr.Message
	case errors.Is(err, llm.ErrNoAPIKey):
		return msgNoAPIKey
	case errors.As(err, &upstreamErr):
		return upstreamErr.Message
	case errors.As(err, &outputErr):
		return outputErr.Error()
	case errors.As(err, &blockedErr):
		return blockedErr.Error()
	default:
		return msgInternal
	}
}

// errorKind returns the pipeline failure kind of err, if any.
func errorKind(err error) string {
	var pipelineErr *pipeline.Error
	if errors.As(err, &pipelineErr) {
		return string(pipelineErr.Kind)
	}
	return ""
}
