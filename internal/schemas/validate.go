// Package schemas provides JSON Schema validation functionality for structured data artifacts.
package schemas

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed resume.schema.json
var resumeSchema string

var (
	resumeSchemaOnce     sync.Once
	resumeSchemaCompiled *gojsonschema.Schema
	resumeSchemaErr      error
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Summary returns the field errors on a single line, suitable for API responses.
func (ve *ValidationError) Summary() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, err := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(parts, "; ")
}

// ValidateResume validates a resume document against the embedded resume schema.
func ValidateResume(data []byte) error {
	if !json.Valid(data) {
		return &ValidationError{
			Errors: []FieldError{{Field: "(root)", Message: "resume is not valid JSON"}},
		}
	}

	schema, err := compiledResumeSchema()
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &SchemaLoadError{
			Path:    "resume.schema.json",
			Message: "document could not be loaded",
			Cause:   err,
		}
	}
	return toValidationError(result)
}

func compiledResumeSchema() (*gojsonschema.Schema, error) {
	resumeSchemaOnce.Do(func() {
		resumeSchemaCompiled, resumeSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(resumeSchema))
		if resumeSchemaErr != nil {
			resumeSchemaErr = &SchemaLoadError{
				Path:    "resume.schema.json",
				Message: "embedded schema is invalid",
				Cause:   resumeSchemaErr,
			}
		}
	})
	return resumeSchemaCompiled, resumeSchemaErr
}

func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}

	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
