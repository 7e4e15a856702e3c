// Package rendering turns resume records into markup documents for the typesetting toolchains.
package rendering

import "fmt"

// TemplateError represents an error parsing or executing a markup template
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("template error: %s", e.Message)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// SchemaError reports a resume record that lacks the sections needed to render anything.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid resume: %s", e.Message)
}

// StyleError reports a style option outside its allow-list.
type StyleError struct {
	Option string
	Value  string
}

func (e *StyleError) Error() string {
	return fmt.Sprintf("unsupported %s %q", e.Option, e.Value)
}
