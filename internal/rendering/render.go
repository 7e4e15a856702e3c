package rendering

import (
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/jonathan/resume-render-api/internal/types"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// MarkupDocument is a rendered intermediate document ready for a typesetter.
type MarkupDocument struct {
	Format    Format
	Content   string
	InputName string // file name the typesetter writes Content to
}

type formatSpec struct {
	ext       string
	inputName string
	builder   viewBuilder
}

var formats = map[Format]formatSpec{
	FormatLaTeX: {
		ext:       "tex",
		inputName: "resume.tex",
		builder:   viewBuilder{escape: EscapeLaTeX, dateSep: " -- "},
	},
	FormatMarkdown: {
		ext:       "md",
		inputName: "resume.md",
		builder:   viewBuilder{escape: EscapeMarkdown, dateSep: " -- "},
	},
	FormatHTML: {
		ext:       "html",
		inputName: "resume.html",
		builder:   viewBuilder{escape: plainText, dateSep: " – "},
	},
}

type executor interface {
	Execute(w io.Writer, data any) error
}

// Renderer renders resume records with a fixed set of parsed templates.
// It holds no mutable state and is safe for concurrent use.
type Renderer struct {
	templates map[string]executor
}

// NewRenderer parses the embedded templates. When overrideDir is non-empty, a file
// named <theme>.<ext>.tmpl in it replaces the embedded template of the same name.
func NewRenderer(overrideDir string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]executor)}

	for format, names := range themes {
		spec := formats[format]
		for _, theme := range names {
			name := templateName(theme, spec.ext)
			content, err := loadTemplate(overrideDir, name)
			if err != nil {
				return nil, err
			}
			tmpl, err := parseTemplate(format, name, content)
			if err != nil {
				return nil, err
			}
			r.templates[name] = tmpl
		}
	}

	return r, nil
}

// Render produces the markup document for record in the given style.
// It returns *StyleError for options outside the allow-lists and *SchemaError
// when the record has no renderable content.
func (r *Renderer) Render(record *types.ResumeRecord, style StyleOptions) (*MarkupDocument, error) {
	style, err := style.Normalize()
	if err != nil {
		return nil, err
	}

	if !record.HasContent() {
		return nil, &SchemaError{Message: "resume must contain at least one non-empty section"}
	}

	spec := formats[style.Format]
	tmpl, ok := r.templates[templateName(style.Theme, spec.ext)]
	if !ok {
		return nil, &StyleError{Option: "theme", Value: style.Theme}
	}

	view := spec.builder.build(record, style)

	var result strings.Builder
	if err := tmpl.Execute(&result, view); err != nil {
		return nil, &TemplateError{
			Message: "failed to execute template",
			Cause:   err,
		}
	}

	return &MarkupDocument{
		Format:    style.Format,
		Content:   result.String(),
		InputName: spec.inputName,
	}, nil
}

func templateName(theme, ext string) string {
	return fmt.Sprintf("%s.%s.tmpl", theme, ext)
}

func loadTemplate(overrideDir, name string) (string, error) {
	if overrideDir != "" {
		path := filepath.Join(overrideDir, name)
		content, err := os.ReadFile(path)
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", &TemplateError{
				Message: fmt.Sprintf("failed to read template file: %s", path),
				Cause:   err,
			}
		}
	}

	content, err := embeddedTemplates.ReadFile("templates/" + name)
	if err != nil {
		return "", &TemplateError{
			Message: fmt.Sprintf("template not found: %s", name),
			Cause:   err,
		}
	}
	return string(content), nil
}

// parseTemplate parses a template for format. LaTeX templates use << >> delimiters
// because braces are everywhere in LaTeX source; HTML goes through html/template.
func parseTemplate(format Format, name, content string) (executor, error) {
	var (
		tmpl executor
		err  error
	)

	switch format {
	case FormatHTML:
		tmpl, err = htmltemplate.New(name).Funcs(htmltemplate.FuncMap{
			"join": strings.Join,
		}).Parse(content)
	case FormatLaTeX:
		tmpl, err = template.New(name).Delims("<<", ">>").Funcs(template.FuncMap{
			"join": strings.Join,
		}).Parse(content)
	default:
		tmpl, err = template.New(name).Funcs(template.FuncMap{
			"join": strings.Join,
		}).Parse(content)
	}
	if err != nil {
		return nil, &TemplateError{
			Message: fmt.Sprintf("failed to parse template %s", name),
			Cause:   err,
		}
	}
	return tmpl, nil
}
