package rendering

import (
	"path/filepath"
	"strings"
)

// Format identifies the markup syntax a document is rendered in.
type Format string

const (
	FormatLaTeX    Format = "latex"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

const (
	ThemeClassic = "classic"
	ThemeCompact = "compact"

	DefaultFontSize = "11pt"
	DefaultPaper    = "letter"
	DefaultFilename = "resume.pdf"

	maxFilenameLength = 100
)

// themes lists the templates available per format.
var themes = map[Format][]string{
	FormatLaTeX:    {ThemeClassic, ThemeCompact},
	FormatMarkdown: {ThemeClassic},
	FormatHTML:     {ThemeClassic},
}

// themeAliases maps rendercv theme names sent by older extension builds onto local themes.
var themeAliases = map[string]string{
	"engineeringclassic": ThemeClassic,
	"engineeringresumes": ThemeClassic,
	"sb2nov":             ThemeClassic,
	"moderncv":           ThemeClassic,
	"classic":            ThemeClassic,
	"compact":            ThemeCompact,
}

var (
	fontSizes = []string{"10pt", "11pt", "12pt"}
	papers    = []string{"a4", "letter"}
)

// StyleOptions selects how a resume is laid out. Every value flows into markup,
// so Normalize must accept it before rendering.
type StyleOptions struct {
	Format   Format `json:"format,omitempty" yaml:"format,omitempty"`
	Theme    string `json:"theme,omitempty" yaml:"theme,omitempty"`
	FontSize string `json:"font_size,omitempty" yaml:"font_size,omitempty"`
	Paper    string `json:"paper,omitempty" yaml:"paper,omitempty"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
}

// Normalize fills defaults and checks every option against its allow-list.
// The returned options are safe to interpolate into any template.
func (s StyleOptions) Normalize() (StyleOptions, error) {
	out := StyleOptions{
		Format:   Format(strings.ToLower(strings.TrimSpace(string(s.Format)))),
		Theme:    strings.ToLower(strings.TrimSpace(s.Theme)),
		FontSize: strings.ToLower(strings.TrimSpace(s.FontSize)),
		Paper:    strings.ToLower(strings.TrimSpace(s.Paper)),
	}

	if out.Format == "" {
		out.Format = FormatLaTeX
	}
	available, ok := themes[out.Format]
	if !ok {
		return StyleOptions{}, &StyleError{Option: "format", Value: string(s.Format)}
	}

	if out.Theme == "" {
		out.Theme = ThemeClassic
	}
	if alias, ok := themeAliases[out.Theme]; ok {
		out.Theme = alias
	}
	if !contains(available, out.Theme) {
		return StyleOptions{}, &StyleError{Option: "theme", Value: s.Theme}
	}

	if out.FontSize == "" {
		out.FontSize = DefaultFontSize
	}
	if !contains(fontSizes, out.FontSize) {
		return StyleOptions{}, &StyleError{Option: "font size", Value: s.FontSize}
	}

	if out.Paper == "" {
		out.Paper = DefaultPaper
	}
	if !contains(papers, out.Paper) {
		return StyleOptions{}, &StyleError{Option: "paper", Value: s.Paper}
	}

	out.Filename = SanitizeFilename(s.Filename)
	return out, nil
}

// SanitizeFilename reduces name to a safe base name ending in .pdf.
// Characters outside [A-Za-z0-9._-] become underscores.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	base := strings.Trim(b.String(), "._")
	if base == "" {
		return DefaultFilename
	}
	if len(base) > maxFilenameLength-len(".pdf") {
		base = base[:maxFilenameLength-len(".pdf")]
	}
	return base + ".pdf"
}

// paperName maps a paper option to the geometry/CSS name used by templates.
func paperName(paper string) string {
	if paper == "a4" {
		return "a4paper"
	}
	return "letterpaper"
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
