// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/resume-render-api/internal/config"
	"github.com/jonathan/resume-render-api/internal/pipeline"
	"github.com/jonathan/resume-render-api/internal/typeset"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		p.printLine(line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printLine(line string) {
	// Truncate long lines
	if len([]rune(line)) > boxWidth-4 {
		line = string([]rune(line)[:boxWidth-7]) + "..."
	}
	pad := boxWidth - 4 - len([]rune(line))
	fmt.Fprintf(p.out, "│ %s%s │\n", line, strings.Repeat(" ", pad))
}

// PrintToolchains outputs which typesetting binaries were found. It returns
// false when a required binary is missing.
func (p *Printer) PrintToolchains(statuses []typeset.ToolchainStatus) bool {
	var sb strings.Builder
	ok := true

	for _, st := range statuses {
		mark := "✓"
		where := st.Path
		if !st.Found {
			mark = "·"
			where = "not found"
			if st.Required {
				mark = "✗"
				ok = false
			}
		}
		sb.WriteString(fmt.Sprintf("%s %-9s %s\n", mark, st.Name, where))
		sb.WriteString(fmt.Sprintf("  %s\n", st.Purpose))
	}

	if ok {
		sb.WriteString("\nAll output formats are available")
	} else {
		sb.WriteString("\nSome output formats are unavailable")
	}

	p.printBox("TYPESETTING TOOLCHAINS", sb.String())
	return ok
}

// PrintConfig outputs the effective server settings. Secrets are only reported as set or unset.
func (p *Printer) PrintConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Port:       %d\n", cfg.Server.Port))
	sb.WriteString(fmt.Sprintf("Origins:    %s\n", listOrAny(cfg.Server.AllowedOrigins)))
	sb.WriteString(fmt.Sprintf("Workers:    %d\n", pipeline.ResolveWorkers(cfg.Render.Workers)))
	sb.WriteString(fmt.Sprintf("Timeout:    %s\n", cfg.Render.Timeout))
	sb.WriteString(fmt.Sprintf("Compress:   %t\n", cfg.Render.Compress))
	sb.WriteString(fmt.Sprintf("LLM model:  %s\n", orDefault(cfg.LLM.Model, "tier defaults")))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Gemini key:       %s\n", setOrUnset(cfg.LLM.APIKey)))
	sb.WriteString(fmt.Sprintf("Extension secret: %s\n", setOrUnset(cfg.Auth.ExtensionSecret+cfg.Auth.ExtensionSecretHash)))
	sb.WriteString(fmt.Sprintf("JWT secret:       %s", setOrUnset(cfg.Auth.JWT.Secret)))

	p.printBox("SERVER CONFIGURATION", sb.String())
}

// PrintRenderResult outputs a summary of a rendered document.
func (p *Printer) PrintRenderResult(result *pipeline.Result, outPath string) {
	if result == nil || result.Artifact == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:    %s\n", result.JobID))
	sb.WriteString(fmt.Sprintf("Output: %s\n", outPath))
	sb.WriteString(fmt.Sprintf("Size:   %d bytes\n", result.Artifact.Size))
	if result.Artifact.Pages > 0 {
		sb.WriteString(fmt.Sprintf("Pages:  %d", result.Artifact.Pages))
	} else {
		sb.WriteString("Pages:  unknown")
	}

	p.printBox("RENDERED RESUME", sb.String())
}

// PrintRenderError outputs a pipeline failure with its diagnostics.
func (p *Printer) PrintRenderError(err *pipeline.Error) {
	if err == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠ %s\n", err.Kind))
	sb.WriteString(fmt.Sprintf("  %s", err.Message))

	if diag := strings.TrimSpace(err.Diagnostics); diag != "" {
		lines := strings.Split(diag, "\n")
		sb.WriteString("\n\nDiagnostics:\n")
		start := max(len(lines)-maxItemsToShow, 0)
		if start > 0 {
			sb.WriteString(fmt.Sprintf("  ... %d earlier lines\n", start))
		}
		sb.WriteString("  " + strings.Join(lines[start:], "\n  "))
	}

	p.printBox("RENDER FAILED", sb.String())
}

func listOrAny(list []string) string {
	if len(list) == 0 {
		return "*"
	}
	return strings.Join(list, ", ")
}

func setOrUnset(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
