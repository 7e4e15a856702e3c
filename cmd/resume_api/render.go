package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/resume-render-api/internal/observability"
	"github.com/jonathan/resume-render-api/internal/pipeline"
	"github.com/jonathan/resume-render-api/internal/rendering"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a resume JSON file to PDF",
	Long:  "Runs a resume through the template renderer and typesetting toolchain without starting the server.",
	RunE:  runRender,
}

var (
	renderInput    string
	renderStyle    string
	renderOutput   string
	renderFormat   string
	renderTheme    string
	renderFontSize string
	renderPaper    string
)

func init() {
	renderCmd.Flags().StringVarP(&renderInput, "in", "i", "", "Path to resume JSON file (required)")
	renderCmd.Flags().StringVarP(&renderStyle, "style", "s", "", "Path to a YAML or JSON style file")
	renderCmd.Flags().StringVarP(&renderOutput, "out", "o", "", "Output PDF path (defaults to the sanitized style filename)")
	renderCmd.Flags().StringVar(&renderFormat, "format", "", "Markup format: latex, markdown or html")
	renderCmd.Flags().StringVar(&renderTheme, "theme", "", "Template theme")
	renderCmd.Flags().StringVar(&renderFontSize, "font-size", "", "Font size: 10pt, 11pt or 12pt")
	renderCmd.Flags().StringVar(&renderPaper, "paper", "", "Paper size: letter or a4")

	_ = renderCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(renderCmd)
}

// loadStyle reads a style file and applies flag overrides on top of it.
func loadStyle(path string) (rendering.StyleOptions, error) {
	var style rendering.StyleOptions
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return style, fmt.Errorf("failed to read style file: %w", err)
		}
		// JSON is a subset of YAML, so one decoder covers both.
		if err := yaml.Unmarshal(data, &style); err != nil {
			return style, fmt.Errorf("failed to parse style file: %w", err)
		}
	}

	overrides := map[*string]string{
		&style.Theme:    renderTheme,
		&style.FontSize: renderFontSize,
		&style.Paper:    renderPaper,
	}
	for dst, v := range overrides {
		if v != "" {
			*dst = v
		}
	}
	if renderFormat != "" {
		style.Format = rendering.Format(renderFormat)
	}
	return style, nil
}

func runRender(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	resume, err := os.ReadFile(renderInput)
	if err != nil {
		return fmt.Errorf("failed to read resume: %w", err)
	}
	style, err := loadStyle(renderStyle)
	if err != nil {
		return err
	}

	orchestrator, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	result, err := orchestrator.Run(ctx, pipeline.Request{Resume: resume, Style: &style})
	if err != nil {
		var pipelineErr *pipeline.Error
		if errors.As(err, &pipelineErr) {
			printer.PrintRenderError(pipelineErr)
		}
		return err
	}

	out := renderOutput
	if out == "" {
		out = result.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, result.Artifact.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}

	printer.PrintRenderResult(result, out)
	return nil
}
