package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jonathan/resume-render-api/internal/config"
	"github.com/jonathan/resume-render-api/internal/pipeline"
	"github.com/jonathan/resume-render-api/internal/rendering"
	"github.com/jonathan/resume-render-api/internal/typeset"
)

// newTypesetter builds the toolchain router. Tests replace it with a fake.
var newTypesetter = func(cfg config.RenderConfig, logger *slog.Logger) typeset.Typesetter {
	return typeset.New(typesetConfig(cfg), logger)
}

func typesetConfig(cfg config.RenderConfig) typeset.Config {
	return typeset.Config{
		XelatexPath:     cfg.XelatexPath,
		PandocPath:       cfg.PandocPath,
		GhostscriptPath:  cfg.GhostscriptPath,
		ChromePath:       cfg.ChromePath,
		Timeout:          cfg.Timeout,
		MaxArtifactBytes: cfg.MaxArtifactBytes,
		Compress:         cfg.Compress,
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return logger
}

// newOrchestrator wires the template renderer and the typesetters into a pipeline.
func newOrchestrator(cfg *config.Config, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	renderer, err := rendering.NewRenderer(cfg.Render.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return pipeline.New(pipeline.Config{
		Workers:      cfg.Render.Workers,
		QueueTimeout: cfg.Render.QueueTimeout,
		WorkRoot:     cfg.Render.WorkDir,
	}, renderer, newTypesetter(cfg.Render, logger), logger), nil
}
