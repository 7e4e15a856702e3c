package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-render-api/internal/assistant"
	"github.com/jonathan/resume-render-api/internal/llm"
	"github.com/jonathan/resume-render-api/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the render endpoint and the browser extension's AI endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	logger := newLogger(cfg)

	orchestrator, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	factory := llm.NewGeminiFactory(cfg.LLM.APIKey, llm.DefaultGeminiConfig().WithAllModels(cfg.LLM.Model))
	if !factory.HasDefaultKey() {
		logger.Warn("GEMINI_API_KEY is not set; AI endpoints require a per-request gemini_api_key")
	}
	svc := assistant.New(factory, llm.RetryPolicy{
		Attempts: cfg.LLM.MaxAttempts,
		Delay:    cfg.LLM.RetryDelay,
	}, logger)

	srv, err := server.New(cfg, server.Deps{
		Renderer:  orchestrator,
		Assistant: svc,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("render pipeline ready", "workers", orchestrator.Workers())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Start(ctx)
}
