// Package main provides the entry point for the resume rendering API server and its tools.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "resume_api",
	Short: "Resume rendering HTTP API server",
	Long: "resume_api renders structured resumes to PDF through LaTeX, Markdown or HTML toolchains " +
		"and serves the browser extension's REST API.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Error ignored: maxprocs.Set only fails on an invalid GOMAXPROCS value,
	// in which case the runtime default applies.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
