package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-render-api/internal/observability"
	"github.com/jonathan/resume-render-api/internal/typeset"
)

var doctorStrict bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and typesetting toolchains",
	Long:  "Reports the effective configuration and which xelatex, pandoc, Chrome and Ghostscript binaries are available.",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "Exit with an error when a required toolchain is missing")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintConfig(cfg)
	ok := printer.PrintToolchains(typeset.Probe(typesetConfig(cfg.Render)))

	if !ok && doctorStrict {
		return errors.New("required typesetting toolchains are missing")
	}
	return nil
}
