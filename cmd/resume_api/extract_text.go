package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-render-api/internal/ingestion"
)

var extractShowMeta bool

var extractTextCmd = &cobra.Command{
	Use:   "extract-text <file>",
	Short: "Print the cleaned text of a resume PDF or text file",
	Long:  "Extracts and cleans resume text the same way /get-resume-json does before it is sent to the model.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtractText,
}

func init() {
	extractTextCmd.Flags().BoolVar(&extractShowMeta, "meta", false, "Print ingestion metadata as JSON instead of the text")
	rootCmd.AddCommand(extractTextCmd)
}

func runExtractText(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	text, meta, err := ingestion.IngestFromFile(ctx, args[0])
	if err != nil {
		return err
	}

	if extractShowMeta {
		data, err := meta.ToJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}
