package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-render-api/internal/config"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [secret]",
	Short: "Print a bcrypt hash for EXTENSION_SECRET_HASH",
	Long:  "Hashes the extension client secret so the server can be configured without storing it in plain text. Reads the secret from stdin when no argument is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHashSecret,
}

func init() {
	rootCmd.AddCommand(hashSecretCmd)
}

func runHashSecret(cmd *cobra.Command, args []string) error {
	var secret string
	if len(args) == 1 {
		secret = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return errors.New("secret is empty")
	}

	cost, err := config.BcryptCostFromEnv()
	if err != nil {
		return err
	}
	hash, err := config.HashSecret(secret, cost)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return err
}
