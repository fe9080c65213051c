package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trasousa/mcp-gmail/internal/google"
	"github.com/trasousa/mcp-gmail/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var (
		debugMode  bool
		secretsDir string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access interactively",
		Long: `Run the Google OAuth2 browser consent flow and cache the resulting
token at <secrets-dir>/token.json.

This needs <secrets-dir>/credentials.json: an OAuth 2.0 Client ID of type
"Desktop app" downloaded from the Google Cloud Console. Authorization only
has to happen once; the cached token is refreshed automatically afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("secrets-dir") {
				if dir := os.Getenv("MCP_GMAIL_SECRETS_DIR"); dir != "" {
					secretsDir = dir
				}
			}

			logger := logging.New(debugMode)

			auth, err := google.NewAuthenticator(secretsDir, logger)
			if err != nil {
				return fmt.Errorf("gmail authentication setup failed: %w", err)
			}

			tok, err := auth.Authorize(cmd.Context())
			if err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Printf("Authorization successful. Token cached at %s\n", google.TokenPath(secretsDir))
			if !tok.Expiry.IsZero() {
				fmt.Printf("Access token valid until %s\n", tok.Expiry.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&secretsDir, "secrets-dir", DefaultSecretsDir, "Directory containing credentials.json and token.json. Can also use MCP_GMAIL_SECRETS_DIR env var.")

	return cmd
}
