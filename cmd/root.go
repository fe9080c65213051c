package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mcp-gmail application
var rootCmd = &cobra.Command{
	Use:   "mcp-gmail",
	Short: "Exposes Gmail read operations as MCP tools",
	Long: `mcp-gmail is a Model Context Protocol (MCP) server that exposes two
read-only Gmail operations to AI assistants:

  - list_unread:   list unread message snippets
  - search_emails: search messages with a Gmail query

Authentication uses the Google OAuth2 desktop-app flow with a read-only
Gmail scope. Credentials and the cached token live in the secrets directory
(credentials.json and token.json).`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcp-gmail version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}
