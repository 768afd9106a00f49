// Package commands implements the CLI commands for the tdsctl client.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tdsctl",
	Short: "TDS client control - connect, inspect, and debug TDS sessions",
	Long: `tdsctl is the command-line client for the TDS (Tabular Data Stream)
session engine. Use it to open ad-hoc connections against a SQL Server
endpoint, resolve and validate connection configuration, and serve the
diagnostics debug endpoints for an embedded session.

Use "tdsctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and executes it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "SQL Server hostname")
	rootCmd.PersistentFlags().Int("port", 1433, "SQL Server port")
	rootCmd.PersistentFlags().String("username", "", "SQL login username")
	rootCmd.PersistentFlags().String("auth", "sql_password", "Auth strategy: sql_password|kerberos|ntlm|azuread_password|azuread_access_token")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveDebugCmd)
}
