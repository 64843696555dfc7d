package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the accountctl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accountctl",
		Short: "Administer the account service",
		Long: `accountctl manages the account store: schema migrations and seed data.
Connection settings come from the same environment variables as the server.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}
