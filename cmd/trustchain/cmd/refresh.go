package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:     "refresh",
	Aliases: []string{"r"},
	Short:   "Refresh the trusted metadata from the configured mirrors",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RefreshCmd(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func RefreshCmd(ctx context.Context) error {
	setupLogging("refresh_cmd ")

	session, err := newSession()
	if err != nil {
		return err
	}
	if err := session.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh trusted metadata: %w", err)
	}
	fmt.Println("Refresh successful, trusted roles:")
	for _, role := range session.TrustedRoles() {
		fmt.Printf("  %s\n", role)
	}
	return nil
}
