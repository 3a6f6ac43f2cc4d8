package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sumanth8495/trustchain/client"
	"github.com/sumanth8495/trustchain/config"
	"github.com/sumanth8495/trustchain/trust"
)

var getCmd = &cobra.Command{
	Use:     "get",
	Aliases: []string{"g"},
	Short:   "Download a target file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return GetCmd(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func GetCmd(ctx context.Context, target string) error {
	setupLogging("get_cmd ")

	session, err := newSession()
	if err != nil {
		return err
	}
	if err := session.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh trusted metadata: %w", err)
	}

	targetInfo, err := session.TargetInfo(ctx, target)
	if err != nil {
		return fmt.Errorf("target %s not found: %w", target, err)
	}

	path, err := session.FindCachedTarget(targetInfo, "")
	if err != nil {
		return fmt.Errorf("failed while finding a cached target: %w", err)
	}
	if path != "" {
		fmt.Printf("Target %s is already present at - %s\n", target, path)
		return nil
	}

	path, err = session.DownloadTarget(ctx, targetInfo, "")
	if err != nil {
		return fmt.Errorf("failed to download target file %s - %w", target, err)
	}
	fmt.Printf("Successfully downloaded target %s at - %s\n", target, path)
	return nil
}

// newSession builds a client session from the CLI environment, requiring a
// prior `init` to have established the local directories and trusted root.
func newSession() (*client.Session, error) {
	metadataDir, downloadDir, err := localDirs()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(metadataDir, trust.MetaName(trust.RoleRoot))); err != nil {
		return nil, fmt.Errorf("no trusted root metadata, run `trustchain init` first: %w", err)
	}
	list, err := mirrorList()
	if err != nil {
		return nil, err
	}
	cfg := config.New(nil, list)
	cfg.LocalMetadataDir = metadataDir
	cfg.LocalTargetsDir = downloadDir
	return client.New(cfg)
}
