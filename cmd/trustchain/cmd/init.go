package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sumanth8495/trustchain/config"
	"github.com/sumanth8495/trustchain/fetcher"
	"github.com/sumanth8495/trustchain/trust"
	"github.com/sumanth8495/trustchain/trustedset"
)

var rootPath string

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Initialize the client with trusted root metadata",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return InitializeCmd()
	},
}

func init() {
	initCmd.Flags().StringVarP(&rootPath, "file", "f", "", "location of the trusted root metadata file")
	rootCmd.AddCommand(initCmd)
}

func InitializeCmd() error {
	setupLogging("init_cmd ")

	metadataDir, downloadDir, err := localDirs()
	if err != nil {
		return err
	}
	for _, dir := range []string{metadataDir, downloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var rootBytes []byte
	if rootPath != "" {
		rootBytes, err = os.ReadFile(rootPath)
		if err != nil {
			return err
		}
	} else {
		// without a provided file, bootstrap from 1.root.json on the first
		// mirror; this trusts the mirror on first use
		list, err := mirrorList()
		if err != nil {
			return err
		}
		cfg := config.New(nil, list)
		url := list[0].MetadataURL(trust.RoleRoot, 1)
		fmt.Printf("No root file was provided. Trying to download %s\n", url)
		transport := &fetcher.HTTPFetcher{MaxRetries: 2}
		rootBytes, err = transport.DownloadFile(url, cfg.RootMaxLength, cfg.FetchTimeout)
		if err != nil {
			return err
		}
	}

	// verify the content before persisting it
	if _, err := trustedset.New(rootBytes); err != nil {
		return err
	}
	dst := filepath.Join(metadataDir, trust.MetaName(trust.RoleRoot))
	if err := os.WriteFile(dst, rootBytes, 0o644); err != nil {
		return err
	}

	fmt.Println("Initialization successful")
	return nil
}
