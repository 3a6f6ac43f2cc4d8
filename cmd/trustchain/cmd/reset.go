package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var ForceDelete bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the local metadata cache and downloaded targets",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ResetCmd()
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&ForceDelete, "force", "f", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func ResetCmd() error {
	metadataDir, downloadDir, err := localDirs()
	if err != nil {
		return err
	}

	if !ForceDelete {
		fmt.Printf("Are you sure you want to delete %s and %s? (y/n)\n", metadataDir, downloadDir)
		answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborting reset")
			return nil
		}
	}

	for _, dir := range []string{metadataDir, downloadDir} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", dir)
	}
	return nil
}
