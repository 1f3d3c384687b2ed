package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take an immediate snapshot of the archive database",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		path, err := s.Backup()
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		if info, statErr := os.Stat(path); statErr == nil {
			fmt.Printf("Backup written to %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
		} else {
			fmt.Printf("Backup written to %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
