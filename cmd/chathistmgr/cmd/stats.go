package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := cfg.DatabaseDSN()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		datasets, err := s.Datasets()
		if err != nil {
			return fmt.Errorf("list datasets: %w", err)
		}

		fmt.Printf("Database: %s\n", dbPath)
		if info, statErr := os.Stat(dbPath); statErr == nil {
			fmt.Printf("  Size:     %.2f MB\n", float64(info.Size())/(1024*1024))
		}
		fmt.Printf("  Datasets: %d\n", len(datasets))

		for _, ds := range datasets {
			users, err := s.Users(ds.UUID)
			if err != nil {
				return fmt.Errorf("list users for %s: %w", ds.UUID, err)
			}
			chats, err := s.Chats(ds.UUID)
			if err != nil {
				return fmt.Errorf("list chats for %s: %w", ds.UUID, err)
			}
			var messages int64
			for _, c := range chats {
				messages += c.Chat.MsgCount
			}
			fmt.Printf("\n  %s (%s)\n", ds.Alias, ds.UUID)
			fmt.Printf("    Users:    %d\n", len(users))
			fmt.Printf("    Chats:    %d\n", len(chats))
			fmt.Printf("    Messages: %d\n", messages)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
