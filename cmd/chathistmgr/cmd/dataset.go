package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func parseDatasetUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid dataset uuid %q: %w", raw, err)
	}
	return id, nil
}

var renameDatasetCmd = &cobra.Command{
	Use:   "rename-dataset <dataset-uuid> <new-alias>",
	Short: "Rename a dataset's display alias",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsUUID, err := parseDatasetUUID(args[0])
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.RenameDataset(dsUUID, args[1]); err != nil {
			return fmt.Errorf("rename dataset: %w", err)
		}
		fmt.Printf("Renamed dataset %s to %q\n", dsUUID, args[1])
		return nil
	},
}

var deleteDatasetCmd = &cobra.Command{
	Use:   "delete-dataset <dataset-uuid>",
	Short: "Delete a dataset and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsUUID, err := parseDatasetUUID(args[0])
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DeleteDataset(dsUUID); err != nil {
			return fmt.Errorf("delete dataset: %w", err)
		}
		fmt.Printf("Deleted dataset %s\n", dsUUID)
		return nil
	},
}

var shiftTimeHours int

var shiftTimeCmd = &cobra.Command{
	Use:   "shift-time <dataset-uuid>",
	Short: "Shift every message timestamp in a dataset by a fixed number of hours",
	Long: `Corrects a dataset exported with the wrong timezone or clock offset by
shifting every message timestamp by --hours (positive moves later, negative
moves earlier).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsUUID, err := parseDatasetUUID(args[0])
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.ShiftDatasetTime(dsUUID, shiftTimeHours); err != nil {
			return fmt.Errorf("shift time: %w", err)
		}
		fmt.Printf("Shifted dataset %s by %d hours\n", dsUUID, shiftTimeHours)
		return nil
	},
}

var deleteChatCmd = &cobra.Command{
	Use:   "delete-chat <dataset-uuid> <chat-id>",
	Short: "Delete a chat and its messages from a dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsUUID, err := parseDatasetUUID(args[0])
		if err != nil {
			return err
		}
		var chatID int64
		if _, err := fmt.Sscanf(args[1], "%d", &chatID); err != nil {
			return fmt.Errorf("invalid chat id %q", args[1])
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DeleteChat(dsUUID, chatID); err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		fmt.Printf("Deleted chat %d from dataset %s\n", chatID, dsUUID)
		return nil
	},
}

var mergeUsersCmd = &cobra.Command{
	Use:   "merge-users <dataset-uuid> <base-user-id> <absorbed-user-id>",
	Short: "Merge one user into another within a dataset",
	Long: `Reassigns every message authored by the absorbed user to the base user,
then removes the absorbed user. If each of them has a separate one-on-one
chat, the absorbed user's chat is folded into the base user's and removed;
a one-on-one chat the two users share is kept.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsUUID, err := parseDatasetUUID(args[0])
		if err != nil {
			return err
		}
		var base, absorbed int64
		if _, err := fmt.Sscanf(args[1], "%d", &base); err != nil {
			return fmt.Errorf("invalid base user id %q", args[1])
		}
		if _, err := fmt.Sscanf(args[2], "%d", &absorbed); err != nil {
			return fmt.Errorf("invalid absorbed user id %q", args[2])
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.MergeUsers(dsUUID, base, absorbed); err != nil {
			return fmt.Errorf("merge users: %w", err)
		}
		fmt.Printf("Merged user %d into %d in dataset %s\n", absorbed, base, dsUUID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renameDatasetCmd, deleteDatasetCmd, shiftTimeCmd, deleteChatCmd, mergeUsersCmd)
	shiftTimeCmd.Flags().IntVar(&shiftTimeHours, "hours", 0, "number of hours to shift (may be negative)")
	_ = shiftTimeCmd.MarkFlagRequired("hours")
}
