package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frozenspider/chat-history-manager-go/internal/search"
)

var (
	searchDataset       string
	searchChatID        int64
	searchCaseSensitive bool
	searchLimit         int
)

var searchCmd = &cobra.Command{
	Use:   "search <dataset-uuid> <pattern>...",
	Short: "Scan a dataset's messages for text patterns",
	Long: `Search scans message text for every given pattern (AND semantics across
multiple patterns) and prints matches as JSON. Pass --chat to scan a single
chat; omit it to scan every chat in the dataset.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsUUID, err := parseDatasetUUID(args[0])
		if err != nil {
			return err
		}
		patterns := args[1:]

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		opts := search.Options{CaseSensitive: searchCaseSensitive, Limit: searchLimit}

		var matches []search.Match
		if searchChatID != 0 {
			matches, err = search.Chat(s, dsUUID, searchChatID, patterns, opts)
		} else {
			matches, err = search.AllChats(s, dsUUID, patterns, opts)
		}
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Int64Var(&searchChatID, "chat", 0, "restrict the scan to this chat id")
	searchCmd.Flags().BoolVar(&searchCaseSensitive, "case-sensitive", false, "match patterns case-sensitively")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "cap the number of matches (0 = unlimited)")
}
