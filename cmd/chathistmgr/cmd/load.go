package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frozenspider/chat-history-manager-go/internal/loader"
	_ "github.com/frozenspider/chat-history-manager-go/internal/loader/telegramjson"
	_ "github.com/frozenspider/chat-history-manager-go/internal/loader/whatsappdb"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

var loadFormat string
var loadAlias string

var loadCmd = &cobra.Command{
	Use:   "load <path>",
	Short: "Load a chat-history export into the local archive",
	Long: `Load parses a chat-history export with the named format loader and
absorbs the resulting dataset into the local SQLite archive, creating it if
this is the first load.

Supported formats: ` + formatList(),
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringVar(&loadFormat, "format", "", "loader format name (required)")
	loadCmd.Flags().StringVar(&loadAlias, "alias", "", "override the dataset alias")
	_ = loadCmd.MarkFlagRequired("format")
}

func formatList() string {
	names := loader.Names()
	if len(names) == 0 {
		return "(none registered)"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}

func runLoad(cmd *cobra.Command, args []string) error {
	path := args[0]

	l, err := loader.Get(loadFormat)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds, warnings, err := l.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	for _, w := range warnings {
		logger.Warn("partial parse", "record", w.RecordID, "reason", w.Reason)
	}

	if loadAlias != "" {
		ds.Dataset.Alias = loadAlias
	}

	s, err := store.Open(cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()
	if err := s.InitSchema(); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	if err := s.InsertDataset(ds.Dataset); err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	for _, u := range ds.Users {
		if err := s.InsertUser(u); err != nil {
			return fmt.Errorf("insert user %d: %w", u.ID, err)
		}
	}
	for _, cm := range ds.Chats {
		if err := s.InsertChat(ds.SourceRoot, cm.Chat); err != nil {
			return fmt.Errorf("insert chat %d: %w", cm.Chat.ID, err)
		}
		if err := s.InsertMessages(ds.SourceRoot, cm.Chat, cm.Messages); err != nil {
			return fmt.Errorf("insert messages for chat %d: %w", cm.Chat.ID, err)
		}
	}

	fmt.Printf("Loaded dataset %q (%s): %d users, %d chats\n",
		ds.Dataset.Alias, ds.Dataset.UUID, len(ds.Users), len(ds.Chats))
	return nil
}
