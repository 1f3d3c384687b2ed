package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frozenspider/chat-history-manager-go/internal/api"
	mcpserver "github.com/frozenspider/chat-history-manager-go/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server for LLM assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets an MCP client (Claude Desktop or any other) list datasets, users
and chats, scroll messages, search for text, and preload stores from the
local archive.

Add to Claude Desktop config:
  {
    "mcpServers": {
      "chathistmgr": {
        "command": "chathistmgr",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := api.NewRegistry()
		if _, err := reg.Load(cfg.DatabaseDSN()); err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer reg.CloseAll()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		return mcpserver.Serve(ctx, reg)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
