// Package mcp provides a read-mostly Model Context Protocol facade over an
// opened Store, mirroring the HTTP data service's read operations as tools
// an LLM client can call directly, the way the reference codebase exposes
// its email archive over MCP.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/frozenspider/chat-history-manager-go/internal/api"
)

// Tool name constants.
const (
	ToolListDatasets  = "list_datasets"
	ToolListUsers     = "list_users"
	ToolListChats     = "list_chats"
	ToolScrollMessages = "scroll_messages"
	ToolSearchMessages = "search_messages"
	ToolGetStats      = "get_stats"
)

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withOffset() mcp.ToolOption {
	return mcp.WithNumber("offset",
		mcp.Description("Number of results to skip for pagination (default 0)"),
	)
}

func withDatasetUUID() mcp.ToolOption {
	return mcp.WithString("dataset_uuid",
		mcp.Required(),
		mcp.Description("Dataset UUID, as returned by list_datasets"),
	)
}

func withChatID() mcp.ToolOption {
	return mcp.WithNumber("chat_id",
		mcp.Required(),
		mcp.Description("Chat ID, as returned by list_chats"),
	)
}

// Serve creates an MCP server exposing reg's open stores and serves over
// stdio. It blocks until stdin is closed or ctx is cancelled.
func Serve(ctx context.Context, reg *api.Registry) error {
	s := server.NewMCPServer(
		"chathistmgr",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{reg: reg}

	s.AddTool(listDatasetsTool(), h.listDatasets)
	s.AddTool(listUsersTool(), h.listUsers)
	s.AddTool(listChatsTool(), h.listChats)
	s.AddTool(scrollMessagesTool(), h.scrollMessages)
	s.AddTool(searchMessagesTool(), h.searchMessages)
	s.AddTool(getStatsTool(), h.getStats)

	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func listDatasetsTool() mcp.Tool {
	return mcp.NewTool(ToolListDatasets,
		mcp.WithDescription("List every dataset open in a given store handle."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("store_key",
			mcp.Required(),
			mcp.Description("Opaque store handle returned by the loader service"),
		),
	)
}

func listUsersTool() mcp.Tool {
	return mcp.NewTool(ToolListUsers,
		mcp.WithDescription("List a dataset's users, myself first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("store_key", mcp.Required(), mcp.Description("Opaque store handle")),
		withDatasetUUID(),
	)
}

func listChatsTool() mcp.Tool {
	return mcp.NewTool(ToolListChats,
		mcp.WithDescription("List a dataset's chats with their members and last message."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("store_key", mcp.Required(), mcp.Description("Opaque store handle")),
		withDatasetUUID(),
	)
}

func scrollMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolScrollMessages,
		mcp.WithDescription("Page through a chat's messages in chronological order."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("store_key", mcp.Required(), mcp.Description("Opaque store handle")),
		withDatasetUUID(),
		withChatID(),
		withOffset(),
		withLimit("100"),
	)
}

func searchMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMessages,
		mcp.WithDescription("Plain-string scan a dataset (or one of its chats) for messages containing every given pattern."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("store_key", mcp.Required(), mcp.Description("Opaque store handle")),
		withDatasetUUID(),
		mcp.WithArray("patterns",
			mcp.WithStringItems(),
			mcp.Required(),
			mcp.Description("Patterns that must all be present in a message's text"),
		),
		mcp.WithNumber("chat_id",
			mcp.Description("Restrict the scan to one chat; omit to search every chat"),
		),
		withLimit("0 (unlimited)"),
	)
}

func getStatsTool() mcp.Tool {
	return mcp.NewTool(ToolGetStats,
		mcp.WithDescription("Get an overview of a store: datasets currently open and their file path."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
