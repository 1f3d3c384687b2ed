package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/frozenspider/chat-history-manager-go/internal/api"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/testutil/storetest"
)

func callTool(t *testing.T, h *handlers, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
	switch name {
	case ToolListDatasets:
		handler = h.listDatasets
	case ToolListUsers:
		handler = h.listUsers
	case ToolListChats:
		handler = h.listChats
	case ToolScrollMessages:
		handler = h.scrollMessages
	case ToolSearchMessages:
		handler = h.searchMessages
	case ToolGetStats:
		handler = h.getStats
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", r.Content[0])
	}
	return tc.Text
}

func newTestHandlers(t *testing.T) (*handlers, *storetest.Fixture, string) {
	t.Helper()
	reg := api.NewRegistry()
	f := storetest.NewFixture(t)

	// Load the fixture's database file into the registry, which opens its
	// own handle to it under a fresh key.
	key, err := reg.Load(f.Store.Path())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Close the registry's handle at cleanup; the fixture's own handle is
	// closed by the fixture's cleanup.
	t.Cleanup(func() { _ = reg.Close(key) })
	return &handlers{reg: reg}, f, key
}

func TestListDatasets(t *testing.T) {
	h, f, key := newTestHandlers(t)
	result := callTool(t, h, ToolListDatasets, map[string]any{"store_key": key})
	if result.IsError {
		t.Fatalf("error result: %s", resultText(t, result))
	}
	var datasets []model.Dataset
	if err := json.Unmarshal([]byte(resultText(t, result)), &datasets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(datasets) != 1 || datasets[0].UUID != f.Dataset.UUID {
		t.Errorf("datasets = %+v, want one entry matching %s", datasets, f.Dataset.UUID)
	}
}

func TestListUsers(t *testing.T) {
	h, f, key := newTestHandlers(t)
	result := callTool(t, h, ToolListUsers, map[string]any{
		"store_key":    key,
		"dataset_uuid": f.Dataset.UUID.String(),
	})
	if result.IsError {
		t.Fatalf("error result: %s", resultText(t, result))
	}
	var users []model.User
	if err := json.Unmarshal([]byte(resultText(t, result)), &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
}

func TestScrollMessagesAndSearch(t *testing.T) {
	h, f, key := newTestHandlers(t)
	f.Insert(f.Messages(4))

	result := callTool(t, h, ToolScrollMessages, map[string]any{
		"store_key":    key,
		"dataset_uuid": f.Dataset.UUID.String(),
		"chat_id":      float64(f.Chat.ID),
		"limit":        float64(10),
	})
	if result.IsError {
		t.Fatalf("error result: %s", resultText(t, result))
	}
	var msgs []model.Message
	if err := json.Unmarshal([]byte(resultText(t, result)), &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}

	result = callTool(t, h, ToolSearchMessages, map[string]any{
		"store_key":    key,
		"dataset_uuid": f.Dataset.UUID.String(),
		"patterns":     []any{"msg", "3"},
	})
	if result.IsError {
		t.Fatalf("error result: %s", resultText(t, result))
	}
}

func TestListUsersMissingStoreKey(t *testing.T) {
	h, f, _ := newTestHandlers(t)
	result := callTool(t, h, ToolListUsers, map[string]any{
		"dataset_uuid": f.Dataset.UUID.String(),
	})
	if !result.IsError {
		t.Error("expected an error result for a missing store_key")
	}
}
