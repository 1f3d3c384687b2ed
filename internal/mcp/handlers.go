package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/frozenspider/chat-history-manager-go/internal/api"
	"github.com/frozenspider/chat-history-manager-go/internal/search"
)

const maxLimit = 1000

type handlers struct {
	reg *api.Registry
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	return v, nil
}

func uuidArg(args map[string]any, key string) (uuid.UUID, error) {
	raw, err := stringArg(args, key)
	if err != nil {
		return uuid.UUID{}, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid %s: %v", key, err)
	}
	return id, nil
}

func idArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int64(v), nil
}

func optionalIDArg(args map[string]any, key string) (int64, bool) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *handlers) listDatasets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	key, err := stringArg(args, "store_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := h.reg.Get(key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	datasets, err := st.Datasets()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(datasets)
}

func (h *handlers) listUsers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	key, err := stringArg(args, "store_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dsUUID, err := uuidArg(args, "dataset_uuid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := h.reg.Get(key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	users, err := st.Users(dsUUID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(users)
}

func (h *handlers) listChats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	key, err := stringArg(args, "store_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dsUUID, err := uuidArg(args, "dataset_uuid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := h.reg.Get(key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chats, err := st.Chats(dsUUID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(chats)
}

func (h *handlers) scrollMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	key, err := stringArg(args, "store_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dsUUID, err := uuidArg(args, "dataset_uuid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chatID, err := idArg(args, "chat_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := h.reg.Get(key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	offset := limitArg(args, "offset", 0)
	limit := limitArg(args, "limit", 100)
	msgs, err := st.ScrollMessages(dsUUID, chatID, offset, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(msgs)
}

func (h *handlers) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	key, err := stringArg(args, "store_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dsUUID, err := uuidArg(args, "dataset_uuid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patterns := stringSliceArg(args, "patterns")
	if len(patterns) == 0 {
		return mcp.NewToolResultError("patterns parameter is required"), nil
	}
	st, err := h.reg.Get(key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := search.Options{Limit: limitArg(args, "limit", 0)}
	var matches []search.Match
	if chatID, ok := optionalIDArg(args, "chat_id"); ok {
		matches, err = search.Chat(st, dsUUID, chatID, patterns, opts)
	} else {
		matches, err = search.AllChats(st, dsUUID, patterns, opts)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(matches)
}

func (h *handlers) getStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.reg.GetLoaded())
}
