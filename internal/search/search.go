// Package search provides an in-process, non-indexed plain-string scan over
// a chat's messages, honoring spec.md's explicit Non-goal of "no search
// indexing beyond plain-string scans". It is consumed by the CLI's search
// subcommand and the optional MCP facade; it never persists an index.
package search

import (
	"strings"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// batchSize bounds how many messages are pulled into memory per scroll,
// mirroring the Merger's own batched-read discipline (spec.md §4.4) so a
// search over a large chat does not materialize it wholesale.
const batchSize = 500

// Match pairs a matching message with the chat it was found in.
type Match struct {
	Chat    model.Chat
	Message model.Message
}

// Options controls a Chat scan.
type Options struct {
	// CaseSensitive, when false (the default), lowercases both the
	// searchable string and every pattern before matching.
	CaseSensitive bool
	// Limit caps the number of matches returned; 0 means unlimited.
	Limit int
}

// Chat scans a single chat's messages for patterns, returning every message
// whose searchable string (model.Message.SearchableString) contains every
// pattern (AND semantics across patterns — a multi-pattern scan, not a
// multi-pattern OR). Deleted messages are still scanned: "no search
// indexing" says nothing about excluding them, and a human reviewing a
// merge may specifically want to find a deleted message's last known text.
func Chat(s *store.Store, dsUUID uuid.UUID, chatID int64, patterns []string, opts Options) ([]Match, error) {
	needles := normalizePatterns(patterns, opts.CaseSensitive)
	if len(needles) == 0 {
		return nil, nil
	}

	chats, err := s.Chats(dsUUID)
	if err != nil {
		return nil, err
	}
	var chat model.Chat
	found := false
	for _, c := range chats {
		if c.Chat.ID == chatID {
			chat, found = c.Chat, true
			break
		}
	}
	if !found {
		return nil, nil
	}

	var matches []Match
	offset := 0
	for {
		batch, err := s.ScrollMessages(dsUUID, chatID, offset, batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, m := range batch {
			if containsAll(m.SearchableString(), needles, opts.CaseSensitive) {
				matches = append(matches, Match{Chat: chat, Message: m})
				if opts.Limit > 0 && len(matches) >= opts.Limit {
					return matches, nil
				}
			}
		}
		offset += len(batch)
		if len(batch) < batchSize {
			break
		}
	}
	return matches, nil
}

// AllChats scans every chat in a dataset, in Store-listing order.
func AllChats(s *store.Store, dsUUID uuid.UUID, patterns []string, opts Options) ([]Match, error) {
	chats, err := s.Chats(dsUUID)
	if err != nil {
		return nil, err
	}
	var out []Match
	for _, c := range chats {
		remaining := opts.Limit
		if remaining > 0 {
			remaining -= len(out)
			if remaining <= 0 {
				break
			}
		}
		perChatOpts := opts
		perChatOpts.Limit = remaining
		m, err := Chat(s, dsUUID, c.Chat.ID, patterns, perChatOpts)
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	return out, nil
}

func normalizePatterns(patterns []string, caseSensitive bool) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if !caseSensitive {
			p = strings.ToLower(p)
		}
		out = append(out, p)
	}
	return out
}

func containsAll(haystack string, needles []string, caseSensitive bool) bool {
	if !caseSensitive {
		haystack = strings.ToLower(haystack)
	}
	for _, n := range needles {
		if !strings.Contains(haystack, n) {
			return false
		}
	}
	return true
}
