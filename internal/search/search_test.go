package search_test

import (
	"testing"

	"github.com/frozenspider/chat-history-manager-go/internal/search"
	"github.com/frozenspider/chat-history-manager-go/internal/testutil/storetest"
)

func TestChatMatchesAllPatternsCaseInsensitive(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(12)) // fixture texts are "msg 1".."msg 12"

	matches, err := search.Chat(f.Store, f.Dataset.UUID, f.Chat.ID, []string{"MSG", "1"}, search.Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// "msg 1", "msg 10", "msg 11", "msg 12" all contain both "msg" and "1".
	if len(matches) != 4 {
		t.Fatalf("got %d matches, want 4", len(matches))
	}
	for _, m := range matches {
		if m.Chat.ID != f.Chat.ID {
			t.Errorf("match chat id = %d, want %d", m.Chat.ID, f.Chat.ID)
		}
	}
}

func TestChatRequiresAllPatterns(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(3))

	matches, err := search.Chat(f.Store, f.Dataset.UUID, f.Chat.ID, []string{"msg", "nonexistent"}, search.Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want 0 (no message contains both patterns)", len(matches))
	}
}

func TestChatRespectsLimit(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(5))

	matches, err := search.Chat(f.Store, f.Dataset.UUID, f.Chat.ID, []string{"msg"}, search.Options{Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2 (limit)", len(matches))
	}
}

func TestChatCaseSensitive(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(2))

	matches, err := search.Chat(f.Store, f.Dataset.UUID, f.Chat.ID, []string{"MSG"}, search.Options{CaseSensitive: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d case-sensitive matches for 'MSG' against lowercase text, want 0", len(matches))
	}
}

func TestAllChatsAggregatesAcrossChats(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(3))

	matches, err := search.AllChats(f.Store, f.Dataset.UUID, []string{"msg"}, search.Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches across all chats, want 3", len(matches))
	}
}
