package telegramjson

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

const sampleExport = `{
  "name": "Alice",
  "type": "personal_chat",
  "id": 100,
  "messages": [
    {
      "id": 1,
      "type": "message",
      "date_unixtime": "1000",
      "from": "Alice",
      "from_id": "user1",
      "text": "hello"
    },
    {
      "id": 2,
      "type": "message",
      "date_unixtime": "1001",
      "from": "Me",
      "from_id": "user0",
      "reply_to_message_id": 1,
      "text": [
        "it's ",
        {"type": "bold", "text": "great"},
        " to hear from you"
      ]
    },
    {
      "id": 3,
      "type": "service",
      "action": "edit_chat_title",
      "date_unixtime": "1002",
      "actor": "Alice",
      "actor_id": "user1"
    }
  ]
}`

func writeExport(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadParsesMessagesAndRichText(t *testing.T) {
	path := writeExport(t, sampleExport)
	ds, warnings, err := New(nil).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", warnings)
	}
	if len(ds.Chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(ds.Chats))
	}
	msgs := ds.Chats[0].Messages
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}

	if msgs[0].BodyKind != model.BodyRegular || msgs[0].RichText.PlainText() != "hello" {
		t.Errorf("message 1 = %+v", msgs[0])
	}

	second := msgs[1]
	if second.ReplyToSourceID == nil || *second.ReplyToSourceID != 1 {
		t.Errorf("message 2 reply_to = %v, want 1", second.ReplyToSourceID)
	}
	wantText := "it's great to hear from you"
	if second.RichText.PlainText() != wantText {
		t.Errorf("message 2 plain text = %q, want %q", second.RichText.PlainText(), wantText)
	}
	foundBold := false
	for _, el := range second.RichText.Elements {
		if el.Kind == model.RTBold && el.Text == "great" {
			foundBold = true
		}
	}
	if !foundBold {
		t.Errorf("message 2 missing bold element: %+v", second.RichText.Elements)
	}

	third := msgs[2]
	if third.BodyKind != model.BodyService || third.Service == nil || third.Service.Subtype != model.ServiceGroupEditTitle {
		t.Errorf("message 3 = %+v", third)
	}

	var myselfCount int
	for _, u := range ds.Users {
		if u.IsMyself {
			myselfCount++
		}
	}
	if myselfCount != 1 {
		t.Errorf("got %d myself users, want exactly 1", myselfCount)
	}
}

func TestLoadMissingFileReturnsNotFound(t *testing.T) {
	_, _, err := New(nil).Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	var nfe *apperror.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("Load(missing) error = %v, want apperror.NotFoundError", err)
	}
}

func TestLoadMalformedJSONReturnsFormatError(t *testing.T) {
	path := writeExport(t, "{not json")
	_, _, err := New(nil).Load(context.Background(), path)
	var fe *apperror.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Load(malformed) error = %v, want apperror.FormatError", err)
	}
}
