package whatsappdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/loader"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// buildSampleDB creates a minimal msgstore.db covering a direct chat (with a
// reply and a photo) and a group chat, plus one unsupported message type.
func buildSampleDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msgstore.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ddl := []string{
		`CREATE TABLE jid (_id INTEGER PRIMARY KEY, raw_string TEXT, user TEXT, server TEXT)`,
		`CREATE TABLE chat (_id INTEGER PRIMARY KEY, jid_row_id INTEGER, subject TEXT, group_type INTEGER, hidden INTEGER, sort_timestamp INTEGER)`,
		`CREATE TABLE message (_id INTEGER PRIMARY KEY, chat_row_id INTEGER, from_me INTEGER, key_id TEXT, sender_jid_row_id INTEGER, timestamp INTEGER, message_type INTEGER, text_data TEXT, starred INTEGER)`,
		`CREATE TABLE message_media (message_row_id INTEGER, mime_type TEXT, media_caption TEXT, file_size INTEGER, file_path TEXT, width INTEGER, height INTEGER, media_duration INTEGER)`,
		`CREATE TABLE message_quoted (message_row_id INTEGER, key_id TEXT)`,
		`CREATE TABLE group_participants (gjid TEXT, jid TEXT, admin INTEGER)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("ddl %q: %v", stmt, err)
		}
	}

	exec := func(query string, args ...interface{}) {
		t.Helper()
		if _, err := db.Exec(query, args...); err != nil {
			t.Fatalf("exec %q: %v", query, err)
		}
	}

	// Direct chat: jid 10 is the counterpart.
	exec(`INSERT INTO jid VALUES (10, '447700900111@s.whatsapp.net', '447700900111', 's.whatsapp.net')`)
	exec(`INSERT INTO chat VALUES (1, 10, NULL, 0, 0, 1000)`)

	// Group chat: jid 20 is the group itself, jid 30 is a member.
	exec(`INSERT INTO jid VALUES (20, 'group1@g.us', '', 'g.us')`)
	exec(`INSERT INTO jid VALUES (30, '447700900222@s.whatsapp.net', '447700900222', 's.whatsapp.net')`)
	exec(`INSERT INTO chat VALUES (2, 20, 'Team', 1, 0, 2000)`)
	exec(`INSERT INTO group_participants VALUES ('group1@g.us', '447700900222@s.whatsapp.net', 0)`)

	// Direct chat messages: incoming text, outgoing reply, incoming photo,
	// and one unsupported system message.
	exec(`INSERT INTO message VALUES (1, 1, 0, 'k1', 10, 1000000, 0, 'hello', 0)`)
	exec(`INSERT INTO message VALUES (2, 1, 1, 'k2', NULL, 1001000, 0, 'hi there', 0)`)
	exec(`INSERT INTO message_quoted VALUES (2, 'k1')`)
	exec(`INSERT INTO message VALUES (3, 1, 0, 'k3', 10, 1002000, 1, NULL, 0)`)
	exec(`INSERT INTO message_media VALUES (3, 'image/jpeg', NULL, 12345, 'Media/img.jpg', 100, 200, 0)`)
	exec(`INSERT INTO message VALUES (5, 1, 0, 'k5', 10, 1004000, 7, NULL, 0)`)

	// Group chat message.
	exec(`INSERT INTO message VALUES (4, 2, 0, 'k4', 30, 1003000, 0, 'team msg', 0)`)

	return path
}

func TestLoadDirectAndGroupChats(t *testing.T) {
	path := buildSampleDB(t)
	ds, warnings, err := New(nil).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ds.Chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(ds.Chats))
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1 (for the skipped system message): %+v", len(warnings), warnings)
	}

	var direct, group *loader.ChatMessages
	for i := range ds.Chats {
		c := &ds.Chats[i]
		if c.Chat.Type == model.ChatPersonal {
			direct = c
		} else {
			group = c
		}
	}
	if direct == nil || group == nil {
		t.Fatalf("expected one personal and one group chat, got %+v", ds.Chats)
	}

	if len(direct.Messages) != 3 {
		t.Fatalf("direct chat: got %d messages, want 3", len(direct.Messages))
	}
	var reply *model.Message
	var photo *model.Message
	for i := range direct.Messages {
		m := &direct.Messages[i]
		if *m.SourceID == 2 {
			reply = m
		}
		if *m.SourceID == 3 {
			photo = m
		}
	}
	if reply == nil || reply.ReplyToSourceID == nil || *reply.ReplyToSourceID != 1 {
		t.Fatalf("reply message = %+v, want ReplyToSourceID == 1", reply)
	}
	if reply.FromUserID != myselfUserID {
		t.Errorf("reply message from_me should map to myself, got %d", reply.FromUserID)
	}
	if photo == nil || photo.Content == nil || photo.Content.Kind != model.ContentPhoto {
		t.Fatalf("photo message = %+v, want Content.Kind == ContentPhoto", photo)
	}
	if !photo.Content.Path.Set || photo.Content.Width != 100 || photo.Content.Height != 200 {
		t.Errorf("photo content = %+v", photo.Content)
	}

	if len(group.Messages) != 1 {
		t.Fatalf("group chat: got %d messages, want 1", len(group.Messages))
	}
	if group.Chat.Name != "Team" {
		t.Errorf("group chat name = %q, want %q", group.Chat.Name, "Team")
	}
	if len(group.Chat.MemberIDs) != 2 {
		t.Errorf("group chat members = %v, want 2 (myself + jid 30)", group.Chat.MemberIDs)
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
	_, _, err := New(nil).Load(context.Background(), filepath.Join(t.TempDir(), "missing.db"))
	var nfe *apperror.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("Load(missing) error = %v, want apperror.NotFoundError", err)
	}
}

func TestLoadNonWhatsAppDBReturnsFormatError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-whatsapp.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE unrelated (x INTEGER)`); err != nil {
		t.Fatalf("ddl: %v", err)
	}
	db.Close()

	_, _, err = New(nil).Load(context.Background(), path)
	var fe *apperror.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Load(non-whatsapp) error = %v, want apperror.FormatError", err)
	}
}
