// Package storetest provides a fresh, schema-initialized Store backed by a
// temp directory for use in other packages' tests, mirroring the teacher
// codebase's own storetest helper but built around this project's entity
// model instead of an email archive's.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// New opens a fresh Store in t.TempDir() and initializes its schema,
// closing it automatically at test cleanup.
func New(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Fixture bundles a Store with one dataset, two users (myself + other) and
// one personal chat between them, for tests that only care about message
// behavior.
type Fixture struct {
	T       *testing.T
	Store   *store.Store
	Dataset model.Dataset
	Myself  model.User
	Other   model.User
	Chat    model.Chat
	SrcRoot string // temp dir standing in for a loader's source tree
}

// NewFixture creates a Fixture with a fresh store, dataset, two users and
// one personal chat already inserted.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	s := New(t)
	ds := model.Dataset{UUID: uuid.New(), Alias: "test dataset", Root: "ds-root"}
	if err := s.InsertDataset(ds); err != nil {
		t.Fatalf("insert dataset: %v", err)
	}
	myself := model.User{DatasetUUID: ds.UUID, ID: 1, FirstName: "Myself", IsMyself: true}
	other := model.User{DatasetUUID: ds.UUID, ID: 2, FirstName: "Other"}
	if err := s.InsertUser(myself); err != nil {
		t.Fatalf("insert myself: %v", err)
	}
	if err := s.InsertUser(other); err != nil {
		t.Fatalf("insert other: %v", err)
	}
	chat := model.Chat{
		DatasetUUID: ds.UUID,
		ID:          1,
		Name:        "Other",
		SourceType:  model.SourceTelegram,
		Type:        model.ChatPersonal,
		MemberIDs:   []int64{1, 2},
	}
	srcRoot := t.TempDir()
	if err := s.InsertChat(srcRoot, chat); err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	return &Fixture{T: t, Store: s, Dataset: ds, Myself: myself, Other: other, Chat: chat, SrcRoot: srcRoot}
}

// Messages builds n minimal regular text messages for the fixture's chat,
// timestamped 1..n seconds after epoch, alternating sender, with source ids
// 1..n and searchable text "msg N".
func (f *Fixture) Messages(n int) []model.Message {
	out := make([]model.Message, 0, n)
	for i := 1; i <= n; i++ {
		sid := int64(i)
		from := f.Myself.ID
		if i%2 == 0 {
			from = f.Other.ID
		}
		out = append(out, model.Message{
			DatasetUUID: f.Dataset.UUID,
			ChatID:      f.Chat.ID,
			SourceID:    &sid,
			FromUserID:  from,
			Timestamp:   int64(i),
			BodyKind:    model.BodyRegular,
			RichText: model.RichText{Elements: []model.RichTextElement{
				{Kind: model.RTPlain, Text: plainText(i)},
			}},
		})
	}
	return out
}

func plainText(i int) string {
	return "msg " + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// Insert inserts msgs into the fixture's chat.
func (f *Fixture) Insert(msgs []model.Message) {
	f.T.Helper()
	if err := f.Store.InsertMessages(f.SrcRoot, f.Chat, msgs); err != nil {
		f.T.Fatalf("insert messages: %v", err)
	}
}
