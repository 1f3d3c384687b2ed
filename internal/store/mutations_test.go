package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/testutil/storetest"
)

func TestRenameDataset(t *testing.T) {
	f := storetest.NewFixture(t)
	if err := f.Store.RenameDataset(f.Dataset.UUID, "new alias"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	datasets, err := f.Store.Datasets()
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	if len(datasets) != 1 || datasets[0].Alias != "new alias" {
		t.Errorf("datasets = %+v, want alias 'new alias'", datasets)
	}
}

func TestShiftDatasetTime(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(3))

	if err := f.Store.ShiftDatasetTime(f.Dataset.UUID, 2); err != nil {
		t.Fatalf("shift: %v", err)
	}
	msgs, err := f.Store.ScrollMessages(f.Dataset.UUID, f.Chat.ID, 0, 3)
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	for i, m := range msgs {
		want := int64(i+1) + 2*3600
		if m.Timestamp != want {
			t.Errorf("message %d timestamp = %d, want %d", i, m.Timestamp, want)
		}
	}
}

func TestDeleteChatAndDataset(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(2))

	if err := f.Store.DeleteChat(f.Dataset.UUID, f.Chat.ID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	chats, err := f.Store.Chats(f.Dataset.UUID)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("got %d chats after delete, want 0", len(chats))
	}

	if err := f.Store.DeleteDataset(f.Dataset.UUID); err != nil {
		t.Fatalf("delete dataset: %v", err)
	}
	datasets, err := f.Store.Datasets()
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	if len(datasets) != 0 {
		t.Errorf("got %d datasets after delete, want 0", len(datasets))
	}
}

func TestDeleteChatNotFound(t *testing.T) {
	f := storetest.NewFixture(t)
	err := f.Store.DeleteChat(f.Dataset.UUID, 9999)
	if !apperror.IsNotFound(err) {
		t.Errorf("DeleteChat(missing) = %v, want NotFoundError", err)
	}
}

func TestUpdateUserPatchesFieldsOnly(t *testing.T) {
	f := storetest.NewFixture(t)
	patched := f.Other
	patched.FirstName = "New First"
	patched.LastName = "New Last"
	patched.Username = "newuser"
	patched.PhoneNumbers = []string{"+1"}

	if err := f.Store.UpdateUser(patched); err != nil {
		t.Fatalf("update user: %v", err)
	}
	users, err := f.Store.Users(f.Dataset.UUID)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	var got *struct {
		FirstName string
		LastName  string
		Username  string
		Phones    []string
	}
	for _, u := range users {
		if u.ID == f.Other.ID {
			got = &struct {
				FirstName string
				LastName  string
				Username  string
				Phones    []string
			}{u.FirstName, u.LastName, u.Username, u.PhoneNumbers}
		}
	}
	if got == nil {
		t.Fatalf("other user not found after update")
	}
	if got.FirstName != "New First" || got.LastName != "New Last" || got.Username != "newuser" {
		t.Errorf("update did not apply: %+v", got)
	}
	if len(got.Phones) != 1 || got.Phones[0] != "+1" {
		t.Errorf("phone numbers not updated: %+v", got.Phones)
	}
}

func TestMergeUsersMovesDistinctPersonalChatMessages(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(4))

	// A second user with their own separate personal chat with myself,
	// representing a duplicate contact record for the same real person as
	// f.Other (the scenario MergeUsers is meant to collapse).
	dup := model.User{DatasetUUID: f.Dataset.UUID, ID: 3, FirstName: "Other (dup)"}
	if err := f.Store.InsertUser(dup); err != nil {
		t.Fatalf("insert dup user: %v", err)
	}
	dupChat := model.Chat{
		DatasetUUID: f.Dataset.UUID,
		ID:          2,
		Name:        "Other (dup)",
		SourceType:  model.SourceTelegram,
		Type:        model.ChatPersonal,
		MemberIDs:   []int64{f.Myself.ID, dup.ID},
	}
	if err := f.Store.InsertChat(f.SrcRoot, dupChat); err != nil {
		t.Fatalf("insert dup chat: %v", err)
	}
	sid := int64(100)
	dupMsg := model.Message{
		DatasetUUID: f.Dataset.UUID,
		ChatID:      dupChat.ID,
		SourceID:    &sid,
		FromUserID:  dup.ID,
		Timestamp:   100,
		BodyKind:    model.BodyRegular,
		RichText:    model.RichText{Elements: []model.RichTextElement{{Kind: model.RTPlain, Text: "dup msg"}}},
	}
	if err := f.Store.InsertMessages(f.SrcRoot, dupChat, []model.Message{dupMsg}); err != nil {
		t.Fatalf("insert dup message: %v", err)
	}

	if err := f.Store.MergeUsers(f.Dataset.UUID, f.Other.ID, dup.ID); err != nil {
		t.Fatalf("merge users: %v", err)
	}

	users, err := f.Store.Users(f.Dataset.UUID)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users after merge, want 2 (myself + other)", len(users))
	}

	// The duplicate's chat is gone; its message now lives in f.Other's
	// original personal chat, attributed to f.Other.
	chats, err := f.Store.Chats(f.Dataset.UUID)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats after merge, want 1 (dup chat folded away)", len(chats))
	}

	msgs, err := f.Store.ScrollMessages(f.Dataset.UUID, f.Chat.ID, 0, 10)
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("got %d messages after merge, want 5 (4 original + 1 moved)", len(msgs))
	}
	found := false
	for _, m := range msgs {
		if m.SourceID != nil && *m.SourceID == sid {
			found = true
			if m.FromUserID != f.Other.ID {
				t.Errorf("moved message from_user_id = %d, want %d", m.FromUserID, f.Other.ID)
			}
		}
	}
	if !found {
		t.Errorf("moved message (source_id %d) not found in merged chat", sid)
	}
}

// TestMergeUsersSharedChatKeepsChat guards against a regression where
// merging two users who are both members of the very same personal chat
// (e.g. folding "myself" into the only other party of a 1:1 chat) deleted
// that shared chat instead of leaving it alone.
func TestMergeUsersSharedChatKeepsChat(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(4))

	if err := f.Store.MergeUsers(f.Dataset.UUID, f.Myself.ID, f.Other.ID); err != nil {
		t.Fatalf("merge users: %v", err)
	}

	chats, err := f.Store.Chats(f.Dataset.UUID)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats after merge, want 1 (shared chat preserved)", len(chats))
	}
	msgs, err := f.Store.ScrollMessages(f.Dataset.UUID, f.Chat.ID, 0, 10)
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("got %d messages after merge, want 4 (none dropped)", len(msgs))
	}
	for _, m := range msgs {
		if m.FromUserID != f.Myself.ID {
			t.Errorf("message %d from_user_id = %d, want %d (rewritten to base)", m.InternalID, m.FromUserID, f.Myself.ID)
		}
	}
}

func TestMergeUsersIntoSelfIsInvariantViolation(t *testing.T) {
	f := storetest.NewFixture(t)
	err := f.Store.MergeUsers(f.Dataset.UUID, f.Myself.ID, f.Myself.ID)
	if !apperror.IsInvariantViolated(err) {
		t.Errorf("merge into self = %v, want InvariantViolatedError", err)
	}
}

func TestBackupCreatesSnapshotFile(t *testing.T) {
	f := storetest.NewFixture(t)
	path, err := f.Store.Backup()
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if path == "" {
		t.Fatalf("backup returned empty path")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("backup file missing: %v", err)
	}
}

func TestSuspendResumeBackupsSkipsAutoBackup(t *testing.T) {
	f := storetest.NewFixture(t)
	f.Store.SuspendBackups()
	defer f.Store.ResumeBackups()

	before, _ := countBackups(t, f.Store.Path())
	chat := f.Chat
	chat.ID = 2
	chat.Name = "Another"
	chat.MemberIDs = []int64{f.Myself.ID}
	if err := f.Store.InsertChat(f.SrcRoot, chat); err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	after, _ := countBackups(t, f.Store.Path())
	if after != before {
		t.Errorf("got %d backup files after suspended insert, want %d (no new backup)", after, before)
	}
}

func countBackups(t *testing.T, dbPath string) (int, error) {
	t.Helper()
	matches, err := filepath.Glob(dbPath + ".*.bak")
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}
