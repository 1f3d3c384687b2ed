package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/testutil/storetest"
)

// registerFixture wires an already-populated Fixture's Store into s's
// registry directly, bypassing the HTTP load endpoint (which wants a file
// path, not an in-memory handle to a store a test already opened).
func registerFixture(s *Server, f *storetest.Fixture) string {
	h := handle("fixture")
	s.registry.entries[h] = &handleEntry{store: f.Store, path: "fixture"}
	return string(h)
}

func TestHandleChatsAndUsers(t *testing.T) {
	s, _ := newTestServer(t)
	f := storetest.NewFixture(t)
	key := registerFixture(s, f)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/stores/"+key+"/datasets/"+f.Dataset.UUID.String()+"/users", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("users: status %d, body %s", rec.Code, rec.Body.String())
	}
	var users []model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}

	req = httptest.NewRequest(http.MethodGet,
		"/api/v1/stores/"+key+"/datasets/"+f.Dataset.UUID.String()+"/chats", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("chats: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleMessagesScrollAndSearch(t *testing.T) {
	s, _ := newTestServer(t)
	f := storetest.NewFixture(t)
	f.Insert(f.Messages(5))
	key := registerFixture(s, f)

	base := "/api/v1/stores/" + key + "/datasets/" + f.Dataset.UUID.String() +
		"/chats/" + itoa(f.Chat.ID)

	req := httptest.NewRequest(http.MethodGet, base+"/messages/scroll?offset=0&limit=10", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("scroll: status %d, body %s", rec.Code, rec.Body.String())
	}
	var msgs []model.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}

	req = httptest.NewRequest(http.MethodGet,
		"/api/v1/stores/"+key+"/datasets/"+f.Dataset.UUID.String()+"/search?q=msg&q=3", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleRenameDataset(t *testing.T) {
	s, _ := newTestServer(t)
	f := storetest.NewFixture(t)
	key := registerFixture(s, f)

	body, _ := json.Marshal(RenameDatasetRequest{Alias: "renamed"})
	req := httptest.NewRequest(http.MethodPatch,
		"/api/v1/stores/"+key+"/datasets/"+f.Dataset.UUID.String(), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename: status %d, body %s", rec.Code, rec.Body.String())
	}

	datasets, err := f.Store.Datasets()
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	if len(datasets) != 1 || datasets[0].Alias != "renamed" {
		t.Errorf("datasets = %+v, want alias %q", datasets, "renamed")
	}
}

func TestHandleDeleteChat(t *testing.T) {
	s, _ := newTestServer(t)
	f := storetest.NewFixture(t)
	key := registerFixture(s, f)

	req := httptest.NewRequest(http.MethodDelete,
		"/api/v1/stores/"+key+"/datasets/"+f.Dataset.UUID.String()+"/chats/"+itoa(f.Chat.ID), nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete chat: status %d, body %s", rec.Code, rec.Body.String())
	}

	chats, err := f.Store.Chats(f.Dataset.UUID)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("got %d chats after delete, want 0", len(chats))
	}
}

func TestHandleBackup(t *testing.T) {
	s, _ := newTestServer(t)
	f := storetest.NewFixture(t)
	key := registerFixture(s, f)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/"+key+"/backup", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("backup: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
