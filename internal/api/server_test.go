package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/frozenspider/chat-history-manager-go/internal/config"
)

func newTestServer(t *testing.T) (*Server, *Registry) {
	t.Helper()
	reg := NewRegistry()
	cfg := config.NewDefaultConfig()
	cfg.Server.BindAddr = "127.0.0.1"
	return NewServer(cfg, reg, nil), reg
}

func loadTestStore(t *testing.T, s *Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	body, _ := json.Marshal(LoadRequest{Path: path})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("load store: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp LoadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode load response: %v", err)
	}
	return resp.Key
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHandleLoadAndGetLoaded(t *testing.T) {
	s, _ := newTestServer(t)
	key := loadTestStore(t, s)
	if key == "" {
		t.Fatal("empty handle returned from load")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get loaded: status %d", rec.Code)
	}
	var loaded []LoadedStore
	if err := json.Unmarshal(rec.Body.Bytes(), &loaded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Key != key {
		t.Errorf("loaded = %+v, want one entry with key %q", loaded, key)
	}
}

func TestHandleCloseStore(t *testing.T) {
	s, reg := newTestServer(t)
	key := loadTestStore(t, s)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/stores/"+key, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close: status %d, body %s", rec.Code, rec.Body.String())
	}
	if _, err := reg.Get(key); err == nil {
		t.Error("store still resolvable after close")
	}
}

func TestHandleDatasetsEmptyStore(t *testing.T) {
	s, _ := newTestServer(t)
	key := loadTestStore(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/"+key+"/datasets", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() == "" {
		t.Error("expected a JSON body")
	}
}

func TestHandleUnknownStoreReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/bogus/datasets", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAuthMiddlewareRejectsMissingKey(t *testing.T) {
	reg := NewRegistry()
	cfg := config.NewDefaultConfig()
	cfg.Server.APIKey = "secret"
	s := NewServer(cfg, reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsValidKey(t *testing.T) {
	reg := NewRegistry()
	cfg := config.NewDefaultConfig()
	cfg.Server.APIKey = "secret"
	s := NewServer(cfg, reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
