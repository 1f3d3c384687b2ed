package api

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// handle is the opaque key the loader service hands back from Load and the
// data service requires on every subsequent call, keeping "which database
// file is this" out of every request after the first.
type handle string

// handleEntry bundles an open Store with the path it was opened from, so
// GetLoaded can report both without a second lookup.
type handleEntry struct {
	store *store.Store
	path  string
}

// Registry tracks every Store opened by Load, keyed by an opaque handle.
// One process may hold several stores open at once (e.g. a source database
// being merged into a destination one), each independently lockable via the
// Store's own multi-reader/single-writer discipline.
type Registry struct {
	mu      sync.Mutex
	entries map[handle]*handleEntry
	next    int
}

// NewRegistry creates an empty store registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[handle]*handleEntry)}
}

// Load opens (and schema-initializes, if new) the SQLite database at path
// and returns a handle for subsequent data-service calls.
func (r *Registry) Load(path string) (string, error) {
	s, err := store.Open(path)
	if err != nil {
		return "", fmt.Errorf("open store: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return "", fmt.Errorf("init schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := handle(uuid.New().String())
	r.entries[h] = &handleEntry{store: s, path: path}
	return string(h), nil
}

// Get resolves a handle to its Store, or a NotFoundError if it is unknown
// (never loaded, or already closed).
func (r *Registry) Get(h string) (*store.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[handle(h)]
	if !ok {
		return nil, apperror.NotFound("handle", h)
	}
	return e.store, nil
}

// Close closes the Store behind handle h and forgets it.
func (r *Registry) Close(h string) error {
	r.mu.Lock()
	e, ok := r.entries[handle(h)]
	if ok {
		delete(r.entries, handle(h))
	}
	r.mu.Unlock()
	if !ok {
		return apperror.NotFound("handle", h)
	}
	return e.store.Close()
}

// LoadedStore describes one open store for the GetLoaded listing.
type LoadedStore struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

// GetLoaded lists every store currently open in the registry.
func (r *Registry) GetLoaded() []LoadedStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LoadedStore, 0, len(r.entries))
	for h, e := range r.entries {
		out = append(out, LoadedStore{Key: string(h), Path: e.path})
	}
	return out
}

// CloseAll closes every store in the registry, collecting the first error
// encountered while still attempting every close.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[handle]*handleEntry)
	r.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
