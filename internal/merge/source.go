package merge

import (
	"context"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// Source identifies one side's chat to diff: a store, the dataset it
// belongs to, the chat within that dataset, and the filesystem root its
// content media resolves against (for internal/equivalence rule 5).
type Source struct {
	Store       *store.Store
	DatasetUUID uuid.UUID
	Chat        model.Chat
	Root        string
}

// cursor is the lazy, restartable per-side message stream of spec.md §9:
// its state is an optional anchor internal id, and it is read in batches to
// bound memory (spec.md §4.4). The Merger treats it as an opaque finite
// sequence; it never compares internal ids across the two cursors' stores.
type cursor struct {
	src       Source
	batchSize int

	batch  []model.Message
	pos    int
	lastID *int64
	done   bool
}

func newCursor(src Source, batchSize int) *cursor {
	return &cursor{src: src, batchSize: batchSize}
}

// head returns the next unconsumed message without advancing, or nil once
// the stream is exhausted.
func (c *cursor) head(ctx context.Context) (*model.Message, error) {
	if c.pos < len(c.batch) {
		return &c.batch[c.pos], nil
	}
	if c.done {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, err := c.fetchNext()
	if err != nil {
		return nil, err
	}
	c.batch = batch
	c.pos = 0
	if len(batch) == 0 {
		c.done = true
		return nil, nil
	}
	return &c.batch[0], nil
}

// advance consumes the current head; the next head() call returns the
// following message, fetching a new batch if the current one is exhausted.
func (c *cursor) advance() {
	if c.pos >= len(c.batch) {
		return
	}
	id := c.batch[c.pos].InternalID
	c.lastID = &id
	c.pos++
}

func (c *cursor) fetchNext() ([]model.Message, error) {
	if c.lastID == nil {
		return c.src.Store.FirstMessages(c.src.DatasetUUID, c.src.Chat.ID, c.batchSize)
	}
	after, err := c.src.Store.MessagesAfter(c.src.DatasetUUID, c.src.Chat.ID, *c.lastID, c.batchSize+1)
	if err != nil {
		return nil, err
	}
	if len(after) == 0 {
		return nil, nil
	}
	// MessagesAfter is inclusive of the anchor; drop it.
	return after[1:], nil
}
