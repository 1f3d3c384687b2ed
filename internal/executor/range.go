package executor

import (
	"context"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// streamWholeChat replays every message of a chat in chronological order,
// batchSize at a time, for Keep/Add chat decisions that carry a chat over
// untouched.
func streamWholeChat(ctx context.Context, st *store.Store, dsUUID uuid.UUID, chatID int64, batchSize int, fn func([]model.Message) error) error {
	var lastID *int64
	for {
		if err := ctx.Err(); err != nil {
			return apperror.Cancelled("merge execute")
		}
		var batch []model.Message
		var err error
		if lastID == nil {
			batch, err = st.FirstMessages(dsUUID, chatID, batchSize)
		} else {
			batch, err = st.MessagesAfter(dsUUID, chatID, *lastID, batchSize+1)
			if err == nil && len(batch) > 0 {
				batch = batch[1:]
			}
		}
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		id := batch[len(batch)-1].InternalID
		lastID = &id
	}
}

// streamRange replays the inclusive [firstID, lastID] range of a chat,
// batchSize at a time, for Retain/Add/Replace/DontReplace range decisions.
func streamRange(ctx context.Context, st *store.Store, dsUUID uuid.UUID, chatID, firstID, lastID int64, batchSize int, fn func([]model.Message) error) error {
	anchor := firstID
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return apperror.Cancelled("merge execute")
		}
		var batch []model.Message
		var err error
		if first {
			batch, err = st.MessagesAfter(dsUUID, chatID, anchor, batchSize)
			first = false
		} else {
			batch, err = st.MessagesAfter(dsUUID, chatID, anchor, batchSize+1)
			if err == nil && len(batch) > 0 {
				batch = batch[1:]
			}
		}
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		cut := len(batch)
		done := false
		for i, m := range batch {
			if m.InternalID == lastID {
				cut = i + 1
				done = true
				break
			}
		}
		batch = batch[:cut]
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if done {
			return nil
		}
		anchor = batch[len(batch)-1].InternalID
	}
}

// collectRange materializes the inclusive [firstID, lastID] range in one
// read. Used only for Match ranges, where the master and slave sides must be
// paired positionally and so need random access to both at once; every other
// range decision streams via streamRange/streamWholeChat instead.
func collectRange(st *store.Store, dsUUID uuid.UUID, chatID, firstID, lastID int64) ([]model.Message, error) {
	return st.MessagesSlice(dsUUID, chatID, firstID, lastID)
}

// mediaCount counts a message's existing (Found) media references, the
// tiebreak the Merge Executor uses to pick a winner within a Match range per
// spec.md §4.5.
func mediaCount(m model.Message) int {
	n := 0
	if m.Content != nil {
		if m.Content.Path.Set && m.Content.Path.Found {
			n++
		}
		if m.Content.ThumbnailPath.Set && m.Content.ThumbnailPath.Found {
			n++
		}
		if m.Content.VCardPath.Set && m.Content.VCardPath.Found {
			n++
		}
	}
	if m.Service != nil && m.Service.ImagePath.Set && m.Service.ImagePath.Found {
		n++
	}
	return n
}
