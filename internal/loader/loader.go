// Package loader defines the contract a per-format parser must satisfy to
// produce an in-memory dataset the store can absorb, per spec.md §4.2. All
// source-specific quirks (text encoding, media path resolution, spurious
// duplicate records) live behind this contract; a Loader's output is always
// already-canonical model entities.
package loader

import (
	"context"

	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// ChatMessages pairs a chat with its ordered message list, as produced by a
// Loader before the store has assigned internal ids.
type ChatMessages struct {
	Chat     model.Chat
	Messages []model.Message
}

// Dataset is the complete in-memory result of a single Load call: one
// dataset record, its users (exactly one myself), and its chats with their
// messages. SourceRoot is the filesystem directory that any relative media
// path in Chats is resolved against; Store.InsertChat and
// Store.InsertMessages copy media out of it.
type Dataset struct {
	Dataset    model.Dataset
	Users      []model.User
	Chats      []ChatMessages
	SourceRoot string
}

// Warning reports a single record a Loader could not fully decode while
// still producing output for the rest of the source, per spec.md §4.2's
// partial-parse error kind.
type Warning struct {
	RecordID string
	Reason   string
}

// Loader parses one chat-history export format. Name identifies the format
// for CLI selection and log messages (e.g. "telegram-json", "whatsapp-db").
//
// Load takes a filesystem path — a single file or a directory, depending on
// the format — and returns a fully-populated Dataset. Three error shapes are
// possible, per spec.md §4.2:
//
//   - file-not-found: the path does not exist or is unreadable. Fatal, no
//     dataset is returned. Callers should expect apperror.NotFound.
//   - format-not-understood: the path exists but its content cannot be
//     decoded as this format at all. Fatal. Callers should expect
//     apperror.FormatError with the offending byte offset or record id when
//     known.
//   - partial-parse: most of the source decoded fine; warnings carries the
//     records that did not. This is not an error: Load returns (dataset,
//     warnings, nil).
//
// Load must respect ctx cancellation for long-running parses.
type Loader interface {
	Name() string
	Load(ctx context.Context, path string) (*Dataset, []Warning, error)
}
