package merge

import (
	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// telegramIDWidthBoundary is Telegram's identifier-width change point
// (0x1_0000_0000, spec.md §4.4): ids below it are the legacy 32-bit space,
// ids at or above it are the expanded 64-bit-safe space introduced later.
const telegramIDWidthBoundary = int64(1) << 32

type orderKey struct {
	ts         int64
	hasSource  bool
	sourceID   int64
	searchable string
}

func keyOf(m model.Message) orderKey {
	k := orderKey{ts: m.Timestamp, searchable: m.SearchableString()}
	if m.SourceID != nil {
		k.hasSource = true
		k.sourceID = *m.SourceID
	}
	return k
}

// compareHeads orders two messages by the tuple (timestamp,
// source_id-if-present, searchable-string-as-tiebreak) of spec.md §4.4: -1
// if master sorts before slave, +1 if after, 0 if the tuple cannot
// distinguish them (same source id, or fully identical key). Returns
// apperror.UnorderableError when the timestamp and searchable string both
// fail to distinguish the pair and source_id is missing on either side.
func compareHeads(master, slave model.Message) (int, error) {
	a, b := keyOf(master), keyOf(slave)

	if a.ts != b.ts {
		return cmpInt64(a.ts, b.ts), nil
	}
	if a.hasSource && b.hasSource && a.sourceID != b.sourceID {
		return cmpInt64(a.sourceID, b.sourceID), nil
	}
	if a.searchable != b.searchable {
		return cmpString(a.searchable, b.searchable), nil
	}
	if !a.hasSource || !b.hasSource {
		return 0, apperror.Unorderable(master.InternalID, slave.InternalID)
	}
	return 0, nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// sameSourceID reports whether both messages carry a non-nil, equal SourceID.
func sameSourceID(a, b model.Message) bool {
	return a.SourceID != nil && b.SourceID != nil && *a.SourceID == *b.SourceID
}

// isTelegramMigrateIDShift recognizes the special case of spec.md §4.4: both
// heads are a group-migrate-from service message sharing a source_id, whose
// from_id values straddle Telegram's identifier-width boundary. Such a pair
// must be forced into a one-message Conflict even though the user-mapping in
// force might otherwise resolve the two from_ids to the same logical user
// and let the pair match, since the width change is a known export artifact
// worth surfacing to a human rather than silently matching through.
func isTelegramMigrateIDShift(master, slave model.Message) bool {
	if master.BodyKind != model.BodyService || slave.BodyKind != model.BodyService {
		return false
	}
	if master.Service == nil || slave.Service == nil {
		return false
	}
	if master.Service.Subtype != model.ServiceGroupMigrateFrom || slave.Service.Subtype != model.ServiceGroupMigrateFrom {
		return false
	}
	if !sameSourceID(master, slave) {
		return false
	}
	return (master.FromUserID < telegramIDWidthBoundary) != (slave.FromUserID < telegramIDWidthBoundary)
}
