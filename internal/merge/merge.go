// Package merge implements the Merger (component E of spec.md §4.4): a
// streaming two-sequence diff over a master and slave chat's messages,
// classifying corresponding ranges into Match/Retain/Add/Replace segments
// for a human or calling program to resolve, and the Merge Executor to
// later replay.
package merge

import (
	"context"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/equivalence"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// DefaultBatchSize is the reasonable default of spec.md §4.4.
const DefaultBatchSize = 1000

// Kind discriminates a diff segment's variant.
type Kind string

const (
	KindMatch   Kind = "match"
	KindRetain  Kind = "retain"
	KindAdd     Kind = "add"
	KindReplace Kind = "replace"
)

// Segment is one labeled range of the diff sequence. A zero Count means
// that side contributes no messages to this segment (Retain/Add are always
// one-sided; Match/Replace always carry both). First/Last are store-local
// internal ids, opaque across stores per spec.md §9 — callers resolve them
// against the originating Source, never against each other.
type Segment struct {
	Kind Kind

	MasterCount    int
	MasterFirstID  int64
	MasterLastID   int64

	SlaveCount   int
	SlaveFirstID int64
	SlaveLastID  int64
}

// Diff runs the streaming two-stream diff of spec.md §4.4 over master and
// slave, using sameUser to resolve internal_equivalence.Rule 2 and
// batchSize to bound memory. It returns the complete ordered sequence of
// diff segments, or the first fatal error encountered
// (apperror.TimeShiftDetectedError, apperror.UnorderableError, or
// context.Canceled via apperror.CancelledError).
func Diff(ctx context.Context, master, slave Source, sameUser equivalence.SameUser, batchSize int) ([]Segment, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	mc := newCursor(master, batchSize)
	sc := newCursor(slave, batchSize)

	var segs []Segment
	var building *Segment

	extend := func(kind Kind, m, s *model.Message) {
		if building == nil || building.Kind != kind {
			if building != nil {
				segs = append(segs, *building)
			}
			building = &Segment{Kind: kind}
		}
		if m != nil {
			if building.MasterCount == 0 {
				building.MasterFirstID = m.InternalID
			}
			building.MasterLastID = m.InternalID
			building.MasterCount++
		}
		if s != nil {
			if building.SlaveCount == 0 {
				building.SlaveFirstID = s.InternalID
			}
			building.SlaveLastID = s.InternalID
			building.SlaveCount++
		}
	}
	flush := func() {
		if building != nil {
			segs = append(segs, *building)
			building = nil
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, apperror.Cancelled("merge diff")
		}

		mh, err := mc.head(ctx)
		if err != nil {
			return nil, err
		}
		sh, err := sc.head(ctx)
		if err != nil {
			return nil, err
		}

		if mh == nil && sh == nil {
			flush()
			return segs, nil
		}

		if mh != nil && sh != nil {
			if isTelegramMigrateIDShift(*mh, *sh) {
				flush()
				extend(KindReplace, mh, sh)
				flush()
				mc.advance()
				sc.advance()
				continue
			}

			mctx := equivalence.MessageContext{Message: *mh, Root: master.Root}
			sctx := equivalence.MessageContext{Message: *sh, Root: slave.Root}
			if equivalence.Equivalent(mctx, sctx, sameUser) {
				extend(KindMatch, mh, sh)
				mc.advance()
				sc.advance()
				continue
			}

			if sameSourceID(*mh, *sh) {
				if offset := mh.Timestamp - sh.Timestamp; offset != 0 {
					shifted := *sh
					shifted.Timestamp = mh.Timestamp
					shiftedCtx := equivalence.MessageContext{Message: shifted, Root: slave.Root}
					if equivalence.Equivalent(mctx, shiftedCtx, sameUser) {
						return nil, apperror.TimeShiftDetected(offset)
					}
				}
				extend(KindReplace, mh, sh)
				mc.advance()
				sc.advance()
				continue
			}

			cmp, err := compareHeads(*mh, *sh)
			if err != nil {
				return nil, err
			}
			switch {
			case cmp < 0: // slave ahead of master: master-only for now
				extend(KindRetain, mh, nil)
				mc.advance()
			case cmp > 0: // master ahead of slave: slave-only for now
				extend(KindAdd, nil, sh)
				sc.advance()
			default:
				// Tuple ties without equivalence or a shared source id: no
				// spec'd tiebreak remains, so treat as slave-only and make
				// progress on the slave side (documented decision, see
				// DESIGN.md).
				extend(KindAdd, nil, sh)
				sc.advance()
			}
			continue
		}

		if mh != nil {
			extend(KindRetain, mh, nil)
			mc.advance()
			continue
		}
		extend(KindAdd, nil, sh)
		sc.advance()
	}
}
