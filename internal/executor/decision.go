package executor

import (
	"github.com/frozenspider/chat-history-manager-go/internal/merge"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// ChatAction discriminates how one chat from either side of a merge ends up
// in the merged dataset, per spec.md §4.5's input contract.
type ChatAction string

const (
	ChatKeep    ChatAction = "keep"     // Keep(master_chat): carry master's chat untouched
	ChatDontAdd ChatAction = "dont-add" // DontAdd(slave_chat): omit entirely
	ChatAdd     ChatAction = "add"      // Add(slave_chat): carry slave's chat untouched
	ChatCombine ChatAction = "combine"  // ResolvedCombine(master_chat, slave_chat, ranges)
)

// ChatDecision is one caller-supplied resolution for a chat pair (or
// single-sided chat) surfaced by a dataset comparison.
type ChatDecision struct {
	Action ChatAction

	MasterChat *model.Chat // set for Keep and Combine
	SlaveChat  *model.Chat // set for Add, DontAdd and Combine

	// Ranges resolves every merge.Segment the Merger produced for this pair;
	// meaningful only when Action == ChatCombine, in segment order.
	Ranges []RangeDecision
}

// RangeAction resolves one merge.Segment within a ChatCombine decision.
type RangeAction string

const (
	RangeRetain      RangeAction = "retain"       // master-only: keep as-is
	RangeAdd         RangeAction = "add"          // slave-only: add as-is
	RangeMatch       RangeAction = "match"        // equivalent pair: richer side wins per-message
	RangeReplace     RangeAction = "replace"      // conflicting pair: accept slave's whole range
	RangeDontReplace RangeAction = "dont-replace" // conflicting pair: keep master's whole range
	RangeDontAdd     RangeAction = "dont-add"     // slave-only: omit entirely
)

type RangeDecision struct {
	Segment merge.Segment
	Action  RangeAction
}

// UserResolution maps one slave-side user onto the merged dataset, per
// spec.md §4.5: every slave user, including "myself", is either dropped (no
// message of theirs may be carried into the merge) or merged into one of the
// master's own users, whose id and identity the merged dataset reuses as-is.
// Master users never need a resolution of their own: all of them carry over
// unchanged.
type UserResolution struct {
	SlaveUserID  int64
	Drop         bool
	MasterUserID int64 // meaningful only when !Drop
}
