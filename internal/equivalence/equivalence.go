// Package equivalence implements the "practical equality" predicate of
// spec.md §4.3: content-aware comparison of two messages living under
// possibly-different dataset roots, used by internal/merge to decide whether
// a pair of messages represents the same utterance. The predicate is
// symmetric and reflexive but, because of the missing-media clause (rule 5),
// not transitive; internal/merge never relies on transitivity.
package equivalence

import (
	"os"
	"path/filepath"

	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// MessageContext pairs a message with the filesystem root its content's
// media paths resolve against, per the (m, root, chat_ctx) triple of
// spec.md §4.3.
type MessageContext struct {
	Message model.Message
	Root    string
}

// SameUser reports whether a user id on the "a" side and a user id on the
// "b" side resolve to the same logical user under the user-mapping in
// force for a particular merge (spec.md §4.3 rule 2). The Merger supplies
// this; outside a merge, identity mapping (a == b) is the natural default.
type SameUser func(aUserID, bUserID int64) bool

// IdentitySameUser is the trivial SameUser that only matches equal ids,
// suitable when comparing two messages within the same dataset.
func IdentitySameUser(a, b int64) bool { return a == b }

// Equivalent implements the six rules of spec.md §4.3. It is symmetric: the
// roles of a and b may be swapped without changing the result, given a
// SameUser that is itself symmetric.
func Equivalent(a, b MessageContext, sameUser SameUser) bool {
	ma, mb := a.Message, b.Message

	// Rule 1: same body variant, or matching Service subtype.
	if ma.BodyKind != mb.BodyKind {
		return false
	}
	if ma.BodyKind == model.BodyService {
		if ma.Service == nil || mb.Service == nil || ma.Service.Subtype != mb.Service.Subtype {
			return false
		}
	}

	// Rule 2: from_user_id resolves to the same logical user.
	if !sameUser(ma.FromUserID, mb.FromUserID) {
		return false
	}

	// Rule 3: timestamps equal; edit-timestamp differences don't matter.
	if ma.Timestamp != mb.Timestamp {
		return false
	}

	if ma.BodyKind == model.BodyRegular {
		// Rule 4: rich text equal after style-normalization; plain text and
		// link structure must match exactly (EqualNormalized enforces both).
		if !ma.RichText.EqualNormalized(mb.RichText) {
			return false
		}
		// Rule 5: content media-presence asymmetry.
		if !contentEquivalent(ma.Content, a.Root, mb.Content, b.Root) {
			return false
		}
		return true
	}

	// Rule 6: group-edit-photo and suggest-profile-photo carry an image
	// subject to the same presence-asymmetry rule as rule 5; every other
	// Service subtype carries no further comparable payload under the six
	// rules above.
	switch ma.Service.Subtype {
	case model.ServiceGroupEditPhoto, model.ServiceSuggestProfilePhoto:
		return mediaPresentEqual(ma.Service.ImagePath, a.Root, mb.Service.ImagePath, b.Root)
	default:
		return true
	}
}

// contentEquivalent compares two optional Content values under rule 5: if
// both sides carry a media variant, metadata must match except that a
// path-bearing field may be absent or unresolvable on either side as long
// as the other side's file is also missing. Raw relative paths are never
// compared directly, since they are meaningless across different dataset
// roots.
func contentEquivalent(a *model.Content, rootA string, b *model.Content, rootB string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind != b.Kind {
		return false
	}
	if !mediaPresentEqual(a.Path, rootA, b.Path, rootB) {
		return false
	}
	if !mediaPresentEqual(a.ThumbnailPath, rootA, b.ThumbnailPath, rootB) {
		return false
	}
	switch a.Kind {
	case model.ContentLocation:
		return a.Latitude == b.Latitude && a.Longitude == b.Longitude && a.Address == b.Address
	case model.ContentPoll:
		return a.PollQuestion == b.PollQuestion
	case model.ContentSharedContact:
		if !mediaPresentEqual(a.VCardPath, rootA, b.VCardPath, rootB) {
			return false
		}
		return a.ContactFirstName == b.ContactFirstName &&
			a.ContactLastName == b.ContactLastName &&
			a.ContactPhone == b.ContactPhone
	default:
		return a.MimeType == b.MimeType &&
			a.Width == b.Width &&
			a.Height == b.Height &&
			a.DurationSec == b.DurationSec &&
			a.FileName == b.FileName
	}
}

// mediaPresentEqual implements the presence-asymmetry rule: the two sides
// match when the file is present on both or on neither, so media missing on
// both sides never breaks equivalence, while a file present on only one side
// does. The paths themselves are not compared. When a root is given, presence
// is re-resolved against the live filesystem rather than trusting the stored
// Found flag; with an empty root the Found flag is used.
func mediaPresentEqual(a model.MediaPath, rootA string, b model.MediaPath, rootB string) bool {
	aPresent := resolvedFound(rootA, a)
	bPresent := resolvedFound(rootB, b)
	return aPresent == bPresent
}

func resolvedFound(root string, mp model.MediaPath) bool {
	if !mp.Set {
		return false
	}
	if root == "" {
		return mp.Found
	}
	_, err := os.Stat(filepath.Join(root, mp.Path))
	return err == nil
}
