package model

// ContentKind discriminates a Content variant used in Regular message bodies.
type ContentKind string

const (
	ContentSticker        ContentKind = "sticker"
	ContentPhoto          ContentKind = "photo"
	ContentVoiceMessage   ContentKind = "voice-message"
	ContentAudio          ContentKind = "audio"
	ContentVideoMessage   ContentKind = "video-message"
	ContentVideo          ContentKind = "video"
	ContentAnimation      ContentKind = "animation"
	ContentFile           ContentKind = "file"
	ContentLocation       ContentKind = "location"
	ContentPoll           ContentKind = "poll"
	ContentSharedContact  ContentKind = "shared-contact"
)

// MediaPath models the tri-state path contract of spec.md §3/§9: a path is
// either absent (no field set), present and resolved against the dataset
// root (Set && Found), or present but missing on disk (Set && !Found). A
// single sentinel string cannot distinguish "absent" from "not found", so
// this is modeled as an explicit sum instead.
type MediaPath struct {
	Set   bool
	Path  string // relative to the owning dataset root; meaningless unless Set
	Found bool   // whether Path resolved to an existing file at last check
}

// Absent reports whether no path was ever recorded.
func (m MediaPath) Absent() bool { return !m.Set }

// NotFound reports whether a path was recorded but does not resolve to a file.
func (m MediaPath) NotFound() bool { return m.Set && !m.Found }

// Content is the discriminated variant carried by a Regular message body.
// Media-bearing variants carry an optional relative path, thumbnail path,
// dimensions, mime type and duration; only the fields relevant to Kind are
// meaningful.
type Content struct {
	Kind ContentKind

	Path          MediaPath
	ThumbnailPath MediaPath
	MimeType      string
	Width         int
	Height        int
	DurationSec   int
	FileName      string
	FileSizeBytes int64

	// ContentLocation only.
	Latitude  float64
	Longitude float64
	Address   string

	// ContentPoll only.
	PollQuestion string

	// ContentSharedContact only.
	ContactFirstName string
	ContactLastName  string
	ContactPhone     string
	VCardPath        MediaPath
}

// mediaFieldsEqualAllowingMissing implements the §4.3 rule 5 media-presence
// asymmetry: a path-bearing field may be absent or unresolvable on either
// side as long as the other side's file is also missing; two present files
// must match exactly on metadata.
func mediaFieldsEqualAllowingMissing(a, b MediaPath) bool {
	aPresent := a.Set && a.Found
	bPresent := b.Set && b.Found
	if !aPresent && !bPresent {
		return true
	}
	if aPresent != bPresent {
		return false
	}
	return a.Path == b.Path
}

// Equal reports content equivalence per spec.md §4.3 rule 5: same Kind, and
// metadata matches; a media file missing on both sides does not break
// equality, but one present on only one side does.
func (c Content) Equal(other Content) bool {
	if c.Kind != other.Kind {
		return false
	}
	if !mediaFieldsEqualAllowingMissing(c.Path, other.Path) {
		return false
	}
	if !mediaFieldsEqualAllowingMissing(c.ThumbnailPath, other.ThumbnailPath) {
		return false
	}
	switch c.Kind {
	case ContentLocation:
		return c.Latitude == other.Latitude && c.Longitude == other.Longitude && c.Address == other.Address
	case ContentPoll:
		return c.PollQuestion == other.PollQuestion
	case ContentSharedContact:
		return c.ContactFirstName == other.ContactFirstName &&
			c.ContactLastName == other.ContactLastName &&
			c.ContactPhone == other.ContactPhone
	default:
		return c.MimeType == other.MimeType &&
			c.Width == other.Width &&
			c.Height == other.Height &&
			c.DurationSec == other.DurationSec &&
			c.FileName == other.FileName
	}
}
