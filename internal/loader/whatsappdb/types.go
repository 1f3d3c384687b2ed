package whatsappdb

import "database/sql"

// waChat mirrors a row from the WhatsApp jid + chat tables: one conversation,
// either a direct chat keyed by its counterpart's JID or a group keyed by its
// own group JID.
type waChat struct {
	RowID      int64 // chat._id
	JIDRowID   int64 // chat.jid_row_id -> jid._id
	RawString  string
	User       string
	Server     string
	Subject    sql.NullString
	GroupType  int // 0 = direct, >0 = group
	SortStamp  int64
}

// waMessage mirrors a row from the WhatsApp message table, joined against
// jid for the sender.
type waMessage struct {
	RowID       int64 // message._id, used as this message's SourceID
	ChatRowID   int64
	FromMe      int
	KeyID       string
	SenderJID   sql.NullInt64
	SenderUser  sql.NullString
	SenderServer sql.NullString
	Timestamp   int64 // milliseconds since epoch
	MessageType int
	TextData    sql.NullString
	Starred     int
}

// waMedia mirrors message_media, one row per media-bearing message.
type waMedia struct {
	MimeType     sql.NullString
	MediaCaption sql.NullString
	FileSize     sql.NullInt64
	FilePath     sql.NullString
	Width        sql.NullInt64
	Height       sql.NullInt64
	DurationSec  sql.NullInt64
}

// waQuoted mirrors message_quoted: the key_id of a message this one replies to.
type waQuoted struct {
	QuotedKeyID string
}

// waGroupMember mirrors one row of group_participants, resolved against jid.
type waGroupMember struct {
	MemberJIDRowID int64
	MemberUser     string
	MemberServer   string
}
