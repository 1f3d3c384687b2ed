package whatsappdb

import (
	"database/sql"
	"fmt"
	"strings"
)

// fetchChats returns every non-hidden chat, least recently active first.
func fetchChats(db *sql.DB) ([]waChat, error) {
	rows, err := db.Query(`
		SELECT
			c._id,
			c.jid_row_id,
			j.raw_string,
			COALESCE(j.user, ''),
			COALESCE(j.server, ''),
			c.subject,
			COALESCE(c.group_type, 0),
			COALESCE(c.sort_timestamp, 0)
		FROM chat c
		JOIN jid j ON c.jid_row_id = j._id
		WHERE COALESCE(c.hidden, 0) = 0
		ORDER BY c.sort_timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}
	defer rows.Close()

	var chats []waChat
	for rows.Next() {
		var c waChat
		if err := rows.Scan(&c.RowID, &c.JIDRowID, &c.RawString, &c.User, &c.Server,
			&c.Subject, &c.GroupType, &c.SortStamp); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// fetchMessages returns up to limit messages of chatRowID with message._id >
// afterID, ordered ascending, for lazy batch paging over a chat.
func fetchMessages(db *sql.DB, chatRowID, afterID int64, limit int) ([]waMessage, error) {
	rows, err := db.Query(`
		SELECT
			m._id,
			m.chat_row_id,
			COALESCE(m.from_me, 0),
			COALESCE(m.key_id, ''),
			m.sender_jid_row_id,
			sj.user,
			sj.server,
			COALESCE(m.timestamp, 0),
			COALESCE(m.message_type, 0),
			m.text_data,
			COALESCE(m.starred, 0)
		FROM message m
		LEFT JOIN jid sj ON m.sender_jid_row_id = sj._id
		WHERE m.chat_row_id = ? AND m._id > ?
		ORDER BY m._id ASC
		LIMIT ?
	`, chatRowID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer rows.Close()

	var out []waMessage
	for rows.Next() {
		var m waMessage
		if err := rows.Scan(&m.RowID, &m.ChatRowID, &m.FromMe, &m.KeyID,
			&m.SenderJID, &m.SenderUser, &m.SenderServer,
			&m.Timestamp, &m.MessageType, &m.TextData, &m.Starred); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// fetchMedia batch-resolves message_media rows for a set of message ids,
// chunked to stay within SQLite's bound-parameter limit.
func fetchMedia(db *sql.DB, messageRowIDs []int64) (map[int64]waMedia, error) {
	result := make(map[int64]waMedia)
	return result, chunkedIn(messageRowIDs, func(placeholders string, args []interface{}) error {
		query := fmt.Sprintf(`
			SELECT mm.message_row_id, mm.mime_type, mm.media_caption, mm.file_size,
			       mm.file_path, mm.width, mm.height, mm.media_duration
			FROM message_media mm
			WHERE mm.message_row_id IN (%s)
		`, placeholders)
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("fetch media: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var m waMedia
			if err := rows.Scan(&id, &m.MimeType, &m.MediaCaption, &m.FileSize,
				&m.FilePath, &m.Width, &m.Height, &m.DurationSec); err != nil {
				return fmt.Errorf("scan media: %w", err)
			}
			result[id] = m
		}
		return rows.Err()
	})
}

// fetchQuoted batch-resolves message_quoted rows for a set of message ids.
func fetchQuoted(db *sql.DB, messageRowIDs []int64) (map[int64]waQuoted, error) {
	result := make(map[int64]waQuoted)
	err := chunkedIn(messageRowIDs, func(placeholders string, args []interface{}) error {
		query := fmt.Sprintf(`
			SELECT mq.message_row_id, mq.key_id
			FROM message_quoted mq
			WHERE mq.message_row_id IN (%s) AND mq.key_id IS NOT NULL AND mq.key_id != ''
		`, placeholders)
		rows, err := db.Query(query, args...)
		if err != nil {
			if isTableNotFound(err) {
				return nil
			}
			return fmt.Errorf("fetch quoted: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var q waQuoted
			if err := rows.Scan(&id, &q.QuotedKeyID); err != nil {
				return fmt.Errorf("scan quoted: %w", err)
			}
			result[id] = q
		}
		return rows.Err()
	})
	return result, err
}

// fetchGroupParticipants returns every participant of the group keyed by
// groupJIDRawString, resolved to a stable jid row id.
func fetchGroupParticipants(db *sql.DB, groupJIDRawString string) ([]waGroupMember, error) {
	rows, err := db.Query(`
		SELECT j._id, COALESCE(j.user, ''), COALESCE(j.server, '')
		FROM group_participants gp
		JOIN jid j ON gp.jid = j.raw_string
		WHERE gp.gjid = ?
	`, groupJIDRawString)
	if err != nil {
		return nil, fmt.Errorf("fetch group participants: %w", err)
	}
	defer rows.Close()

	var out []waGroupMember
	for rows.Next() {
		var m waGroupMember
		if err := rows.Scan(&m.MemberJIDRowID, &m.MemberUser, &m.MemberServer); err != nil {
			return nil, fmt.Errorf("scan group participant: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// chunkedIn runs fn once per chunkSize-sized slice of ids, building its own
// "(?,?,...)" placeholder string and argument list each time.
func chunkedIn(ids []int64, fn func(placeholders string, args []interface{}) error) error {
	if len(ids) == 0 {
		return nil
	}
	const chunkSize = 500
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]
		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for j, id := range chunk {
			placeholders[j] = "?"
			args[j] = id
		}
		if err := fn(strings.Join(placeholders, ","), args); err != nil {
			return err
		}
	}
	return nil
}

func isTableNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func verifyWhatsAppDB(db *sql.DB) error {
	for _, table := range []string{"message", "jid", "chat"} {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count)
		if err != nil {
			return fmt.Errorf("check whatsapp db: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("not a valid WhatsApp database: %q table not found", table)
		}
	}
	return nil
}
