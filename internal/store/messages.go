package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// InsertMessages absorbs a Loader-produced (or Merge-Executor-replayed)
// ordered message list into an existing chat, copying each message's
// content media from srcRoot into the destination dataset's own root and
// rewriting paths relative to it, per spec.md §4.1. internal_id on each
// input message is ignored; the store assigns its own.
func (s *Store) InsertMessages(srcRoot string, chat model.Chat, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	destDatasetRoot, err := s.datasetRootFor(chat.DatasetUUID)
	if err != nil {
		return err
	}
	return s.withWrite(func(tx *sql.Tx) error {
		for _, m := range msgs {
			if err := insertOneMessageTx(tx, srcRoot, destDatasetRoot, chat, m); err != nil {
				if isUniqueConstraintError(err) {
					var sid int64
					if m.SourceID != nil {
						sid = *m.SourceID
					}
					return apperror.Conflict(chat.ID, sid)
				}
				return err
			}
		}
		_, err := tx.Exec(`UPDATE chat SET msg_count = msg_count + ? WHERE ds_uuid = ? AND id = ?`,
			len(msgs), chat.DatasetUUID[:], chat.ID)
		return err
	})
}

func insertOneMessageTx(tx *sql.Tx, srcRoot, destDatasetRoot string, chat model.Chat, m model.Message) error {
	var sourceID interface{}
	if m.SourceID != nil {
		sourceID = *m.SourceID
	}
	var editTS, replyTo interface{}
	if m.EditTimestamp != nil {
		editTS = *m.EditTimestamp
	}
	if m.ReplyToSourceID != nil {
		replyTo = *m.ReplyToSourceID
	}

	var serviceSubtype, memberNamesJSON interface{}
	var svcImgPath interface{}
	svcImgFound := 0
	if m.BodyKind == model.BodyService && m.Service != nil {
		serviceSubtype = string(m.Service.Subtype)
		if len(m.Service.MemberNames) > 0 {
			b, err := json.Marshal(m.Service.MemberNames)
			if err != nil {
				return err
			}
			memberNamesJSON = string(b)
		}
		copied, err := resolveAndCopyMedia(m.Service.ImagePath, srcRoot, destDatasetRoot, chatMediaDir(chat.ID))
		if err != nil {
			return err
		}
		svcImgPath = nullableMediaPath(copied)
		svcImgFound = boolToInt(copied.Found)
	}

	res, err := tx.Exec(`
		INSERT INTO message(
			ds_uuid, chat_id, source_id, body_kind, service_subtype, from_id,
			time_sent, time_edited, is_deleted, forward_from_name, reply_to_source_id,
			searchable_string, service_member_names, service_img_path, service_img_path_found
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.DatasetUUID[:], chat.ID, sourceID, string(m.BodyKind), serviceSubtype, m.FromUserID,
		m.Timestamp, editTS, boolToInt(m.IsDeleted), nullIfEmpty(m.ForwardFromName), replyTo,
		m.SearchableString(), memberNamesJSON, svcImgPath, svcImgFound)
	if err != nil {
		return err
	}
	internalID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if m.BodyKind == model.BodyRegular {
		for order, elem := range m.RichText.Elements {
			if _, err := tx.Exec(`
				INSERT INTO message_text_element(message_internal_id, elem_order, kind, text, href, hidden, language)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				internalID, order, string(elem.Kind), elem.Text, nullIfEmpty(elem.Href), boolToInt(elem.Hidden), nullIfEmpty(elem.Language)); err != nil {
				return err
			}
		}
		if m.Content != nil {
			if err := insertContentTx(tx, internalID, srcRoot, destDatasetRoot, chat.ID, *m.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertContentTx(tx *sql.Tx, internalID int64, srcRoot, destDatasetRoot string, chatID int64, c model.Content) error {
	path, err := resolveAndCopyMedia(c.Path, srcRoot, destDatasetRoot, chatMediaDir(chatID))
	if err != nil {
		return err
	}
	thumb, err := resolveAndCopyMedia(c.ThumbnailPath, srcRoot, destDatasetRoot, chatMediaDir(chatID))
	if err != nil {
		return err
	}
	vcard, err := resolveAndCopyMedia(c.VCardPath, srcRoot, destDatasetRoot, chatMediaDir(chatID))
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO message_content(
			message_internal_id, kind, path, path_found, thumbnail_path, thumbnail_path_found,
			mime_type, width, height, duration_sec, file_name, file_size_bytes,
			latitude, longitude, address, poll_question,
			contact_first_name, contact_last_name, contact_phone, vcard_path, vcard_path_found
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		internalID, string(c.Kind), nullableMediaPath(path), boolToInt(path.Found),
		nullableMediaPath(thumb), boolToInt(thumb.Found),
		nullIfEmpty(c.MimeType), nullIfZeroInt(c.Width), nullIfZeroInt(c.Height), nullIfZeroInt(c.DurationSec),
		nullIfEmpty(c.FileName), nullIfZeroInt64(c.FileSizeBytes),
		c.Latitude, c.Longitude, nullIfEmpty(c.Address), nullIfEmpty(c.PollQuestion),
		nullIfEmpty(c.ContactFirstName), nullIfEmpty(c.ContactLastName), nullIfEmpty(c.ContactPhone),
		nullableMediaPath(vcard), boolToInt(vcard.Found))
	return err
}

func nullIfZeroInt(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfZeroInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

const messageColumns = `internal_id, ds_uuid, chat_id, source_id, body_kind, service_subtype, from_id,
	time_sent, time_edited, is_deleted, forward_from_name, reply_to_source_id,
	service_member_names, service_img_path, service_img_path_found`

func scanMessageRow(rows *sql.Rows) (model.Message, error) {
	var m model.Message
	var raw []byte
	var sourceID, editTS, replyTo sql.NullInt64
	var serviceSubtype, memberNamesJSON, svcImgPath sql.NullString
	var forwardFrom sql.NullString
	var svcImgFound int
	err := rows.Scan(&m.InternalID, &raw, &m.ChatID, &sourceID, &m.BodyKind, &serviceSubtype, &m.FromUserID,
		&m.Timestamp, &editTS, &m.IsDeleted, &forwardFrom, &replyTo,
		&memberNamesJSON, &svcImgPath, &svcImgFound)
	if err != nil {
		return m, err
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return m, err
	}
	m.DatasetUUID = u
	if sourceID.Valid {
		v := sourceID.Int64
		m.SourceID = &v
	}
	if editTS.Valid {
		v := editTS.Int64
		m.EditTimestamp = &v
	}
	if replyTo.Valid {
		v := replyTo.Int64
		m.ReplyToSourceID = &v
	}
	m.ForwardFromName = forwardFrom.String

	if m.BodyKind == model.BodyService {
		m.Service = &model.ServiceBody{Subtype: model.ServiceSubtype(serviceSubtype.String)}
		if memberNamesJSON.Valid && memberNamesJSON.String != "" {
			if err := json.Unmarshal([]byte(memberNamesJSON.String), &m.Service.MemberNames); err != nil {
				return m, err
			}
		}
		if svcImgPath.Valid {
			m.Service.ImagePath = model.MediaPath{Set: true, Path: svcImgPath.String, Found: svcImgFound != 0}
		}
	}
	return m, nil
}

// hydrateMessages fills in RichText/Content side-table data for Regular
// messages in place, batching lookups via chunked IN-queries.
func hydrateMessages(db *sql.DB, msgs []model.Message) error {
	var regularIDs []int64
	byID := make(map[int64]*model.Message, len(msgs))
	for i := range msgs {
		byID[msgs[i].InternalID] = &msgs[i]
		if msgs[i].BodyKind == model.BodyRegular {
			regularIDs = append(regularIDs, msgs[i].InternalID)
		}
	}
	if len(regularIDs) == 0 {
		return nil
	}

	err := queryInChunks(db, regularIDs, nil, `
		SELECT message_internal_id, elem_order, kind, text, href, hidden, language
		FROM message_text_element WHERE message_internal_id IN (%s) ORDER BY message_internal_id, elem_order`,
		func(rows *sql.Rows) error {
			var mid int64
			var elem model.RichTextElement
			var href, lang sql.NullString
			var hidden int
			var order int
			if err := rows.Scan(&mid, &order, &elem.Kind, &elem.Text, &href, &hidden, &lang); err != nil {
				return err
			}
			elem.Href = href.String
			elem.Hidden = hidden != 0
			elem.Language = lang.String
			if m, ok := byID[mid]; ok {
				m.RichText.Elements = append(m.RichText.Elements, elem)
			}
			return nil
		})
	if err != nil {
		return err
	}

	return queryInChunks(db, regularIDs, nil, `
		SELECT message_internal_id, kind, path, path_found, thumbnail_path, thumbnail_path_found,
			mime_type, width, height, duration_sec, file_name, file_size_bytes,
			latitude, longitude, address, poll_question,
			contact_first_name, contact_last_name, contact_phone, vcard_path, vcard_path_found
		FROM message_content WHERE message_internal_id IN (%s)`,
		func(rows *sql.Rows) error {
			var mid int64
			var c model.Content
			var path, thumb, mime, fileName, address, pollQ, cFirst, cLast, cPhone, vcard sql.NullString
			var width, height, dur sql.NullInt64
			var fileSize sql.NullInt64
			var pathFound, thumbFound, vcardFound int
			var lat, lon sql.NullFloat64
			if err := rows.Scan(&mid, &c.Kind, &path, &pathFound, &thumb, &thumbFound,
				&mime, &width, &height, &dur, &fileName, &fileSize,
				&lat, &lon, &address, &pollQ, &cFirst, &cLast, &cPhone, &vcard, &vcardFound); err != nil {
				return err
			}
			if path.Valid {
				c.Path = model.MediaPath{Set: true, Path: path.String, Found: pathFound != 0}
			}
			if thumb.Valid {
				c.ThumbnailPath = model.MediaPath{Set: true, Path: thumb.String, Found: thumbFound != 0}
			}
			if vcard.Valid {
				c.VCardPath = model.MediaPath{Set: true, Path: vcard.String, Found: vcardFound != 0}
			}
			c.MimeType = mime.String
			c.Width = int(width.Int64)
			c.Height = int(height.Int64)
			c.DurationSec = int(dur.Int64)
			c.FileName = fileName.String
			c.FileSizeBytes = fileSize.Int64
			c.Latitude = lat.Float64
			c.Longitude = lon.Float64
			c.Address = address.String
			c.PollQuestion = pollQ.String
			c.ContactFirstName = cFirst.String
			c.ContactLastName = cLast.String
			c.ContactPhone = cPhone.String
			if m, ok := byID[mid]; ok {
				m.Content = &c
			}
			return nil
		})
}

func queryMessages(db *sql.DB, query string, args ...interface{}) ([]model.Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var out []model.Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := hydrateMessages(db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ScrollMessages returns up to limit messages starting at absolute offset,
// ordered by (timestamp, internal_id).
func (s *Store) ScrollMessages(dsUUID uuid.UUID, chatID int64, offset, limit int) ([]model.Message, error) {
	var out []model.Message
	err := s.withRead(func() error {
		var err error
		out, err = queryMessages(s.db, `
			SELECT `+messageColumns+` FROM message WHERE ds_uuid = ? AND chat_id = ?
			ORDER BY time_sent, internal_id LIMIT ? OFFSET ?`, dsUUID[:], chatID, limit, offset)
		return err
	})
	return out, err
}

// FirstMessages returns the first n messages of a chat in chronological order.
func (s *Store) FirstMessages(dsUUID uuid.UUID, chatID int64, n int) ([]model.Message, error) {
	return s.ScrollMessages(dsUUID, chatID, 0, n)
}

// LastMessages returns the last n messages of a chat in chronological order.
func (s *Store) LastMessages(dsUUID uuid.UUID, chatID int64, n int) ([]model.Message, error) {
	var out []model.Message
	err := s.withRead(func() error {
		rev, err := queryMessages(s.db, `
			SELECT `+messageColumns+` FROM message WHERE ds_uuid = ? AND chat_id = ?
			ORDER BY time_sent DESC, internal_id DESC LIMIT ?`, dsUUID[:], chatID, n)
		if err != nil {
			return err
		}
		out = reverseMessages(rev)
		return nil
	})
	return out, err
}

func reverseMessages(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}

// MessagesBefore returns up to n messages whose sort position is ≤ the
// anchor's, inclusive of the anchor, ordered chronologically; the anchor
// must exist and the result's last element equals it, per spec.md §4.1.
func (s *Store) MessagesBefore(dsUUID uuid.UUID, chatID, anchorID int64, n int) ([]model.Message, error) {
	var out []model.Message
	err := s.withRead(func() error {
		anchor, err := s.messageByInternalIDTx(s.db, dsUUID, chatID, anchorID)
		if err != nil {
			return err
		}
		before, err := queryMessages(s.db, `
			SELECT `+messageColumns+` FROM message
			WHERE ds_uuid = ? AND chat_id = ? AND (time_sent, internal_id) < (?, ?)
			ORDER BY time_sent DESC, internal_id DESC LIMIT ?`,
			dsUUID[:], chatID, anchor.Timestamp, anchor.InternalID, n-1)
		if err != nil {
			return err
		}
		out = append(reverseMessages(before), anchor)
		return nil
	})
	return out, err
}

// MessagesAfter is the dual of MessagesBefore: its first element equals the anchor.
func (s *Store) MessagesAfter(dsUUID uuid.UUID, chatID, anchorID int64, n int) ([]model.Message, error) {
	var out []model.Message
	err := s.withRead(func() error {
		anchor, err := s.messageByInternalIDTx(s.db, dsUUID, chatID, anchorID)
		if err != nil {
			return err
		}
		after, err := queryMessages(s.db, `
			SELECT `+messageColumns+` FROM message
			WHERE ds_uuid = ? AND chat_id = ? AND (time_sent, internal_id) > (?, ?)
			ORDER BY time_sent, internal_id LIMIT ?`,
			dsUUID[:], chatID, anchor.Timestamp, anchor.InternalID, n-1)
		if err != nil {
			return err
		}
		out = append([]model.Message{anchor}, after...)
		return nil
	})
	return out, err
}

// MessagesSlice returns the inclusive range [id1, id2] in sort order; both
// endpoints must exist and appear at the boundaries.
func (s *Store) MessagesSlice(dsUUID uuid.UUID, chatID, id1, id2 int64) ([]model.Message, error) {
	var out []model.Message
	err := s.withRead(func() error {
		a, err := s.messageByInternalIDTx(s.db, dsUUID, chatID, id1)
		if err != nil {
			return err
		}
		b, err := s.messageByInternalIDTx(s.db, dsUUID, chatID, id2)
		if err != nil {
			return err
		}
		var err2 error
		out, err2 = queryMessages(s.db, `
			SELECT `+messageColumns+` FROM message
			WHERE ds_uuid = ? AND chat_id = ? AND (time_sent, internal_id) BETWEEN (?, ?) AND (?, ?)
			ORDER BY time_sent, internal_id`,
			dsUUID[:], chatID, a.Timestamp, a.InternalID, b.Timestamp, b.InternalID)
		return err2
	})
	return out, err
}

// MessagesSliceLength counts the same range as MessagesSlice without
// materializing it.
func (s *Store) MessagesSliceLength(dsUUID uuid.UUID, chatID, id1, id2 int64) (int64, error) {
	var n int64
	err := s.withRead(func() error {
		a, err := s.messageByInternalIDTx(s.db, dsUUID, chatID, id1)
		if err != nil {
			return err
		}
		b, err := s.messageByInternalIDTx(s.db, dsUUID, chatID, id2)
		if err != nil {
			return err
		}
		return s.db.QueryRow(`
			SELECT COUNT(*) FROM message
			WHERE ds_uuid = ? AND chat_id = ? AND (time_sent, internal_id) BETWEEN (?, ?) AND (?, ?)`,
			dsUUID[:], chatID, a.Timestamp, a.InternalID, b.Timestamp, b.InternalID).Scan(&n)
	})
	return n, err
}

// MessagesAroundDate returns n messages strictly before + n messages
// at-or-after the given instant, per spec.md §4.1, grounded on a
// before/target/after context-window read pattern.
func (s *Store) MessagesAroundDate(dsUUID uuid.UUID, chatID int64, at time.Time, n int) ([]model.Message, error) {
	var out []model.Message
	ts := at.Unix()
	err := s.withRead(func() error {
		before, err := queryMessages(s.db, `
			SELECT `+messageColumns+` FROM message WHERE ds_uuid = ? AND chat_id = ? AND time_sent < ?
			ORDER BY time_sent DESC, internal_id DESC LIMIT ?`, dsUUID[:], chatID, ts, n)
		if err != nil {
			return err
		}
		after, err := queryMessages(s.db, `
			SELECT `+messageColumns+` FROM message WHERE ds_uuid = ? AND chat_id = ? AND time_sent >= ?
			ORDER BY time_sent, internal_id LIMIT ?`, dsUUID[:], chatID, ts, n)
		if err != nil {
			return err
		}
		out = append(reverseMessages(before), after...)
		return nil
	})
	return out, err
}

// MessageBySourceID looks up a message by its originating platform id.
func (s *Store) MessageBySourceID(dsUUID uuid.UUID, chatID, sourceID int64) (model.Message, error) {
	var out model.Message
	err := s.withRead(func() error {
		msgs, err := queryMessages(s.db, `
			SELECT `+messageColumns+` FROM message WHERE ds_uuid = ? AND chat_id = ? AND source_id = ?`,
			dsUUID[:], chatID, sourceID)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return apperror.NotFound("message", fmt.Sprintf("source_id=%d", sourceID))
		}
		out = msgs[0]
		return nil
	})
	return out, err
}

// MessageByInternalID looks up a message by its store-local id.
func (s *Store) MessageByInternalID(dsUUID uuid.UUID, chatID, internalID int64) (model.Message, error) {
	var out model.Message
	err := s.withRead(func() error {
		var err error
		out, err = s.messageByInternalIDTx(s.db, dsUUID, chatID, internalID)
		return err
	})
	return out, err
}

func (s *Store) messageByInternalIDTx(db *sql.DB, dsUUID uuid.UUID, chatID, internalID int64) (model.Message, error) {
	msgs, err := queryMessages(db, `
		SELECT `+messageColumns+` FROM message WHERE ds_uuid = ? AND chat_id = ? AND internal_id = ?`,
		dsUUID[:], chatID, internalID)
	if err != nil {
		return model.Message{}, err
	}
	if len(msgs) == 0 {
		return model.Message{}, apperror.NotFound("message", fmt.Sprintf("internal_id=%d", internalID))
	}
	return msgs[0], nil
}
