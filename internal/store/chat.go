package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// Chats lists a dataset's chats bundled with their resolved member users and
// last message, per spec.md §4.1.
func (s *Store) Chats(dsUUID uuid.UUID) ([]model.ChatWithDetails, error) {
	var out []model.ChatWithDetails
	err := s.withRead(func() error {
		chats, err := s.loadChats(dsUUID)
		if err != nil {
			return err
		}
		usersByID, err := usersByIDMap(s.db, dsUUID)
		if err != nil {
			return err
		}
		for _, c := range chats {
			detail := model.ChatWithDetails{Chat: c}
			for _, mid := range c.MemberIDs {
				if u, ok := usersByID[mid]; ok {
					detail.Members = append(detail.Members, u)
				}
			}
			last, err := s.lastMessageOf(dsUUID, c.ID)
			if err != nil {
				return err
			}
			detail.LastMessage = last
			out = append(out, detail)
		}
		return nil
	})
	return out, err
}

func (s *Store) loadChats(dsUUID uuid.UUID) ([]model.Chat, error) {
	rows, err := s.db.Query(`
		SELECT id, name, source_type, type, msg_count, img_path, img_path_found, main_chat_id
		FROM chat WHERE ds_uuid = ? ORDER BY id`, dsUUID[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		c := model.Chat{DatasetUUID: dsUUID}
		var name, imgPath sql.NullString
		var imgFound int
		var mainChatID sql.NullInt64
		if err := rows.Scan(&c.ID, &name, &c.SourceType, &c.Type, &c.MsgCount, &imgPath, &imgFound, &mainChatID); err != nil {
			return nil, err
		}
		c.Name = name.String
		if imgPath.Valid {
			c.ImgPath = imgPath.String
		}
		if mainChatID.Valid {
			v := mainChatID.Int64
			c.MainChatID = &v
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range chats {
		members, err := chatMemberIDs(s.db, dsUUID, chats[i].ID)
		if err != nil {
			return nil, err
		}
		chats[i].MemberIDs = members
	}
	return chats, nil
}

func chatMemberIDs(db *sql.DB, dsUUID uuid.UUID, chatID int64) ([]int64, error) {
	rows, err := db.Query(`
		SELECT user_id FROM chat_member WHERE ds_uuid = ? AND chat_id = ? ORDER BY order_num`,
		dsUUID[:], chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func usersByIDMap(db *sql.DB, dsUUID uuid.UUID) (map[int64]model.User, error) {
	rows, err := db.Query(`
		SELECT id, first_name, last_name, username, is_myself FROM user WHERE ds_uuid = ?`, dsUUID[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]model.User)
	for rows.Next() {
		u := model.User{DatasetUUID: dsUUID}
		var first, last, username sql.NullString
		var isMyself int
		if err := rows.Scan(&u.ID, &first, &last, &username, &isMyself); err != nil {
			return nil, err
		}
		u.FirstName, u.LastName, u.Username = first.String, last.String, username.String
		u.IsMyself = isMyself != 0
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *Store) lastMessageOf(dsUUID uuid.UUID, chatID int64) (*model.Message, error) {
	row := s.db.QueryRow(`
		SELECT internal_id FROM message WHERE ds_uuid = ? AND chat_id = ?
		ORDER BY time_sent DESC, internal_id DESC LIMIT 1`, dsUUID[:], chatID)
	var internalID int64
	if err := row.Scan(&internalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	msg, err := s.messageByInternalIDTx(s.db, dsUUID, chatID, internalID)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// InsertChat inserts a new chat, its members, and copies its image (if any)
// from srcRoot into the dataset's own root, per spec.md §4.1.
func (s *Store) InsertChat(srcRoot string, chat model.Chat) error {
	destRoot, err := s.datasetRootFor(chat.DatasetUUID)
	if err != nil {
		return err
	}
	imgPath, err := resolveAndCopyMedia(pathOf(chat.ImgPath), srcRoot, destRoot, chatMediaDir(chat.ID))
	if err != nil {
		return err
	}
	err = s.withWrite(func(tx *sql.Tx) error {
		var mainChatID interface{}
		if chat.MainChatID != nil {
			mainChatID = *chat.MainChatID
		}
		if _, err := tx.Exec(`
			INSERT INTO chat(ds_uuid, id, name, source_type, type, msg_count, img_path, img_path_found, main_chat_id)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			chat.DatasetUUID[:], chat.ID, nullIfEmpty(chat.Name), string(chat.SourceType), string(chat.Type),
			nullableMediaPath(imgPath), boolToInt(imgPath.Found), mainChatID); err != nil {
			return err
		}
		for order, uid := range chat.MemberIDs {
			if _, err := tx.Exec(`
				INSERT INTO chat_member(ds_uuid, chat_id, user_id, order_num) VALUES (?, ?, ?, ?)`,
				chat.DatasetUUID[:], chat.ID, uid, order); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.maybeAutoBackup()
	return nil
}

// DeleteChat removes a chat and its messages/members.
func (s *Store) DeleteChat(dsUUID uuid.UUID, chatID int64) error {
	err := s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM chat WHERE ds_uuid = ? AND id = ?`, dsUUID[:], chatID)
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "chat", fmt.Sprintf("%s/%d", dsUUID, chatID))
	})
	if err != nil {
		return err
	}
	s.maybeAutoBackup()
	return nil
}

func chatMediaDir(chatID int64) string { return fmt.Sprintf("chat_%d", chatID) }

// datasetRootFor resolves a dataset's filesystem root directory by uuid.
func (s *Store) datasetRootFor(dsUUID uuid.UUID) (string, error) {
	var root string
	if err := s.db.QueryRow(`SELECT root FROM dataset WHERE uuid = ?`, dsUUID[:]).Scan(&root); err != nil {
		if err == sql.ErrNoRows {
			return "", apperror.NotFound("dataset", dsUUID.String())
		}
		return "", err
	}
	return s.DatasetRoot(root), nil
}

func pathOf(s string) model.MediaPath {
	if s == "" {
		return model.MediaPath{}
	}
	return model.MediaPath{Set: true, Path: s, Found: true}
}

func nullableMediaPath(mp model.MediaPath) interface{} {
	if mp.Absent() {
		return nil
	}
	return mp.Path
}
