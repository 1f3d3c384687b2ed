package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// Users lists a dataset's users with myself first, then stable order by id.
func (s *Store) Users(dsUUID uuid.UUID) ([]model.User, error) {
	var out []model.User
	err := s.withRead(func() error {
		rows, err := s.db.Query(`
			SELECT id, first_name, last_name, username, phone_numbers_serialized, is_myself
			FROM user WHERE ds_uuid = ?
			ORDER BY is_myself DESC, id ASC`, dsUUID[:])
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			u := model.User{DatasetUUID: dsUUID}
			var firstName, lastName, username, phonesJSON sql.NullString
			var isMyself int
			if err := rows.Scan(&u.ID, &firstName, &lastName, &username, &phonesJSON, &isMyself); err != nil {
				return err
			}
			u.FirstName = firstName.String
			u.LastName = lastName.String
			u.Username = username.String
			u.IsMyself = isMyself != 0
			if phonesJSON.Valid && phonesJSON.String != "" {
				if err := json.Unmarshal([]byte(phonesJSON.String), &u.PhoneNumbers); err != nil {
					return fmt.Errorf("decode phone_numbers for user %d: %w", u.ID, err)
				}
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	return out, err
}

// InsertUser adds a new user to an existing dataset.
func (s *Store) InsertUser(u model.User) error {
	return s.withWrite(func(tx *sql.Tx) error { return insertUserTx(tx, u) })
}

func insertUserTx(tx *sql.Tx, u model.User) error {
	var phonesJSON []byte
	if len(u.PhoneNumbers) > 0 {
		var err error
		phonesJSON, err = json.Marshal(u.PhoneNumbers)
		if err != nil {
			return err
		}
	}
	_, err := tx.Exec(`
		INSERT INTO user(ds_uuid, id, first_name, last_name, username, phone_numbers_serialized, is_myself)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.DatasetUUID[:], u.ID, nullIfEmpty(u.FirstName), nullIfEmpty(u.LastName), nullIfEmpty(u.Username),
		nullIfEmptyBytes(phonesJSON), boolToInt(u.IsMyself))
	return err
}

// UpdateUser patches first/last name, username and phone numbers only; id
// and dataset are immutable, per spec.md §4.1.
func (s *Store) UpdateUser(u model.User) error {
	var phonesJSON []byte
	if len(u.PhoneNumbers) > 0 {
		var err error
		phonesJSON, err = json.Marshal(u.PhoneNumbers)
		if err != nil {
			return err
		}
	}
	return s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE user SET first_name = ?, last_name = ?, username = ?, phone_numbers_serialized = ?
			WHERE ds_uuid = ? AND id = ?`,
			nullIfEmpty(u.FirstName), nullIfEmpty(u.LastName), nullIfEmpty(u.Username), nullIfEmptyBytes(phonesJSON),
			u.DatasetUUID[:], u.ID)
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "user", fmt.Sprintf("%s/%d", u.DatasetUUID, u.ID))
	})
}

// MergeUsers rewrites every reference from absorbed to base within the same
// dataset: message.from_id, chat_member.user_id and dataset's chat
// ownership, moves absorbed's personal chat's messages into base's personal
// chat and removes absorbed's chat (if base has none, absorbed's personal
// chat is kept and becomes base's through the member rewrite), then deletes
// absorbed.
func (s *Store) MergeUsers(dsUUID uuid.UUID, base, absorbed int64) error {
	if base == absorbed {
		return apperror.InvariantViolated("cannot merge user %d into itself", base)
	}
	return s.withWrite(func(tx *sql.Tx) error {
		baseChat, absorbedChat, err := personalChatsOf(tx, dsUUID, base, absorbed)
		if err != nil {
			return err
		}

		if absorbedChat != 0 && absorbedChat != baseChat {
			target := baseChat
			if target == 0 {
				target = absorbedChat // base has no personal chat yet: reuse absorbed's
			} else {
				if _, err := tx.Exec(`UPDATE message SET chat_id = ? WHERE ds_uuid = ? AND chat_id = ?`,
					target, dsUUID[:], absorbedChat); err != nil {
					return err
				}
				if _, err := tx.Exec(`DELETE FROM chat WHERE ds_uuid = ? AND id = ?`, dsUUID[:], absorbedChat); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Exec(`UPDATE message SET from_id = ? WHERE ds_uuid = ? AND from_id = ?`,
			base, dsUUID[:], absorbed); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			UPDATE OR IGNORE chat_member SET user_id = ? WHERE ds_uuid = ? AND user_id = ?`,
			base, dsUUID[:], absorbed); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM chat_member WHERE ds_uuid = ? AND user_id = ?`, dsUUID[:], absorbed); err != nil {
			return err
		}

		res, err := tx.Exec(`DELETE FROM user WHERE ds_uuid = ? AND id = ?`, dsUUID[:], absorbed)
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "user", fmt.Sprintf("%s/%d", dsUUID, absorbed))
	})
}

// personalChatsOf returns the id of base's and absorbed's personal
// (one-on-one) chat, or 0 if either has none.
func personalChatsOf(tx *sql.Tx, dsUUID uuid.UUID, base, absorbed int64) (baseChat, absorbedChat int64, err error) {
	find := func(userID int64) (int64, error) {
		var id int64
		err := tx.QueryRow(`
			SELECT c.id FROM chat c
			JOIN chat_member cm ON cm.ds_uuid = c.ds_uuid AND cm.chat_id = c.id
			WHERE c.ds_uuid = ? AND c.type = ? AND cm.user_id = ?
			LIMIT 1`, dsUUID[:], model.ChatPersonal, userID).Scan(&id)
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return id, err
	}
	if baseChat, err = find(base); err != nil {
		return
	}
	absorbedChat, err = find(absorbed)
	return
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmptyBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
