package store

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// Datasets lists every dataset in the store.
func (s *Store) Datasets() ([]model.Dataset, error) {
	var out []model.Dataset
	err := s.withRead(func() error {
		rows, err := s.db.Query(`SELECT uuid, alias, root FROM dataset ORDER BY alias`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw []byte
			var d model.Dataset
			if err := rows.Scan(&raw, &d.Alias, &d.Root); err != nil {
				return err
			}
			u, err := uuid.FromBytes(raw)
			if err != nil {
				return err
			}
			d.UUID = u
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

// InsertDataset creates a new dataset row and its on-disk root directory.
// This is distinct from absorbing a Loader's in-memory dataset: callers
// combine InsertDataset with InsertChat per chat to perform a full import.
func (s *Store) InsertDataset(d model.Dataset) error {
	if err := d.Validate(); err != nil {
		return apperror.InvariantViolated("dataset: %v", err)
	}
	err := s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO dataset(uuid, alias, root) VALUES (?, ?, ?)`,
			d.UUID[:], d.Alias, d.Root)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	if err := os.MkdirAll(s.DatasetRoot(d.Root), 0o755); err != nil {
		return apperror.MediaIO(d.Root, err)
	}
	s.maybeAutoBackup()
	return nil
}

// RenameDataset changes a dataset's alias.
func (s *Store) RenameDataset(dsUUID uuid.UUID, newAlias string) error {
	return s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE dataset SET alias = ? WHERE uuid = ?`, newAlias, dsUUID[:])
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "dataset", dsUUID.String())
	})
}

// DeleteDataset removes a dataset and, via ON DELETE CASCADE, all of its
// users, chats, chat members and messages. Media files on disk are not
// removed by this operation; callers that want that must remove the
// dataset root directory themselves after DeleteDataset succeeds.
func (s *Store) DeleteDataset(dsUUID uuid.UUID) error {
	err := s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM dataset WHERE uuid = ?`, dsUUID[:])
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "dataset", dsUUID.String())
	})
	if err != nil {
		return err
	}
	s.maybeAutoBackup()
	return nil
}

// ShiftDatasetTime adds an integral-hour offset to every message's
// time_sent and time_edited in the dataset, used to correct loaders that
// produced timestamps in an unknown timezone (e.g. the Mail.Ru legacy
// format, per spec.md §9).
func (s *Store) ShiftDatasetTime(dsUUID uuid.UUID, hours int) error {
	seconds := int64(hours) * 3600
	return s.withWrite(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE message SET time_sent = time_sent + ? WHERE ds_uuid = ?`, seconds, dsUUID[:]); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE message SET time_edited = time_edited + ? WHERE ds_uuid = ? AND time_edited IS NOT NULL`, seconds, dsUUID[:])
		return err
	})
}

func requireRowsAffected(res sql.Result, kind, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound(kind, key)
	}
	return nil
}
