package dataset

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// CopyResult holds the summary of a dataset copy operation.
type CopyResult struct {
	Messages int64
	Chats    int64
	Users    int64
	DBSize   int64
	Elapsed  time.Duration
}

// CopySubset copies the rowCount most recently sent messages (and every
// dataset, chat, user and rich-text/content row they reference) from
// srcDBPath into a new database in dstDir. The destination schema is
// initialized using the embedded store schema.
func CopySubset(srcDBPath, dstDir string, rowCount int) (*CopyResult, error) {
	start := time.Now()

	// Track whether we created the directory so cleanup only removes what we made.
	createdDir := false
	if _, err := os.Stat(dstDir); os.IsNotExist(err) {
		createdDir = true
	}

	// Create destination directory
	if err := os.MkdirAll(dstDir, 0700); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	// cleanupDir removes the destination only if CopySubset created it.
	cleanupDir := func() {
		if createdDir {
			_ = os.RemoveAll(dstDir)
		}
	}

	dstDBPath := filepath.Join(dstDir, "chathistmgr.db")

	// Phase 1: Create destination DB with schema using store.Open + InitSchema
	st, err := store.Open(dstDBPath)
	if err != nil {
		cleanupDir()
		return nil, fmt.Errorf("create destination database: %w", err)
	}
	if err := st.InitSchema(); err != nil {
		_ = st.Close()
		cleanupDir()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := st.Close(); err != nil {
		cleanupDir()
		return nil, fmt.Errorf("close schema database: %w", err)
	}

	// Phase 2: Re-open with foreign keys OFF for bulk copy
	dsn := dstDBPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=OFF"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		cleanupDir()
		return nil, fmt.Errorf("reopen database: %w", err)
	}
	// NOTE: On error paths, cleanupDir() may remove the DB file before this
	// deferred Close runs. That is harmless — Close on a deleted file is a no-op.
	defer db.Close()

	// Canonicalize source path for ATTACH (defense in depth — caller should
	// also validate, but CopySubset is public and must not trust its inputs).
	srcDBPath, err = filepath.Abs(filepath.Clean(srcDBPath))
	if err != nil {
		cleanupDir()
		return nil, fmt.Errorf("canonicalize source path: %w", err)
	}
	// Reject control characters (null, newline, tab, etc.) that have no
	// business in a filesystem path and could interfere with SQL parsing.
	for _, r := range srcDBPath {
		if r < 0x20 || r == 0x7F {
			cleanupDir()
			return nil, fmt.Errorf("source database path contains control character (0x%02X)", r)
		}
	}
	escapedSrcPath := strings.ReplaceAll(srcDBPath, "'", "''")

	// Attach source database
	attachSQL := fmt.Sprintf("ATTACH DATABASE '%s' AS src", escapedSrcPath)
	if _, err := db.Exec(attachSQL); err != nil {
		cleanupDir()
		return nil, fmt.Errorf("attach source database: %w", err)
	}

	// Begin transaction for bulk copy
	tx, err := db.Begin()
	if err != nil {
		cleanupDir()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	result, err := copyData(tx, rowCount)
	if err != nil {
		_ = tx.Rollback()
		_, _ = db.Exec("DETACH DATABASE src")
		cleanupDir()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		_, _ = db.Exec("DETACH DATABASE src")
		cleanupDir()
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	// Verify referential integrity. PRAGMA foreign_key_check is a standalone
	// integrity scan that works regardless of the foreign_keys setting.
	// We enable foreign_keys here so subsequent operations (if any) would
	// enforce FK constraints, but the connection is about to close.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		cleanupDir()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	rows, err := db.Query("PRAGMA foreign_key_check")
	if err != nil {
		cleanupDir()
		return nil, fmt.Errorf("foreign key check: %w", err)
	}
	var violations []string
	for rows.Next() {
		var table, rowid, parent, fkid string
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			violations = append(violations, fmt.Sprintf("scan error: %v", err))
		} else {
			violations = append(violations, fmt.Sprintf("%s(rowid=%s) -> %s", table, rowid, parent))
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		cleanupDir()
		return nil, fmt.Errorf("iterate foreign key check: %w", err)
	}
	if err := rows.Close(); err != nil {
		cleanupDir()
		return nil, fmt.Errorf("close foreign key check rows: %w", err)
	}

	if len(violations) > 0 {
		cleanupDir()
		return nil, fmt.Errorf("foreign key violations: %s", strings.Join(violations, "; "))
	}

	// Update denormalized message counts
	if err := updateChatMessageCounts(db); err != nil {
		cleanupDir()
		return nil, fmt.Errorf("update chat message counts: %w", err)
	}

	// Detach source
	if _, err := db.Exec("DETACH DATABASE src"); err != nil {
		cleanupDir()
		return nil, fmt.Errorf("detach source database: %w", err)
	}

	// Get final DB size
	if info, err := os.Stat(dstDBPath); err == nil {
		result.DBSize = info.Size()
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// copyData executes the INSERT INTO ... SELECT statements in dependency order.
func copyData(tx *sql.Tx, rowCount int) (*CopyResult, error) {
	result := &CopyResult{}

	// a. Datasets (all rows — tiny table, a source archive rarely holds more
	// than a handful)
	if _, err := tx.Exec("INSERT INTO dataset SELECT * FROM src.dataset"); err != nil {
		return nil, fmt.Errorf("copy dataset: %w", err)
	}

	// b. Select message internal ids (the N most recently sent)
	if _, err := tx.Exec(`
		CREATE TEMP TABLE selected_messages AS
		SELECT internal_id, ds_uuid, chat_id, from_id
		FROM src.message ORDER BY time_sent DESC LIMIT ?`, rowCount); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	if err := tx.QueryRow("SELECT COUNT(*) FROM selected_messages").Scan(&result.Messages); err != nil {
		return nil, fmt.Errorf("count selected messages: %w", err)
	}

	// c. Chats referenced by selected messages
	res, err := tx.Exec(`
		INSERT INTO chat SELECT * FROM src.chat
		WHERE (ds_uuid, id) IN (SELECT DISTINCT ds_uuid, chat_id FROM selected_messages)`)
	if err != nil {
		return nil, fmt.Errorf("copy chat: %w", err)
	}
	if result.Chats, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("chat rows affected: %w", err)
	}

	// d. Users referenced by selected messages' senders or as members of
	// copied chats
	res, err = tx.Exec(`
		INSERT INTO user SELECT * FROM src.user
		WHERE (ds_uuid, id) IN (SELECT DISTINCT ds_uuid, from_id FROM selected_messages)
		   OR (ds_uuid, id) IN (
		       SELECT cm.ds_uuid, cm.user_id FROM src.chat_member cm
		       WHERE (cm.ds_uuid, cm.chat_id) IN (SELECT ds_uuid, id FROM chat)
		   )`)
	if err != nil {
		return nil, fmt.Errorf("copy user: %w", err)
	}
	if result.Users, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("user rows affected: %w", err)
	}

	// e. Chat membership for copied chats and users
	if _, err := tx.Exec(`
		INSERT INTO chat_member SELECT * FROM src.chat_member
		WHERE (ds_uuid, chat_id) IN (SELECT ds_uuid, id FROM chat)
		  AND (ds_uuid, user_id) IN (SELECT ds_uuid, id FROM user)`); err != nil {
		return nil, fmt.Errorf("copy chat_member: %w", err)
	}

	// f. Messages
	if _, err := tx.Exec(`
		INSERT INTO message SELECT * FROM src.message
		WHERE internal_id IN (SELECT internal_id FROM selected_messages)`); err != nil {
		return nil, fmt.Errorf("copy message: %w", err)
	}

	// g. Rich-text elements for copied messages
	if _, err := tx.Exec(`
		INSERT INTO message_text_element SELECT * FROM src.message_text_element
		WHERE message_internal_id IN (SELECT internal_id FROM selected_messages)`); err != nil {
		return nil, fmt.Errorf("copy message_text_element: %w", err)
	}

	// h. Typed content for copied messages
	if _, err := tx.Exec(`
		INSERT INTO message_content SELECT * FROM src.message_content
		WHERE message_internal_id IN (SELECT internal_id FROM selected_messages)`); err != nil {
		return nil, fmt.Errorf("copy message_content: %w", err)
	}

	// Clean up temp table. On rollback this DROP won't execute, but that's
	// fine — temp tables are connection-scoped and cleaned up on db.Close().
	if _, err := tx.Exec("DROP TABLE IF EXISTS selected_messages"); err != nil {
		return nil, fmt.Errorf("drop temp table: %w", err)
	}

	return result, nil
}

// updateChatMessageCounts updates the denormalized msg_count on copied chats
// to be consistent with the subset of messages actually copied.
func updateChatMessageCounts(db *sql.DB) error {
	_, err := db.Exec(`
		UPDATE chat SET
			msg_count = (SELECT COUNT(*) FROM message
			             WHERE message.ds_uuid = chat.ds_uuid AND message.chat_id = chat.id)`)
	return err
}

func isSafeFilename(filename string) bool {
	// Reject absolute paths and those with null bytes or path separators
	if filepath.IsAbs(filename) || strings.ContainsAny(filename, "\x00/\\") {
		return false
	}
	// Clean and check for traversal (ensures no ".." escapes)
	cleaned := filepath.Clean(filename)
	return filepath.IsLocal(cleaned)
}

// CopyFileIfExists copies a single file from src to dst.
// Returns nil if the source file does not exist.
// Both paths must be absolute. containDir is the root directory that src
// must resolve within after symlink resolution (e.g. the dataset root).
// This prevents a symlink in the source dataset from reading files outside
// the dataset.
func CopyFileIfExists(src, dst, containDir string) error {
	// Validate paths are absolute
	if !filepath.IsAbs(src) || !filepath.IsAbs(dst) {
		return fmt.Errorf("paths must be absolute: src=%q, dst=%q", src, dst)
	}
	if !filepath.IsAbs(containDir) {
		return fmt.Errorf("containDir must be absolute: %q", containDir)
	}

	// Resolve symlinks in src and verify containment within containDir.
	resolvedSrc, err := filepath.EvalSymlinks(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("resolve source file %s: %w", src, err)
	}
	resolvedContainDir, err := filepath.EvalSymlinks(containDir)
	if err != nil {
		return fmt.Errorf("resolve contain directory %s: %w", containDir, err)
	}
	rel, err := filepath.Rel(resolvedContainDir, resolvedSrc)
	if err != nil || !isSafeFilename(rel) {
		return fmt.Errorf("source file %s resolves outside %s (symlink escape)", src, containDir)
	}

	srcFile, err := os.Open(resolvedSrc)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open source file %s: %w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination file %s: %w", dst, err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	if err := dstFile.Sync(); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("sync destination file %s: %w", dst, err)
	}

	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("close destination file %s: %w", dst, err)
	}

	return nil
}
