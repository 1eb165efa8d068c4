package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"matchchat/internal/logging"
	"matchchat/internal/types"

	_ "modernc.org/sqlite"
)

// Archive persists server-confirmed messages in SQLite so a restart can warm
// the message store before the first poll lands. Rows are insert-only.
type Archive struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// OpenArchive initializes the SQLite database at the given path.
func OpenArchive(path string) (*Archive, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &Archive{db: db, dbPath: path}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("archive opened at %s", path)
	return a, nil
}

// initialize migrates an older archive in place, then creates the required tables.
func (a *Archive) initialize() error {
	if err := RunMigrations(a.db); err != nil {
		return fmt.Errorf("failed to migrate archive: %w", err)
	}

	messagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		channel_id INTEGER NOT NULL,
		id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		ts_ms INTEGER NOT NULL,
		avatar_ref TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (channel_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_order ON messages(channel_id, ts_ms, id);
	`
	if _, err := a.db.Exec(messagesTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if !tableExists(a.db, "schema_versions") {
		return SetSchemaVersion(a.db, CurrentSchemaVersion)
	}
	return nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// archivable filters out local-only rows: the assistant transcript and system notices.
func archivable(m types.Message) bool {
	return m.ChannelID != types.AssistantChannelID && !m.IsSystem()
}

// SaveMessages implements types.ArchiveSink. Existing (channel, id) rows are left untouched.
func (a *Archive) SaveMessages(msgs []types.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO messages (channel_id, id, sender_id, text, ts_ms, avatar_ref) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if !archivable(m) {
			continue
		}
		if _, err := stmt.Exec(m.ChannelID, m.ID, m.SenderID, m.Text, m.TimestampMillis, m.AvatarRef); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// LoadAll returns every archived log keyed by channel, each in display order.
func (a *Archive) LoadAll() (map[int64][]types.Message, error) {
	rows, err := a.db.Query(`SELECT channel_id, id, sender_id, text, ts_ms, avatar_ref FROM messages ORDER BY channel_id, ts_ms, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]types.Message)
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.ChannelID, &m.ID, &m.SenderID, &m.Text, &m.TimestampMillis, &m.AvatarRef); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out[m.ChannelID] = append(out[m.ChannelID], m)
	}
	return out, rows.Err()
}

// Count returns the number of archived messages for channelID.
func (a *Archive) Count(channelID int64) (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE channel_id = ?`, channelID).Scan(&n)
	return n, err
}
