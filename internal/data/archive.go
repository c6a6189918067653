// Package data provides the sqlite-backed message archive.
package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Message directions in the archive.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Record is one archived message.
type Record struct {
	MsgID     string
	Direction string
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// Archive is an append-only log of messages that crossed the bridge.
type Archive struct {
	db *sql.DB
}

// NewArchive opens (creating if needed) the archive database.
func NewArchive(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			msg_id TEXT NOT NULL DEFAULT '',
			direction TEXT NOT NULL,
			channel TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Redelivery of the same vendor event must not produce a second row.
	// Outbound records carry no vendor id, so the constraint only applies
	// to rows that have one.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_msg_id
		ON messages(msg_id, direction) WHERE msg_id != ''
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_chat_created
		ON messages(chat_id, created_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Archive{db: db}, nil
}

// Record appends one message. Rows whose msg_id was already archived for
// the same direction are silently skipped.
func (a *Archive) Record(ctx context.Context, r *Record) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (msg_id, direction, channel, chat_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.MsgID,
		r.Direction,
		r.Channel,
		r.ChatID,
		r.SenderID,
		r.Content,
		r.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

// Recent returns the newest messages for a chat, newest first.
func (a *Archive) Recent(ctx context.Context, chatID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT msg_id, direction, channel, chat_id, sender_id, content, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		var createdAt int64
		if err := rows.Scan(&r.MsgID, &r.Direction, &r.Channel, &r.ChatID, &r.SenderID, &r.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}
