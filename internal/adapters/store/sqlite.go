// Package store persists shared documents and chat history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dkeye/Coderoom/internal/domain"
)

// DB implements core.DocumentStore and core.MessageStore on a single
// SQLite file.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database under dataDir.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "coderoom.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL for concurrent readers; busy_timeout so the debounced writer
	// waits instead of failing under contention.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			room       TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			language   TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id      TEXT PRIMARY KEY,
			room    TEXT NOT NULL,
			sender  TEXT NOT NULL,
			content TEXT NOT NULL,
			kind    TEXT NOT NULL DEFAULT 'text',
			sent_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages(room, sent_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) SaveDocument(ctx context.Context, room domain.RoomID, doc domain.Document) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO documents (room, content, language, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room) DO UPDATE SET
			content = excluded.content,
			language = excluded.language,
			updated_at = excluded.updated_at
	`, string(room), doc.Content, doc.Language, doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (d *DB) LoadDocument(ctx context.Context, room domain.RoomID) (domain.Document, bool, error) {
	var (
		doc domain.Document
		ts  int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT content, language, updated_at FROM documents WHERE room = ?`,
		string(room)).Scan(&doc.Content, &doc.Language, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("load document: %w", err)
	}
	doc.UpdatedAt = time.Unix(0, ts)
	return doc, true, nil
}

func (d *DB) SaveMessage(ctx context.Context, msg domain.ChatMessage) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO messages (id, room, sender, content, kind, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, string(msg.Room), string(msg.Sender), msg.Content, string(msg.Kind), msg.SentAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit newest messages, oldest first.
func (d *DB) RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, sender, content, kind, sent_at
		FROM messages WHERE room = ?
		ORDER BY sent_at DESC LIMIT ?
	`, string(room), limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var (
			msg domain.ChatMessage
			ts  int64
		)
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Content, &msg.Kind, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Room = room
		msg.SentAt = time.Unix(0, ts)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest-first from the query; flip to arrival order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
