// Package database manages the SQLite schema for chat history, settings
// and usage tracking.
package database

import (
	"database/sql"
	"fmt"
)

const migrationsSQL = `
-- Chats table
CREATE TABLE IF NOT EXISTS chats (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT 'New Chat',
    backend TEXT NOT NULL DEFAULT 'ollama',
    model TEXT NOT NULL DEFAULT '',
    assistant_id TEXT NOT NULL DEFAULT '',
    pinned INTEGER NOT NULL DEFAULT 0,
    archived INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Messages table
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    chat_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content TEXT NOT NULL,
    backend TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    response_tokens INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
);

-- Settings table (key-value store for simple settings)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Usage events table (per-request analytics)
CREATE TABLE IF NOT EXISTS usage_events (
    id TEXT PRIMARY KEY,
    backend TEXT NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    assistant_id TEXT NOT NULL DEFAULT '',
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    response_tokens INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    success INTEGER NOT NULL DEFAULT 1,
    error_kind TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Indexes for better query performance
CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);
CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_usage_events_backend ON usage_events(backend);
CREATE INDEX IF NOT EXISTS idx_usage_events_created_at ON usage_events(created_at);
`

// RunMigrations executes all database migrations.
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(migrationsSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Add assistant_id to older databases that predate assistants.
	// SQLite has no IF NOT EXISTS for ALTER TABLE, so check first.
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('chats') WHERE name='assistant_id'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check assistant_id column: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`ALTER TABLE chats ADD COLUMN assistant_id TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add assistant_id column: %w", err)
		}
	}

	return nil
}
