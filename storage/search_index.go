package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"anvil/chat"

	_ "modernc.org/sqlite"
)

// MessageMatch is one cross-thread search hit.
type MessageMatch struct {
	ThreadID     string
	ThreadName   string
	MessageIndex int
	Role         string
	Preview      string
	Timestamp    time.Time
}

// SearchIndex is a sqlite index of message text across all threads, so
// searching doesn't require loading every thread file.
type SearchIndex struct {
	db *sql.DB
}

func NewSearchIndex(dataDir string) (*SearchIndex, error) {
	dbPath := filepath.Join(dataDir, "search.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open search database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping search database: %w", err)
	}

	index := &SearchIndex{db: db}
	if err := index.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize search database: %w", err)
	}

	return index, nil
}

func (si *SearchIndex) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		thread_id TEXT NOT NULL,
		thread_name TEXT NOT NULL,
		message_index INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		PRIMARY KEY (thread_id, message_index)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
	`

	_, err := si.db.Exec(schema)
	return err
}

// IndexThread replaces a thread's rows with its current messages.
// Checkpoint markers and system messages carry nothing worth searching
// and are skipped.
func (si *SearchIndex) IndexThread(thread *chat.Thread) error {
	tx, err := si.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE thread_id = ?", thread.ID); err != nil {
		return fmt.Errorf("failed to clear thread index: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (thread_id, thread_name, message_index, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range thread.Messages {
		switch msg.Role {
		case chat.RoleSystem, chat.RoleCheckpoint:
			continue
		}
		if msg.Content == "" {
			continue
		}
		if _, err := stmt.Exec(thread.ID, thread.Name, i, string(msg.Role), msg.Content, msg.Timestamp); err != nil {
			return fmt.Errorf("failed to index message: %w", err)
		}
	}

	return tx.Commit()
}

// RemoveThread drops a deleted thread from the index.
func (si *SearchIndex) RemoveThread(threadID string) error {
	_, err := si.db.Exec("DELETE FROM messages WHERE thread_id = ?", threadID)
	return err
}

// Search returns messages containing the query, newest first.
func (si *SearchIndex) Search(query string) ([]MessageMatch, error) {
	if query == "" {
		return []MessageMatch{}, nil
	}

	rows, err := si.db.Query(`
		SELECT thread_id, thread_name, message_index, role, content, timestamp
		FROM messages
		WHERE content LIKE ?
		ORDER BY timestamp DESC
		LIMIT 100`,
		"%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var matches []MessageMatch
	for rows.Next() {
		var match MessageMatch
		var content string
		if err := rows.Scan(&match.ThreadID, &match.ThreadName, &match.MessageIndex,
			&match.Role, &content, &match.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		match.Preview = makePreview(content)
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// Close closes the underlying database.
func (si *SearchIndex) Close() error {
	return si.db.Close()
}

func makePreview(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) > 100 {
		return truncateBytes(content, 100) + "..."
	}
	return content
}
