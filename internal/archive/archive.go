// Package archive persists the full message transcript and every decision
// outcome to SQLite. The engine writes fire-and-forget; the MCP inspection
// server reads.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papo-dev/papo/internal/types"
)

// DB wraps the SQLite database connection for the transcript archive
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the archive database
func Open(statePath string) (*DB, error) {
	dbPath := filepath.Join(statePath, "archive.db")

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &DB{db: db, path: dbPath}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return a, nil
}

// Close closes the database connection
func (a *DB) Close() error {
	return a.db.Close()
}

func (a *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		author_name TEXT,
		content TEXT NOT NULL,
		mentioned INTEGER DEFAULT 0,
		reply_to TEXT,
		timestamp DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id);
	CREATE INDEX IF NOT EXISTS idx_messages_author ON messages(author_id);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT,
		batch_text TEXT,
		reply_text TEXT,
		decided_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_channel ON decisions(channel_id);
	CREATE INDEX IF NOT EXISTS idx_decisions_decided ON decisions(decided_at);
	`
	_, err := a.db.Exec(schema)
	return err
}

// RecordMessage stores one inbound message
func (a *DB) RecordMessage(m types.Message) error {
	_, err := a.db.Exec(`
		INSERT OR IGNORE INTO messages (id, channel_id, author_id, author_name, content, mentioned, reply_to, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChannelID, m.AuthorID, m.AuthorName, m.Text, boolToInt(m.Mentioned), m.ReplyToID, m.Timestamp)
	return err
}

// RecordDecision stores one decision outcome, with the batch text it
// decided over and the reply sent (empty when silent).
func (a *DB) RecordDecision(channelID, authorID string, d types.Decision, batchText, replyText string, at time.Time) error {
	_, err := a.db.Exec(`
		INSERT INTO decisions (channel_id, author_id, action, reason, batch_text, reply_text, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		channelID, authorID, string(d.Action), d.Reason, batchText, replyText, at)
	return err
}

// ArchivedMessage is one row of the transcript
type ArchivedMessage struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// ArchivedDecision is one row of the decision log
type ArchivedDecision struct {
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	BatchText string    `json:"batch_text"`
	ReplyText string    `json:"reply_text,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// RecentMessages returns the last n transcript messages, oldest first
func (a *DB) RecentMessages(channelID string, n int) ([]ArchivedMessage, error) {
	rows, err := a.db.Query(`
		SELECT id, channel_id, author_id, COALESCE(author_name, ''), content, timestamp
		FROM messages
		WHERE channel_id = ? OR ? = ''
		ORDER BY timestamp DESC LIMIT ?`, channelID, channelID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// RecentDecisions returns the last n decisions, newest first
func (a *DB) RecentDecisions(channelID string, n int) ([]ArchivedDecision, error) {
	rows, err := a.db.Query(`
		SELECT channel_id, author_id, action, COALESCE(reason, ''), COALESCE(batch_text, ''), COALESCE(reply_text, ''), decided_at
		FROM decisions
		WHERE channel_id = ? OR ? = ''
		ORDER BY decided_at DESC LIMIT ?`, channelID, channelID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedDecision
	for rows.Next() {
		var d ArchivedDecision
		if err := rows.Scan(&d.ChannelID, &d.AuthorID, &d.Action, &d.Reason, &d.BatchText, &d.ReplyText, &d.DecidedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SearchMessages finds transcript messages containing the query text
func (a *DB) SearchMessages(query string, n int) ([]ArchivedMessage, error) {
	rows, err := a.db.Query(`
		SELECT id, channel_id, author_id, COALESCE(author_name, ''), content, timestamp
		FROM messages
		WHERE content LIKE '%' || ? || '%'
		ORDER BY timestamp DESC LIMIT ?`, query, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

func scanMessages(rows *sql.Rows) ([]ArchivedMessage, error) {
	var out []ArchivedMessage
	for rows.Next() {
		var m ArchivedMessage
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.AuthorName, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func reverseMessages(msgs []ArchivedMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
