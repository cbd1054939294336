package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/papo-dev/papo/internal/types"
)

// Entry represents a single journaled decision
type Entry struct {
	Timestamp time.Time    `json:"ts"`
	ChannelID string       `json:"channel_id"`
	AuthorID  string       `json:"author_id"`
	Action    types.Action `json:"action"`
	Reason    string       `json:"reason,omitempty"`  // reason code from the decision
	Excerpt   string       `json:"excerpt,omitempty"` // batch text, truncated
	Reply     string       `json:"reply,omitempty"`   // sent text, if any
	WaitLoops int          `json:"wait_loops,omitempty"`
}

// Journal writes decision entries to state/decisions.jsonl. It is
// observability only: nothing in the engine reads it back.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New creates a journal writer
func New(statePath string) *Journal {
	return &Journal{
		path: filepath.Join(statePath, "decisions.jsonl"),
	}
}

const maxExcerpt = 120

// Record writes an entry to the journal
func (j *Journal) Record(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Set timestamp if not provided
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if len(entry.Excerpt) > maxExcerpt {
		entry.Excerpt = entry.Excerpt[:maxExcerpt] + "..."
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}

	// Open file for append
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	// Write JSON line
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Recent returns the last n entries from the journal
func (j *Journal) Recent(n int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	// Parse all lines
	var entries []Entry
	lines := splitLines(data)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}

	// Return last n
	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// Today returns entries from today
func (j *Journal) Today() ([]Entry, error) {
	entries, err := j.Recent(1000) // reasonable limit
	if err != nil {
		return nil, err
	}

	// Filter to today
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var todayEntries []Entry
	for _, e := range entries {
		if e.Timestamp.After(today) || e.Timestamp.Equal(today) {
			todayEntries = append(todayEntries, e)
		}
	}
	return todayEntries, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
