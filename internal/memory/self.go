package memory

import (
	"strings"
	"sync"
	"unicode"
)

// SelfMemory remembers the engine's recent outputs per author so the same
// line is never produced twice in a row. Matching is case- and
// space-insensitive.
type SelfMemory struct {
	mu     sync.Mutex
	recent map[string][]string // author id -> normalized recent outputs
	cap    int
}

// NewSelfMemory creates the store with the given per-author cap.
func NewSelfMemory(cap int) *SelfMemory {
	return &SelfMemory{recent: make(map[string][]string), cap: cap}
}

// Remember records an output for the author, evicting the oldest past the
// cap.
func (m *SelfMemory) Remember(authorID, text string) {
	norm := normalizeOutput(text)
	if norm == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.recent[authorID], norm)
	if len(list) > m.cap {
		list = list[len(list)-m.cap:]
	}
	m.recent[authorID] = list
}

// Seen reports whether the text matches any recent output for the author.
func (m *SelfMemory) Seen(authorID, text string) bool {
	norm := normalizeOutput(text)
	if norm == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, prev := range m.recent[authorID] {
		if prev == norm {
			return true
		}
	}
	return false
}

// Recent returns the normalized recent outputs for the author.
func (m *SelfMemory) Recent(authorID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.recent[authorID]))
	copy(out, m.recent[authorID])
	return out
}

// Drop clears the author's self memory.
func (m *SelfMemory) Drop(authorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recent, authorID)
}

// normalizeOutput lower-cases and collapses all whitespace runs.
func normalizeOutput(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(strings.ToLower(s)) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
