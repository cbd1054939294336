// Package memory holds the engine's short-term, in-process stores: the
// per-author context buffers handed to the generator, each author's
// recent own outputs, and the channel-scoped ring of everything the
// engine said recently. Nothing here survives a restart.
package memory

import (
	"sync"
	"time"

	"github.com/papo-dev/papo/internal/types"
)

// AuthorBuffers keeps a bounded window of recent entries per author for
// context assembly. Shared across author tasks; one lock per operation.
type AuthorBuffers struct {
	mu      sync.RWMutex
	buffers map[string][]types.Entry
	cap     int
}

// NewAuthorBuffers creates the store with the given per-author cap.
func NewAuthorBuffers(cap int) *AuthorBuffers {
	return &AuthorBuffers{buffers: make(map[string][]types.Entry), cap: cap}
}

// Add appends an entry to the author's buffer, evicting the oldest past
// the cap.
func (b *AuthorBuffers) Add(entry types.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := append(b.buffers[entry.AuthorID], entry)
	if len(buf) > b.cap {
		buf = buf[len(buf)-b.cap:]
	}
	b.buffers[entry.AuthorID] = buf
}

// Get returns a copy of the author's entries, oldest first.
func (b *AuthorBuffers) Get(authorID string) []types.Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	buf := b.buffers[authorID]
	out := make([]types.Entry, len(buf))
	copy(out, buf)
	return out
}

// Merged returns the union of the given authors' buffers in timestamp
// order, capped to the most recent limit entries. At most maxAuthors
// buffers contribute, preferring the listed order.
func (b *AuthorBuffers) Merged(authorIDs []string, maxAuthors, limit int) []types.Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var merged []types.Entry
	used := 0
	for _, id := range authorIDs {
		if used >= maxAuthors {
			break
		}
		buf, ok := b.buffers[id]
		if !ok || len(buf) == 0 {
			continue
		}
		merged = append(merged, buf...)
		used++
	}

	sortByTime(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// Drop clears the author's buffer (conversation ended).
func (b *AuthorBuffers) Drop(authorID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, authorID)
}

// insertion sort: buffers are tiny and mostly ordered already
func sortByTime(entries []types.Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Timestamp.Before(entries[j-1].Timestamp); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// touchTime is a shared helper for stores that stamp "now" lazily.
func touchTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
