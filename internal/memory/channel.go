package memory

import (
	"sync"
	"time"
)

// ChannelEntry is one recent engine output in a channel.
type ChannelEntry struct {
	Timestamp time.Time
	Text      string
}

// ChannelMemory is a bounded, deduplicating ring of the engine's own
// recent outputs per channel, consulted to avoid literal repetition.
// Consecutive duplicate texts are recorded once.
type ChannelMemory struct {
	mu    sync.Mutex
	rings map[string][]ChannelEntry
	cap   int
}

// NewChannelMemory creates the store with the given per-channel cap.
func NewChannelMemory(cap int) *ChannelMemory {
	return &ChannelMemory{rings: make(map[string][]ChannelEntry), cap: cap}
}

// Record appends an output to the channel ring, skipping consecutive
// duplicates and evicting the oldest past the cap.
func (m *ChannelMemory) Record(channelID, text string, at time.Time) {
	if text == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ring := m.rings[channelID]
	if n := len(ring); n > 0 && ring[n-1].Text == text {
		return
	}
	ring = append(ring, ChannelEntry{Timestamp: touchTime(at), Text: text})
	if len(ring) > m.cap {
		ring = ring[len(ring)-m.cap:]
	}
	m.rings[channelID] = ring
}

// Recent returns up to n most recent outputs in the channel, oldest first.
func (m *ChannelMemory) Recent(channelID string, n int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring := m.rings[channelID]
	if n > 0 && len(ring) > n {
		ring = ring[len(ring)-n:]
	}
	out := make([]string, len(ring))
	for i, e := range ring {
		out[i] = e.Text
	}
	return out
}
