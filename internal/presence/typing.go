package presence

import (
	"sync"
	"time"
)

// Tracker records, per channel and author, the last moment they were seen
// actively typing. It is a pure data sink: senses write, the batching
// loop reads. Typing in one channel never holds a batch open in another.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]time.Time // channel|author -> last typing signal
}

// NewTracker creates an empty typing tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]time.Time)}
}

func key(channelID, authorID string) string {
	return channelID + "|" + authorID
}

// Notify records a typing signal for the author in the channel.
// Fire-and-forget.
func (t *Tracker) Notify(channelID, authorID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[key(channelID, authorID)] = at
}

// Last returns the most recent typing signal for the author in the
// channel and whether one was ever seen.
func (t *Tracker) Last(channelID, authorID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.last[key(channelID, authorID)]
	return ts, ok
}

// TypingWithin reports whether the author typed in the channel within the
// given grace period of now.
func (t *Tracker) TypingWithin(channelID, authorID string, now time.Time, grace time.Duration) bool {
	ts, ok := t.Last(channelID, authorID)
	return ok && now.Sub(ts) < grace
}

// Forget drops the author's typing record for the channel. Called on
// conversation end so stale signals do not hold future batches open.
func (t *Tracker) Forget(channelID, authorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, key(channelID, authorID))
}
