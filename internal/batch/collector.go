// Package batch accumulates an author's message fragments into a single
// pending batch and owns that author's one live debounce timer.
package batch

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papo-dev/papo/internal/types"
)

// Batch is a finalized snapshot of accumulated fragments. Derived values
// are computed at flush time; the snapshot does not change afterwards.
type Batch struct {
	ID        string
	AuthorID  string
	ChannelID string
	Fragments []types.Fragment
	OpenedAt  time.Time
	LastAt    time.Time
	Direct    bool // OR of all fragment flags
}

// Raw returns the fragments' raw texts joined in arrival order.
func (b *Batch) Raw() string {
	parts := make([]string, 0, len(b.Fragments))
	for _, f := range b.Fragments {
		if f.Raw != "" {
			parts = append(parts, f.Raw)
		}
	}
	return strings.Join(parts, " ")
}

// Cleaned returns the fragments' cleaned texts joined in arrival order.
func (b *Batch) Cleaned() string {
	parts := make([]string, 0, len(b.Fragments))
	for _, f := range b.Fragments {
		if f.Cleaned != "" {
			parts = append(parts, f.Cleaned)
		}
	}
	return strings.Join(parts, " ")
}

// Age returns how long the batch has been open.
func (b *Batch) Age(now time.Time) time.Duration {
	return now.Sub(b.OpenedAt)
}

// Collector owns one author's pending batch and debounce timer. Appending
// a fragment always cancels the previous timer before starting a new one,
// so at most one timer is live per author at any instant.
type Collector struct {
	mu sync.Mutex

	authorID string
	now      func() time.Time

	fragments []types.Fragment
	batchID   string
	openedAt  time.Time
	lastAt    time.Time
	direct    bool

	timer     *time.Timer
	timerGen  uint64 // incremented on every schedule/cancel
	holdUntil time.Time
	waitLoops int

	// test hook: counts timer schedules
	schedules int
}

// NewCollector creates a collector for one author. now may be nil.
func NewCollector(authorID string, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{authorID: authorID, now: now}
}

// Append adds a fragment to the pending batch, opening one if needed, and
// returns the current batch age and fragment count.
func (c *Collector) Append(f types.Fragment) (age time.Duration, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.fragments) == 0 {
		c.batchID = uuid.NewString()
		c.openedAt = f.Timestamp
	}
	c.fragments = append(c.fragments, f)
	c.lastAt = f.Timestamp
	c.direct = c.direct || f.Direct()
	return c.now().Sub(c.openedAt), len(c.fragments)
}

// Schedule cancels any live timer and arms a new one that calls fire with
// the generation it was armed under. fire runs on the timer goroutine.
func (c *Collector) Schedule(d time.Duration, fire func(gen uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	c.schedules++
	c.timer = time.AfterFunc(d, func() { fire(gen) })
}

// Current reports whether gen is still the live timer generation. A fired
// timer whose generation is stale was superseded by a newer fragment and
// must not flush.
func (c *Collector) Current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.timerGen && len(c.fragments) > 0
}

// CancelTimer stops the live timer without touching the batch.
func (c *Collector) CancelTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

// SetHold extends the fragment-hold deadline; the quiet loop keeps waiting
// until it passes.
func (c *Collector) SetHold(until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if until.After(c.holdUntil) {
		c.holdUntil = until
	}
}

// Hold returns the current fragment-hold deadline.
func (c *Collector) Hold() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdUntil
}

// IncrementWait bumps the per-batch wait-loop counter and returns it.
func (c *Collector) IncrementWait() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitLoops++
	return c.waitLoops
}

// WaitLoops returns the wait-loop counter.
func (c *Collector) WaitLoops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitLoops
}

// Snapshot returns a copy of the pending batch without clearing it, or
// nil when no batch is open.
func (c *Collector) Snapshot() *Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Flush returns the pending batch and clears all transient state: the
// fragments, the timer, the hold deadline and the wait counter. Returns
// nil when no batch is open.
func (c *Collector) Flush() *Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.snapshotLocked()
	c.clearLocked()
	return b
}

// Clear drops the pending batch and timer without producing a snapshot.
// Used when a conversation ends mid-batch.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// LastFragmentAt returns the arrival time of the newest fragment.
func (c *Collector) LastFragmentAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAt
}

// OpenedAt returns when the current batch opened (zero when none).
func (c *Collector) OpenedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openedAt
}

// Pending reports whether a batch is open.
func (c *Collector) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fragments) > 0
}

// ScheduleCount returns how many timers were ever armed. Test hook for
// the one-live-timer invariant.
func (c *Collector) ScheduleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedules
}

func (c *Collector) snapshotLocked() *Batch {
	if len(c.fragments) == 0 {
		return nil
	}
	frags := make([]types.Fragment, len(c.fragments))
	copy(frags, c.fragments)
	return &Batch{
		ID:        c.batchID,
		AuthorID:  c.authorID,
		ChannelID: frags[0].ChannelID,
		Fragments: frags,
		OpenedAt:  c.openedAt,
		LastAt:    c.lastAt,
		Direct:    c.direct,
	}
}

func (c *Collector) clearLocked() {
	c.fragments = nil
	c.batchID = ""
	c.openedAt = time.Time{}
	c.lastAt = time.Time{}
	c.direct = false
	c.holdUntil = time.Time{}
	c.waitLoops = 0
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}
