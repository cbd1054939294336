// Package convo implements the per-channel conversation state machine.
// The machine tracks whether the engine is observing, engaged with a
// single active author, winding a conversation down, or just ended one.
package convo

import (
	"sync"
	"time"
)

// State is the lifecycle phase of the channel conversation.
type State string

const (
	Observing   State = "observing"
	Engaged     State = "engaged"
	ExitingSoft State = "exiting_soft"
	Ended       State = "ended"
)

// Config holds the lifecycle timeouts.
type Config struct {
	IdleTimeout     time.Duration // inactivity before a forced end
	MaxPresence     time.Duration // engaged time before winding down
	SoftExitTimeout time.Duration // grace period in ExitingSoft
	RecentEndWindow time.Duration // window in which a direct message resumes
}

// Verdict is the tagged result of evaluating one message against the
// machine. It never carries an error: undefined combinations degrade to
// an ignore with reason "fallback".
type Verdict struct {
	Consider    bool   // the message may open or extend a batch
	Wait        bool   // the caller should debounce before deciding
	ShouldExit  bool   // the conversation just ended; clear transient state
	Resumed     bool   // re-entered Engaged from a recent end
	FocusSwitch bool   // the active author changed
	Reason      string
}

// Conversation is one channel's state machine. All mutation happens in
// Evaluate; Snapshot is safe to read from other goroutines.
type Conversation struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	state         State
	activeAuthor  string
	startedAt     time.Time
	lastActivity  time.Time
	exitStartedAt time.Time
	endedAt       time.Time
}

// New creates a conversation in the Observing state. now may be nil, in
// which case time.Now is used; tests inject a fake clock.
func New(cfg Config, now func() time.Time) *Conversation {
	if now == nil {
		now = time.Now
	}
	return &Conversation{cfg: cfg, now: now, state: Observing}
}

// Snapshot is a read-only view of the machine for the interjection gate.
type Snapshot struct {
	State        State
	ActiveAuthor string
}

// Snapshot returns the current state and active author. Races with a
// concurrent Evaluate are tolerated: the interjection gate is read-mostly
// and last-writer-wins.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, ActiveAuthor: c.activeAuthor}
}

// Evaluate applies one message to the machine and returns what the caller
// should do with it. direct means the message explicitly addressed the
// bot; sideTopic means the active author is addressing someone else
// mid-conversation.
func (c *Conversation) Evaluate(authorID string, direct, sideTopic bool) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	// Idle housekeeping first: a long-silent conversation is over no
	// matter what the incoming message is.
	if (c.state == Engaged || c.state == ExitingSoft) &&
		!c.lastActivity.IsZero() && now.Sub(c.lastActivity) >= c.cfg.IdleTimeout {
		c.end(now)
	}

	switch c.state {
	case Observing:
		return c.evalObserving(authorID, direct, now)

	case Engaged, ExitingSoft:
		if authorID == c.activeAuthor {
			return c.evalActiveAuthor(sideTopic, now)
		}
		if direct {
			c.engage(authorID, now)
			return Verdict{Consider: true, Wait: true, FocusSwitch: true, Reason: "focus_switch"}
		}
		return Verdict{Reason: "noise"}

	case Ended:
		if now.Sub(c.endedAt) < c.cfg.RecentEndWindow {
			if direct {
				c.engage(authorID, now)
				return Verdict{Consider: true, Wait: true, Resumed: true, Reason: "resume"}
			}
			return Verdict{Reason: "recently_ended"}
		}
		// Window elapsed: quiet reset to Observing, endedAt not renewed.
		c.state = Observing
		c.activeAuthor = ""
		return c.evalObserving(authorID, direct, now)
	}

	return Verdict{Reason: "fallback"}
}

func (c *Conversation) evalObserving(authorID string, direct bool, now time.Time) Verdict {
	if !direct {
		return Verdict{Reason: "ambient"}
	}
	c.engage(authorID, now)
	return Verdict{Consider: true, Wait: true, Reason: "engage"}
}

func (c *Conversation) evalActiveAuthor(sideTopic bool, now time.Time) Verdict {
	c.lastActivity = now

	if sideTopic {
		return Verdict{Reason: "side_topic"}
	}

	if c.state == Engaged && now.Sub(c.startedAt) >= c.cfg.MaxPresence {
		c.state = ExitingSoft
		c.exitStartedAt = now
	}

	if c.state == ExitingSoft && now.Sub(c.exitStartedAt) >= c.cfg.SoftExitTimeout {
		c.end(now)
		return Verdict{ShouldExit: true, Reason: "soft_exit"}
	}

	return Verdict{Consider: true, Wait: true, Reason: "engaged"}
}

// ForceEnd ends the conversation immediately (explicit goodbye handling).
func (c *Conversation) ForceEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Engaged || c.state == ExitingSoft {
		c.end(c.now())
	}
}

func (c *Conversation) engage(authorID string, now time.Time) {
	c.state = Engaged
	c.activeAuthor = authorID
	c.startedAt = now
	c.lastActivity = now
	c.exitStartedAt = time.Time{}
}

func (c *Conversation) end(now time.Time) {
	c.state = Ended
	c.endedAt = now
	c.exitStartedAt = time.Time{}
}
