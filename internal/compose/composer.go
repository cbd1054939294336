// Package compose assembles generation context, invokes the oracle, and
// normalizes its output into a single bounded utterance.
package compose

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/papo-dev/papo/internal/logging"
	"github.com/papo-dev/papo/internal/memory"
	"github.com/papo-dev/papo/internal/topics"
	"github.com/papo-dev/papo/internal/types"
)

// Generator is the external text-generation call.
type Generator interface {
	Generate(ctx context.Context, entries []types.Entry, hint string) (string, error)
}

// Config holds the composer's output bounds.
type Config struct {
	ContextEntries int
	ContextAuthors int
	ReplyMaxChars  int
}

// fillerReplies substitute for an output that would repeat a recent one.
var fillerReplies = []string{"e aí", "fala", "salve", "hmm", "diz aí", "opa"}

// Composer builds the reply for a resolved RESPOND decision.
type Composer struct {
	cfg     Config
	gen     Generator
	buffers *memory.AuthorBuffers
	selfMem *memory.SelfMemory
	chanMem *memory.ChannelMemory
	topics  *topics.Registry
	rng     *rand.Rand
}

// New creates a composer.
func New(cfg Config, gen Generator, buffers *memory.AuthorBuffers, selfMem *memory.SelfMemory,
	chanMem *memory.ChannelMemory, reg *topics.Registry, rng *rand.Rand) *Composer {
	return &Composer{
		cfg:     cfg,
		gen:     gen,
		buffers: buffers,
		selfMem: selfMem,
		chanMem: chanMem,
		topics:  reg,
		rng:     rng,
	}
}

// Request carries the context flags the composer needs beyond the author.
type Request struct {
	AuthorID        string
	AuthorName      string
	ChannelID       string
	Hint            string // tone/context guidance from the caller
	FastClose       bool   // batch resolved unusually fast: ambiguity risk
	TriggerIsLatest bool   // the triggering message is the channel's newest
	ReplyResolved   bool   // replying into a resolved reply chain
}

// Compose gathers context, invokes the generator, and returns the final
// normalized reply. A generation failure returns the error unwrapped; the
// caller aborts the turn silently.
func (c *Composer) Compose(ctx context.Context, req Request) (string, error) {
	entries := c.gatherEntries(req.AuthorID)

	hint := req.Hint
	if recent := c.avoidList(req.ChannelID, req.AuthorID); len(recent) > 0 {
		avoid := "you recently said: " + strings.Join(recent, " | ") + " — do not repeat these"
		if hint != "" {
			hint += "; " + avoid
		} else {
			hint = avoid
		}
	}

	raw, err := c.gen.Generate(ctx, entries, hint)
	if err != nil {
		return "", err
	}

	text := Normalize(raw, c.cfg.ReplyMaxChars)

	if c.selfMem.Seen(req.AuthorID, text) {
		text = fillerReplies[c.rng.Intn(len(fillerReplies))]
		logging.Debug("compose", "repeated output for %s, substituted filler", req.AuthorID)
	}

	// Remember the bare form before any prefix: the prefix varies per
	// reply and would mask a repeated generation on the next Seen check.
	c.selfMem.Remember(req.AuthorID, text)

	if c.shouldPrefix(req, text) {
		text = req.AuthorName + ", " + text
	}

	c.chanMem.Record(req.ChannelID, text, entryTime(entries))
	return text, nil
}

// Fallback returns a short canned prompt for a batch that never resolved
// into a complete thought, skipping any filler the author just heard. It
// is recorded like a composed reply.
func (c *Composer) Fallback(req Request) string {
	start := c.rng.Intn(len(fillerReplies))
	text := fillerReplies[start]
	for i := range fillerReplies {
		cand := fillerReplies[(start+i)%len(fillerReplies)]
		if !c.selfMem.Seen(req.AuthorID, cand) {
			text = cand
			break
		}
	}
	c.selfMem.Remember(req.AuthorID, text)
	c.chanMem.Record(req.ChannelID, text, time.Time{})
	return text
}

// avoidList gathers the recent outputs the generator should steer away
// from: the channel's visible ones plus the author's own, deduplicated.
func (c *Composer) avoidList(channelID, authorID string) []string {
	avoid := c.chanMem.Recent(channelID, 5)
	seen := make(map[string]bool, len(avoid))
	for _, a := range avoid {
		seen[strings.ToLower(a)] = true
	}
	for _, prev := range c.selfMem.Recent(authorID) {
		if !seen[strings.ToLower(prev)] {
			avoid = append(avoid, prev)
			seen[strings.ToLower(prev)] = true
		}
	}
	return avoid
}

// gatherEntries pulls the author's buffer, widened to the topic session's
// member buffers when the author shares a session with others.
func (c *Composer) gatherEntries(authorID string) []types.Entry {
	if c.topics != nil {
		if s := c.topics.SessionFor(authorID); s != nil && len(s.Members) > 1 {
			// Put the triggering author first so their buffer is never
			// the one dropped by the author cap.
			members := []string{authorID}
			for _, id := range s.MemberIDs() {
				if id != authorID {
					members = append(members, id)
				}
			}
			return c.buffers.Merged(members, c.cfg.ContextAuthors, c.cfg.ContextEntries)
		}
	}

	entries := c.buffers.Get(authorID)
	if len(entries) > c.cfg.ContextEntries {
		entries = entries[len(entries)-c.cfg.ContextEntries:]
	}
	return entries
}

// shouldPrefix decides whether to prepend the author's name. Never when
// the reply already references them or lands in a resolved reply chain;
// otherwise when the batch closed fast or other messages arrived since.
func (c *Composer) shouldPrefix(req Request, text string) bool {
	if req.AuthorName == "" || req.ReplyResolved {
		return false
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(req.AuthorName)) {
		return false
	}
	return req.FastClose || !req.TriggerIsLatest
}

func entryTime(entries []types.Entry) time.Time {
	if n := len(entries); n > 0 {
		return entries[n-1].Timestamp
	}
	return time.Time{}
}
