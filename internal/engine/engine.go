// Package engine wires the conversational pipeline together: address
// detection, per-channel conversation state, per-author batching with
// adaptive debounce, the decision and interjection policies, and response
// composition. One Engine serves all channels.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/papo-dev/papo/internal/address"
	"github.com/papo-dev/papo/internal/archive"
	"github.com/papo-dev/papo/internal/batch"
	"github.com/papo-dev/papo/internal/compose"
	"github.com/papo-dev/papo/internal/config"
	"github.com/papo-dev/papo/internal/convo"
	"github.com/papo-dev/papo/internal/journal"
	"github.com/papo-dev/papo/internal/logging"
	"github.com/papo-dev/papo/internal/memory"
	"github.com/papo-dev/papo/internal/policy"
	"github.com/papo-dev/papo/internal/presence"
	"github.com/papo-dev/papo/internal/topics"
	"github.com/papo-dev/papo/internal/types"
)

// Sender delivers a composed reply to the channel. Send failures are
// logged and dropped; the engine never retries.
type Sender interface {
	Send(channelID, text string) error
}

// Deps holds the engine's collaborators. Journal and Archive may be nil.
type Deps struct {
	SelfID    string // the bot's own author id, to skip its echoes
	Detector  *address.Detector
	Presence  *presence.Tracker
	Decider   *policy.Decider
	Interject *policy.Interjector
	Composer  *compose.Composer
	Topics    *topics.Registry
	Buffers   *memory.AuthorBuffers
	SelfMem   *memory.SelfMemory
	Sender    Sender
	Journal   *journal.Journal
	Archive   *archive.DB
	Now       func() time.Time // nil means time.Now
}

// authorRec is the engine's per-author bookkeeping: the batch collector
// plus the latest display name seen for the author.
type authorRec struct {
	authorID  string
	channelID string
	name      string
	collector *batch.Collector
}

// Engine is the turn orchestrator.
type Engine struct {
	cfg  config.Tunables
	deps Deps
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	convos        map[string]*convo.Conversation // by channel
	authors       map[string]*authorRec          // by channel|author
	lastMsgAuthor map[string]string              // newest message's author, by channel
}

// New creates an engine. Call Stop when done.
func New(cfg config.Tunables, deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:           cfg,
		deps:          deps,
		now:           now,
		ctx:           ctx,
		cancel:        cancel,
		convos:        make(map[string]*convo.Conversation),
		authors:       make(map[string]*authorRec),
		lastMsgAuthor: make(map[string]string),
	}
}

// Stop cancels all in-flight quiet loops and pending timers.
func (e *Engine) Stop() {
	e.cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.authors {
		rec.collector.CancelTimer()
	}
}

// NotifyTyping records a typing signal for the author in the channel.
func (e *Engine) NotifyTyping(channelID, authorID string) {
	e.deps.Presence.Notify(channelID, authorID, e.now())
}

// HandleMessage runs the inbound pipeline for one message. It returns
// quickly: anything slow (quiet loops, generation) happens on timer or
// spawned goroutines.
func (e *Engine) HandleMessage(m types.Message) {
	if m.AuthorID == e.deps.SelfID {
		return
	}
	if e.deps.Archive != nil {
		if err := e.deps.Archive.RecordMessage(m); err != nil {
			logging.Warn("engine", "archive write failed: %v", err)
		}
	}

	res := e.deps.Detector.Classify(m)
	text := res.Cleaned
	if text == "" {
		text = m.Text
	}

	e.deps.Buffers.Add(types.Entry{
		AuthorID:  m.AuthorID,
		Author:    m.AuthorName,
		Content:   text,
		Timestamp: m.Timestamp,
	})
	if e.deps.Topics != nil {
		e.deps.Topics.Assign(m.AuthorID, text)
	}

	cv := e.convoFor(m.ChannelID)
	snap := cv.Snapshot()
	prevActive := snap.ActiveAuthor
	rec := e.recordFor(m)

	e.mu.Lock()
	e.lastMsgAuthor[m.ChannelID] = m.AuthorID
	e.mu.Unlock()

	// A direct message from outside the current focus gets a brief
	// secondary reply while the budget lasts; once the window or cooldown
	// refuses, the machine below switches focus to the new author.
	if res.Direct && prevActive != "" && prevActive != m.AuthorID &&
		(snap.State == convo.Engaged || snap.State == convo.ExitingSoft) {
		iv := e.deps.Interject.Evaluate(m.AuthorID, text == "" || policy.IsNoise(text), true)
		if iv.Allowed() {
			e.interjectReply(rec, m, text, iv)
			return
		}
		if iv.Reason == policy.RefuseNoise {
			return
		}
	}

	sideTopic := !res.Direct && e.deps.Detector.AddressesOther(m.Text)
	v := cv.Evaluate(m.AuthorID, res.Direct, sideTopic)

	logging.Debug("engine", "msg from %s direct=%v verdict=%s", m.AuthorID, res.Direct, v.Reason)

	if v.ShouldExit {
		e.endAuthor(rec)
		return
	}
	if v.FocusSwitch && prevActive != "" && prevActive != m.AuthorID {
		// The old focus's pending batch is abandoned, but its buffers and
		// topic membership survive in case focus comes back.
		if old := e.lookup(m.ChannelID, prevActive); old != nil {
			old.collector.Clear()
		}
	}

	if v.Consider {
		frag := types.Fragment{
			AuthorID:  m.AuthorID,
			ChannelID: m.ChannelID,
			Timestamp: m.Timestamp,
			Raw:       m.Text,
			Cleaned:   res.Cleaned,
			Mentioned: m.Mentioned || res.NameCall,
			Replying:  m.ReplyToBot,
		}
		age, _ := rec.collector.Append(frag)
		win := e.debounceWindow(rec, res.Cleaned, age)
		rec.collector.Schedule(win, func(gen uint64) { e.quietLoop(rec, gen) })
		return
	}

	// Ambient chatter while observing may still earn a spontaneous reply.
	if v.Reason == "ambient" {
		iv := e.deps.Interject.Evaluate(m.AuthorID, text == "" || policy.IsNoise(text), false)
		if iv.Allowed() {
			e.interjectReply(rec, m, text, iv)
			return
		}
		logging.Debug("engine", "interjection refused for %s: %s", m.AuthorID, iv.Reason)
	}
}

// debounceWindow picks the debounce delay for the newest fragment.
func (e *Engine) debounceWindow(rec *authorRec, text string, age time.Duration) time.Duration {
	win := e.cfg.BaseWindow
	if policy.IsDanglingFragment(text) {
		win = e.cfg.FragmentWindow
	}
	if e.deps.Presence.TypingWithin(rec.channelID, rec.authorID, e.now(), e.cfg.TypingGrace) && win < e.cfg.TypingGrace {
		win = e.cfg.TypingGrace
	}
	if age > e.cfg.MaxWaitSoft {
		// Past the soft bound the batch must converge: shrink the window
		// so further fragments cannot keep pushing the decision out.
		win = e.cfg.ForcedWindow
	}
	return win
}

// quietLoop waits for the channel to go quiet around the author's batch,
// then finalizes it. A newer timer generation aborts the loop: the fresher
// fragment's loop owns the batch now.
func (e *Engine) quietLoop(rec *authorRec, gen uint64) {
	for {
		if !rec.collector.Current(gen) {
			return
		}
		now := e.now()
		age := now.Sub(rec.collector.OpenedAt())
		if age >= e.cfg.MaxWaitHard {
			e.finalize(rec, gen, true)
			return
		}

		need := e.cfg.BaseWindow
		if age > e.cfg.MaxWaitSoft {
			need = e.cfg.ForcedWindow
		}
		quiet := now.Sub(rec.collector.LastFragmentAt())
		typing := e.deps.Presence.TypingWithin(rec.channelID, rec.authorID, now, e.cfg.TypingGrace)
		holding := now.Before(rec.collector.Hold())

		if quiet >= need && !typing && !holding {
			e.finalize(rec, gen, false)
			return
		}

		select {
		case <-e.ctx.Done():
			return
		case <-time.After(e.cfg.QuietPoll):
		}
	}
}

// finalize decides the author's pending batch and acts on the outcome.
func (e *Engine) finalize(rec *authorRec, gen uint64, hardCeiling bool) {
	if !rec.collector.Current(gen) {
		return
	}
	snap := rec.collector.Snapshot()
	if snap == nil {
		return
	}
	now := e.now()

	text := snap.Cleaned()
	if text == "" {
		text = snap.Raw()
	}

	// An explicit goodbye ends the conversation with a short farewell
	// instead of going through the decision rules.
	if policy.IsClosure(text) {
		b := rec.collector.Flush()
		e.respond(rec, b, types.Respond(types.ReasonAllowed), "the author is saying goodbye; reply with a brief warm farewell")
		e.convoFor(rec.channelID).ForceEnd()
		e.endAuthor(rec)
		return
	}

	d := e.deps.Decider.Decide(e.ctx, policy.Input{
		Cleaned:     snap.Cleaned(),
		Raw:         snap.Raw(),
		Direct:      snap.Direct,
		HardCeiling: hardCeiling,
		Age:         snap.Age(now),
		WaitLoops:   rec.collector.WaitLoops(),
	})

	logging.Debug("engine", "batch %s from %s: %s (%s)", snap.ID, rec.authorID, d.Action, d.Reason)

	switch d.Action {
	case types.ActionWait:
		loops := rec.collector.IncrementWait()
		rec.collector.SetHold(now.Add(e.cfg.FragmentHold))
		rec.collector.Schedule(e.cfg.FragmentWindow, func(g uint64) { e.quietLoop(rec, g) })
		e.record(rec, text, d, "", loops)
	case types.ActionIgnore:
		rec.collector.Flush()
		e.record(rec, text, d, "", 0)
	case types.ActionRespond:
		b := rec.collector.Flush()
		e.respond(rec, b, d, "")
	}
}

// respond composes and sends the reply for a resolved batch. A generation
// failure aborts the turn silently.
func (e *Engine) respond(rec *authorRec, b *batch.Batch, d types.Decision, hint string) {
	if b == nil || len(b.Fragments) == 0 {
		return
	}
	now := e.now()
	last := b.Fragments[len(b.Fragments)-1]

	// A batch that never resolved into a complete thought gets a short
	// canned prompt instead of a generation over the fragments.
	if d.Reason == types.ReasonFragmentTimeout {
		reply := e.deps.Composer.Fallback(compose.Request{AuthorID: b.AuthorID, ChannelID: b.ChannelID})
		if err := e.deps.Sender.Send(b.ChannelID, reply); err != nil {
			logging.Error("engine", "send failed: %v", err)
		}
		e.record(rec, b.Cleaned(), d, reply, 0)
		return
	}

	e.mu.Lock()
	triggerIsLatest := e.lastMsgAuthor[b.ChannelID] == b.AuthorID
	e.mu.Unlock()

	reply, err := e.deps.Composer.Compose(e.ctx, compose.Request{
		AuthorID:        b.AuthorID,
		AuthorName:      rec.name,
		ChannelID:       b.ChannelID,
		Hint:            hint,
		FastClose:       b.Age(now) < e.cfg.BaseWindow,
		TriggerIsLatest: triggerIsLatest,
		ReplyResolved:   last.Replying,
	})
	if err != nil {
		logging.Error("engine", "generation failed, staying silent: %v", err)
		e.record(rec, b.Cleaned(), d, "", 0)
		return
	}

	if err := e.deps.Sender.Send(b.ChannelID, reply); err != nil {
		logging.Error("engine", "send failed: %v", err)
	}
	if e.deps.Topics != nil {
		e.deps.Topics.Touch(b.AuthorID)
	}
	e.record(rec, b.Cleaned(), d, reply, 0)
}

// interjectReply composes and sends a granted interjection on a spawned
// goroutine.
func (e *Engine) interjectReply(rec *authorRec, m types.Message, text string, v policy.InterjectVerdict) {
	hint := "chime in casually and briefly"
	if v.Mode == policy.SecondaryStart || v.Mode == policy.SecondaryContinue {
		hint = "reply with one brief aside; someone else has your attention"
	}

	go func() {
		reply, err := e.deps.Composer.Compose(e.ctx, compose.Request{
			AuthorID:        m.AuthorID,
			AuthorName:      m.AuthorName,
			ChannelID:       m.ChannelID,
			Hint:            hint,
			TriggerIsLatest: true,
		})
		if err != nil {
			logging.Error("engine", "interjection generation failed: %v", err)
			return
		}
		if err := e.deps.Sender.Send(m.ChannelID, reply); err != nil {
			logging.Error("engine", "send failed: %v", err)
		}
		e.record(rec, text, types.Respond(string(v.Mode)), reply, 0)
	}()
}

// record writes the decision to the journal and the archive, both best
// effort.
func (e *Engine) record(rec *authorRec, batchText string, d types.Decision, reply string, waitLoops int) {
	if e.deps.Journal != nil {
		err := e.deps.Journal.Record(journal.Entry{
			Timestamp: e.now(),
			ChannelID: rec.channelID,
			AuthorID:  rec.authorID,
			Action:    d.Action,
			Reason:    d.Reason,
			Excerpt:   batchText,
			Reply:     reply,
			WaitLoops: waitLoops,
		})
		if err != nil {
			logging.Warn("engine", "journal write failed: %v", err)
		}
	}
	if e.deps.Archive != nil {
		if err := e.deps.Archive.RecordDecision(rec.channelID, rec.authorID, d, batchText, reply, e.now()); err != nil {
			logging.Warn("engine", "archive write failed: %v", err)
		}
	}
}

// endAuthor clears everything tied to the author's finished conversation:
// the pending batch and timer, topic membership, typing state, context
// buffers and self-repetition memory.
func (e *Engine) endAuthor(rec *authorRec) {
	rec.collector.Clear()
	if e.deps.Topics != nil {
		e.deps.Topics.Release(rec.authorID)
	}
	e.deps.Presence.Forget(rec.channelID, rec.authorID)
	e.deps.Buffers.Drop(rec.authorID)
	e.deps.SelfMem.Drop(rec.authorID)
	e.deps.Interject.Reset(rec.authorID)

	e.mu.Lock()
	delete(e.authors, rec.channelID+"|"+rec.authorID)
	e.mu.Unlock()

	logging.Info("engine", "conversation with %s ended", rec.authorID)
}

func (e *Engine) convoFor(channelID string) *convo.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	cv, ok := e.convos[channelID]
	if !ok {
		cv = convo.New(convo.Config{
			IdleTimeout:     e.cfg.IdleTimeout,
			MaxPresence:     e.cfg.MaxPresence,
			SoftExitTimeout: e.cfg.SoftExitTimeout,
			RecentEndWindow: e.cfg.RecentEndWindow,
		}, e.now)
		e.convos[channelID] = cv
	}
	return cv
}

func (e *Engine) recordFor(m types.Message) *authorRec {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := m.ChannelID + "|" + m.AuthorID
	rec, ok := e.authors[key]
	if !ok {
		rec = &authorRec{
			authorID:  m.AuthorID,
			channelID: m.ChannelID,
			collector: batch.NewCollector(m.AuthorID, e.now),
		}
		e.authors[key] = rec
	}
	if m.AuthorName != "" {
		rec.name = m.AuthorName
	}
	return rec
}

func (e *Engine) lookup(channelID, authorID string) *authorRec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authors[channelID+"|"+authorID]
}
