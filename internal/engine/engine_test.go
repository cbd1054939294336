package engine

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/papo-dev/papo/internal/address"
	"github.com/papo-dev/papo/internal/compose"
	"github.com/papo-dev/papo/internal/config"
	"github.com/papo-dev/papo/internal/memory"
	"github.com/papo-dev/papo/internal/policy"
	"github.com/papo-dev/papo/internal/presence"
	"github.com/papo-dev/papo/internal/types"
)

type sent struct {
	channelID string
	text      string
}

type fakeSender struct {
	mu    sync.Mutex
	sends []sent
	ch    chan sent
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan sent, 16)}
}

func (s *fakeSender) Send(channelID, text string) error {
	s.mu.Lock()
	s.sends = append(s.sends, sent{channelID, text})
	s.mu.Unlock()
	s.ch <- sent{channelID, text}
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

func (s *fakeSender) wait(t *testing.T, timeout time.Duration) sent {
	t.Helper()
	select {
	case got := <-s.ch:
		return got
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a send")
		return sent{}
	}
}

func (s *fakeSender) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case got := <-s.ch:
		t.Fatalf("unexpected send: %q", got.text)
	case <-time.After(within):
	}
}

type fakeGen struct {
	mu      sync.Mutex
	calls   int
	entries [][]types.Entry
	reply   string
}

func (g *fakeGen) Generate(_ context.Context, entries []types.Entry, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.entries = append(g.entries, entries)
	return g.reply, nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testTunables() config.Tunables {
	tun := config.Defaults()
	tun.BaseWindow = 15 * time.Millisecond
	tun.FragmentWindow = 30 * time.Millisecond
	tun.TypingGrace = 50 * time.Millisecond
	tun.MaxWaitSoft = 300 * time.Millisecond
	tun.MaxWaitHard = 800 * time.Millisecond
	tun.QuietPoll = 5 * time.Millisecond
	tun.ForcedWindow = 10 * time.Millisecond
	tun.FragmentHold = 20 * time.Millisecond
	tun.SilenceChance = 0
	tun.SpontaneousChance = 0
	return tun
}

func newTestEngine(t *testing.T, tun config.Tunables, gen *fakeGen) (*Engine, *fakeSender) {
	t.Helper()

	buffers := memory.NewAuthorBuffers(tun.ContextEntries)
	selfMem := memory.NewSelfMemory(tun.SelfMemoryCap)
	chanMem := memory.NewChannelMemory(tun.ChannelMemCap)

	composer := compose.New(compose.Config{
		ContextEntries: tun.ContextEntries,
		ContextAuthors: tun.ContextAuthors,
		ReplyMaxChars:  tun.ReplyMaxChars,
	}, gen, buffers, selfMem, chanMem, nil, rand.New(rand.NewSource(7)))

	decider := policy.NewDecider(policy.DecisionConfig{
		MinCompleteLen:  tun.MinCompleteLen,
		SilenceChance:   tun.SilenceChance,
		WaitLoopCeiling: tun.WaitLoopCeiling,
		MaxWaitSoft:     tun.MaxWaitSoft,
	}, rand.New(rand.NewSource(3)), nil)

	interject := policy.NewInterjector(policy.InterjectConfig{
		SecondaryWindow:     tun.SecondaryWindow,
		SecondaryTurns:      tun.SecondaryTurns,
		SecondaryCooldown:   tun.SecondaryCooldown,
		SpontaneousChance:   tun.SpontaneousChance,
		SpontaneousCooldown: tun.SpontaneousCooldown,
		SpontaneousGlobal:   tun.SpontaneousGlobal,
	}, rand.New(rand.NewSource(5)), nil)

	sender := newFakeSender()
	e := New(tun, Deps{
		SelfID:    "bot",
		Detector:  address.NewDetector("bot", []string{"papo"}),
		Presence:  presence.NewTracker(),
		Decider:   decider,
		Interject: interject,
		Composer:  composer,
		Buffers:   buffers,
		SelfMem:   selfMem,
		Sender:    sender,
	})
	t.Cleanup(e.Stop)
	return e, sender
}

func msg(id, author, text string, mentioned bool) types.Message {
	return types.Message{
		ID:         id,
		AuthorID:   author,
		AuthorName: author,
		ChannelID:  "chan1",
		Text:       text,
		Timestamp:  time.Now(),
		Mentioned:  mentioned,
	}
}

func TestDirectCompleteMessageGetsReply(t *testing.T) {
	gen := &fakeGen{reply: "bora sim!"}
	e, sender := newTestEngine(t, testTunables(), gen)

	e.HandleMessage(msg("m1", "alice", "vamos marcar aquele churrasco no sábado?", true))

	got := sender.wait(t, 2*time.Second)
	if got.channelID != "chan1" {
		t.Errorf("Sent to wrong channel: %s", got.channelID)
	}
	if got.text != "bora sim!" {
		t.Errorf("Unexpected reply: %q", got.text)
	}
}

func TestFragmentsBatchIntoOneReply(t *testing.T) {
	gen := &fakeGen{reply: "boa noite!"}
	e, sender := newTestEngine(t, testTunables(), gen)

	e.HandleMessage(msg("m1", "alice", "boa", true))
	e.HandleMessage(msg("m2", "alice", "noite pessoal, tudo certo?", false))

	sender.wait(t, 2*time.Second)
	// Give any second flush a chance to surface before asserting.
	sender.expectNone(t, 100*time.Millisecond)
	if gen.callCount() != 1 {
		t.Errorf("Expected exactly 1 generation for the merged batch, got %d", gen.callCount())
	}
}

func TestAmbientMessageStaysSilent(t *testing.T) {
	gen := &fakeGen{reply: "oi"}
	e, sender := newTestEngine(t, testTunables(), gen)

	e.HandleMessage(msg("m1", "alice", "hoje o dia foi bem corrido por aqui", false))

	sender.expectNone(t, 150*time.Millisecond)
}

func TestDirectNoiseIgnored(t *testing.T) {
	gen := &fakeGen{reply: "oi"}
	e, sender := newTestEngine(t, testTunables(), gen)

	e.HandleMessage(msg("m1", "alice", "kkkk", true))

	sender.expectNone(t, 150*time.Millisecond)
}

func TestClosureEndsConversation(t *testing.T) {
	gen := &fakeGen{reply: "falou, alice!"}
	e, sender := newTestEngine(t, testTunables(), gen)

	e.HandleMessage(msg("m1", "alice", "falou", true))

	got := sender.wait(t, 2*time.Second)
	if got.text == "" {
		t.Error("Expected a farewell reply")
	}

	// The conversation just ended: ambient chatter inside the recent-end
	// window gets nothing.
	e.HandleMessage(msg("m2", "alice", "essa foi uma conversa bem legal", false))
	sender.expectNone(t, 150*time.Millisecond)
}

func TestSecondaryInterjection(t *testing.T) {
	gen := &fakeGen{reply: "opa, já falo contigo"}
	e, sender := newTestEngine(t, testTunables(), gen)

	// Alice takes focus.
	e.HandleMessage(msg("m1", "alice", "vamos marcar aquele churrasco no sábado?", true))
	sender.wait(t, 2*time.Second)

	// Bob addresses the engine directly while focus is on Alice: the
	// secondary gate grants a brief aside without switching focus.
	e.HandleMessage(msg("m2", "bob", "concorda com isso aí?", true))
	sender.wait(t, 2*time.Second)
}

func TestSpontaneousInterjection(t *testing.T) {
	tun := testTunables()
	tun.SpontaneousChance = 1.0
	gen := &fakeGen{reply: "também acho"}
	e, sender := newTestEngine(t, tun, gen)

	e.HandleMessage(msg("m1", "alice", "acho que esse jogo novo está muito bom", false))

	got := sender.wait(t, 2*time.Second)
	if got.text != "também acho" {
		t.Errorf("Unexpected spontaneous reply: %q", got.text)
	}
}

func TestTypingExtendsWindow(t *testing.T) {
	tun := testTunables()
	tun.TypingGrace = 200 * time.Millisecond
	gen := &fakeGen{reply: "entendi"}
	e, sender := newTestEngine(t, tun, gen)

	e.NotifyTyping("chan1", "alice")
	e.HandleMessage(msg("m1", "alice", "deixa eu te contar uma coisa importante.", true))

	// The typing grace keeps the batch open well past the base window.
	sender.expectNone(t, 100*time.Millisecond)
	sender.wait(t, 2*time.Second)
}

func TestTypingElsewhereDoesNotExtendWindow(t *testing.T) {
	tun := testTunables()
	tun.TypingGrace = 400 * time.Millisecond
	gen := &fakeGen{reply: "entendi"}
	e, sender := newTestEngine(t, tun, gen)

	// Alice is typing in a different channel; her batch here must close
	// on the normal base window.
	e.NotifyTyping("chan2", "alice")
	e.HandleMessage(msg("m1", "alice", "deixa eu te contar uma coisa importante.", true))

	sender.wait(t, 200*time.Millisecond)
}

func TestFragmentTimeoutGetsFallbackPhrase(t *testing.T) {
	tun := testTunables()
	tun.MaxWaitHard = 200 * time.Millisecond
	tun.WaitLoopCeiling = 50
	gen := &fakeGen{reply: "não era pra gerar nada"}
	e, sender := newTestEngine(t, tun, gen)

	// A dangling fragment that never completes: the hard ceiling forces a
	// short canned prompt, never a generation over the half thought.
	e.HandleMessage(msg("m1", "alice", "então a gente vai pra", true))

	got := sender.wait(t, 2*time.Second)
	if gen.callCount() != 0 {
		t.Errorf("expected no generation for a timed-out fragment, got %d", gen.callCount())
	}
	if got.text == "" || len([]rune(got.text)) > 12 {
		t.Errorf("expected a short fallback phrase, got %q", got.text)
	}
}

func TestOwnMessagesSkipped(t *testing.T) {
	gen := &fakeGen{reply: "oi"}
	e, sender := newTestEngine(t, testTunables(), gen)

	e.HandleMessage(msg("m1", "bot", "vamos marcar aquele churrasco no sábado?", true))

	sender.expectNone(t, 150*time.Millisecond)
}
