package topics

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MinKeywords: 3,
		MinShared:   2,
		Similarity:  0.25,
		TTL:         10 * time.Minute,
		KeywordCap:  40,
	}
}

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)}
}
func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// TestNoiseGetsNoSession verifies texts with too few keywords are never
// assigned, so noise cannot pollute merges.
func TestNoiseGetsNoSession(t *testing.T) {
	r := NewRegistry(testConfig(), newClock().now)

	if s := r.Assign("alice", "kkkk"); s != nil {
		t.Error("laughter should not create a session")
	}
	if s := r.Assign("alice", "sim, aqui"); s != nil {
		t.Error("short filler should not create a session")
	}
	if r.Count() != 0 {
		t.Errorf("expected 0 sessions, got %d", r.Count())
	}
}

// TestSimilarAuthorsMerge verifies two authors talking about the same
// subject end up in one session and a lookup for either returns it.
func TestSimilarAuthorsMerge(t *testing.T) {
	r := NewRegistry(testConfig(), newClock().now)

	s1 := r.Assign("alice", "acho que o campeonato brasileiro esse ano vai ser do palmeiras")
	if s1 == nil {
		t.Fatal("expected a session for alice")
	}
	s2 := r.Assign("bob", "palmeiras no campeonato brasileiro? duvido muito, flamengo leva")
	if s2 == nil {
		t.Fatal("expected a session for bob")
	}

	if s1.ID != s2.ID {
		t.Fatalf("expected merge into one session, got %s and %s", s1.ID, s2.ID)
	}
	if !s2.Members["alice"] || !s2.Members["bob"] {
		t.Errorf("expected both members, got %v", s2.MemberIDs())
	}
	if got := r.SessionFor("alice"); got == nil || got.ID != s1.ID {
		t.Error("lookup for alice should return the merged session")
	}
}

// TestMergeIsOrderIndependent verifies processing order does not change
// the final membership for similar keyword sets.
func TestMergeIsOrderIndependent(t *testing.T) {
	textA := "jogo novo de estratégia medieval lançou ontem na steam"
	textB := "comprei o jogo de estratégia medieval na steam, muito bom"

	ra := NewRegistry(testConfig(), newClock().now)
	ra.Assign("alice", textA)
	ra.Assign("bob", textB)

	rb := NewRegistry(testConfig(), newClock().now)
	rb.Assign("bob", textB)
	rb.Assign("alice", textA)

	sa := ra.SessionFor("alice")
	sb := rb.SessionFor("alice")
	if sa == nil || sb == nil {
		t.Fatal("expected sessions in both orders")
	}
	if len(sa.Members) != len(sb.Members) {
		t.Errorf("membership differs by order: %v vs %v", sa.MemberIDs(), sb.MemberIDs())
	}
	if ra.Count() != 1 || rb.Count() != 1 {
		t.Errorf("expected single merged session in both orders: %d / %d", ra.Count(), rb.Count())
	}
}

// TestDissimilarTopicsStaySeparate verifies unrelated subjects do not
// merge even when both clear the keyword minimum.
func TestDissimilarTopicsStaySeparate(t *testing.T) {
	r := NewRegistry(testConfig(), newClock().now)

	r.Assign("alice", "receita de bolo de cenoura com cobertura de chocolate")
	r.Assign("bob", "atualizei o kernel do servidor e quebrou o driver da placa")

	if r.Count() != 2 {
		t.Errorf("expected 2 separate sessions, got %d", r.Count())
	}
}

// TestTTLEvictionReleasesAuthors verifies expired sessions release their
// members' topic assignment.
func TestTTLEvictionReleasesAuthors(t *testing.T) {
	cfg := testConfig()
	clk := newClock()
	r := NewRegistry(cfg, clk.now)

	r.Assign("alice", "campeonato brasileiro palmeiras flamengo rodada")
	clk.advance(cfg.TTL + time.Minute)

	r.Cleanup()
	if r.Count() != 0 {
		t.Errorf("expected session expired, got %d", r.Count())
	}
	if r.SessionFor("alice") != nil {
		t.Error("alice should be released after expiry")
	}
}

// TestTouchKeepsSessionAlive verifies a reply into the session refreshes
// its activity, pushing the TTL out without re-extracting keywords.
func TestTouchKeepsSessionAlive(t *testing.T) {
	cfg := testConfig()
	clk := newClock()
	r := NewRegistry(cfg, clk.now)

	r.Assign("alice", "campeonato brasileiro palmeiras flamengo rodada")

	clk.advance(cfg.TTL - time.Minute)
	r.Touch("alice")

	clk.advance(2 * time.Minute)
	r.Cleanup()
	if r.SessionFor("alice") == nil {
		t.Error("touched session should survive past the original TTL")
	}

	clk.advance(cfg.TTL + time.Minute)
	r.Cleanup()
	if r.SessionFor("alice") != nil {
		t.Error("session should still expire once untouched")
	}
}

// TestKeywordCap verifies the session keyword set never exceeds the cap.
func TestKeywordCap(t *testing.T) {
	cfg := testConfig()
	cfg.KeywordCap = 6
	r := NewRegistry(cfg, newClock().now)

	s := r.Assign("alice", "campeonato brasileiro palmeiras flamengo rodada tabela")
	if s == nil {
		t.Fatal("expected session")
	}
	r.Assign("bob", "palmeiras flamengo campeonato artilheiro goleiro zagueiro lateral")

	if len(s.Keywords) > cfg.KeywordCap {
		t.Errorf("keyword set exceeded cap: %d > %d", len(s.Keywords), cfg.KeywordCap)
	}
}
