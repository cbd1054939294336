package compose

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/papo-dev/papo/internal/memory"
	"github.com/papo-dev/papo/internal/topics"
	"github.com/papo-dev/papo/internal/types"
)

// stubGen returns canned outputs in sequence and records what it saw.
type stubGen struct {
	outputs []string
	err     error
	calls   int
	entries [][]types.Entry
	hints   []string
}

func (s *stubGen) Generate(ctx context.Context, entries []types.Entry, hint string) (string, error) {
	s.entries = append(s.entries, entries)
	s.hints = append(s.hints, hint)
	if s.err != nil {
		return "", s.err
	}
	out := s.outputs[s.calls%len(s.outputs)]
	s.calls++
	return out, nil
}

func testComposer(gen Generator, reg *topics.Registry) (*Composer, *memory.AuthorBuffers, *memory.ChannelMemory) {
	buffers := memory.NewAuthorBuffers(12)
	selfMem := memory.NewSelfMemory(6)
	chanMem := memory.NewChannelMemory(10)
	cfg := Config{ContextEntries: 12, ContextAuthors: 3, ReplyMaxChars: 280}
	c := New(cfg, gen, buffers, selfMem, chanMem, reg, rand.New(rand.NewSource(1)))
	return c, buffers, chanMem
}

func addEntry(b *memory.AuthorBuffers, author, text string, at time.Time) {
	b.Add(types.Entry{AuthorID: author, Author: author, Content: text, Timestamp: at})
}

// TestComposeSingleAuthor verifies the single-author path hands the
// author's buffer to the generator and records the reply everywhere.
func TestComposeSingleAuthor(t *testing.T) {
	gen := &stubGen{outputs: []string{"opa, tudo certo por aqui!"}}
	c, buffers, chanMem := testComposer(gen, nil)

	now := time.Now()
	addEntry(buffers, "alice", "oi, tudo bem?", now)

	out, err := c.Compose(context.Background(), Request{
		AuthorID: "alice", AuthorName: "alice", ChannelID: "c1", TriggerIsLatest: true,
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if out != "opa, tudo certo por aqui!" {
		t.Errorf("out = %q", out)
	}
	if len(gen.entries[0]) != 1 || gen.entries[0][0].Content != "oi, tudo bem?" {
		t.Errorf("generator saw %v", gen.entries[0])
	}
	if got := chanMem.Recent("c1", 5); len(got) != 1 {
		t.Errorf("channel memory not recorded: %v", got)
	}
}

// TestComposeMergesTopicSession verifies a reply to one member of a
// multi-author session pulls entries from both buffers.
func TestComposeMergesTopicSession(t *testing.T) {
	reg := topics.NewRegistry(topics.Config{
		MinKeywords: 3, MinShared: 2, Similarity: 0.2,
		TTL: 10 * time.Minute, KeywordCap: 40,
	}, nil)
	reg.Assign("alice", "campeonato brasileiro palmeiras flamengo rodada")
	reg.Assign("bob", "palmeiras flamengo campeonato decisivo")

	gen := &stubGen{outputs: []string{"esse campeonato tá imperdível."}}
	c, buffers, _ := testComposer(gen, reg)

	now := time.Now()
	addEntry(buffers, "alice", "o palmeiras vai ganhar", now)
	addEntry(buffers, "bob", "flamengo leva fácil", now.Add(time.Second))

	_, err := c.Compose(context.Background(), Request{
		AuthorID: "alice", AuthorName: "alice", ChannelID: "c1", TriggerIsLatest: true,
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	seen := gen.entries[0]
	authors := map[string]bool{}
	for _, e := range seen {
		authors[e.AuthorID] = true
	}
	if !authors["alice"] || !authors["bob"] {
		t.Errorf("expected both buffers merged, got %v", seen)
	}
}

// TestRepeatSubstitutedWithFiller verifies the same normalized output is
// never produced twice in a row for an author.
func TestRepeatSubstitutedWithFiller(t *testing.T) {
	gen := &stubGen{outputs: []string{"mesma resposta de sempre"}}
	c, buffers, _ := testComposer(gen, nil)
	addEntry(buffers, "alice", "fala alguma coisa", time.Now())

	first, err := c.Compose(context.Background(), Request{AuthorID: "alice", ChannelID: "c1", TriggerIsLatest: true})
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Compose(context.Background(), Request{AuthorID: "alice", ChannelID: "c1", TriggerIsLatest: true})
	if err != nil {
		t.Fatal(err)
	}

	if second == first {
		t.Fatalf("duplicate output not substituted: %q", second)
	}
	found := false
	for _, f := range fillerReplies {
		if second == f {
			found = true
		}
	}
	if !found {
		t.Errorf("substitute %q not from the filler set", second)
	}
}

// TestRepeatWithPrefixSubstituted verifies the repeat check still fires
// when the address prefix applies: self memory holds the bare generation,
// not the prefixed line.
func TestRepeatWithPrefixSubstituted(t *testing.T) {
	gen := &stubGen{outputs: []string{"pode crer, bora marcar"}}
	c, buffers, _ := testComposer(gen, nil)
	addEntry(buffers, "alice", "bora marcar?", time.Now())

	req := Request{AuthorID: "alice", AuthorName: "alice", ChannelID: "c1", FastClose: true, TriggerIsLatest: true}
	first, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(first, "alice, ") {
		t.Fatalf("expected prefixed first reply, got %q", first)
	}
	second, err := c.Compose(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if second == first {
		t.Fatalf("same text emitted twice in a row: %q", second)
	}
	if strings.Contains(second, "pode crer, bora marcar") {
		t.Errorf("repeated generation not substituted: %q", second)
	}
}

// TestFallbackFromFillerSet verifies the canned fallback comes from the
// filler set, skips the author's last output, and is recorded.
func TestFallbackFromFillerSet(t *testing.T) {
	c, _, chanMem := testComposer(&stubGen{}, nil)

	req := Request{AuthorID: "alice", ChannelID: "c1"}
	first := c.Fallback(req)
	second := c.Fallback(req)

	for _, out := range []string{first, second} {
		found := false
		for _, f := range fillerReplies {
			if out == f {
				found = true
			}
		}
		if !found {
			t.Errorf("fallback %q not from the filler set", out)
		}
	}
	if second == first {
		t.Errorf("fallback repeated back to back: %q", second)
	}
	if got := chanMem.Recent("c1", 5); len(got) != 2 {
		t.Errorf("fallbacks not recorded in channel memory: %v", got)
	}
}

// TestSelfMemoryInAvoidHint verifies the author's own recent outputs reach
// the generator's avoid list even in a channel where nothing was said yet.
func TestSelfMemoryInAvoidHint(t *testing.T) {
	gen := &stubGen{outputs: []string{"primeira resposta da noite", "outra resposta diferente"}}
	c, buffers, _ := testComposer(gen, nil)
	addEntry(buffers, "alice", "conta uma novidade", time.Now())

	if _, err := c.Compose(context.Background(), Request{AuthorID: "alice", ChannelID: "c1", TriggerIsLatest: true}); err != nil {
		t.Fatal(err)
	}
	// Same author, fresh channel: channel memory is empty there, so only
	// self memory can carry the first output into the hint.
	if _, err := c.Compose(context.Background(), Request{AuthorID: "alice", ChannelID: "c2", TriggerIsLatest: true}); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(gen.hints[1], "primeira resposta da noite") {
		t.Errorf("avoid hint missing prior output: %q", gen.hints[1])
	}
}

// TestGenerationErrorPropagates verifies the composer stays silent on
// oracle failure: error out, nothing recorded.
func TestGenerationErrorPropagates(t *testing.T) {
	gen := &stubGen{err: errors.New("oracle down")}
	c, buffers, chanMem := testComposer(gen, nil)
	addEntry(buffers, "alice", "oi", time.Now())

	_, err := c.Compose(context.Background(), Request{AuthorID: "alice", ChannelID: "c1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := chanMem.Recent("c1", 5); len(got) != 0 {
		t.Errorf("nothing should be recorded on failure, got %v", got)
	}
}

// TestAddressPrefix verifies the prefix rules: applied on ambiguity,
// skipped when the text already names the author or the reply chain is
// resolved.
func TestAddressPrefix(t *testing.T) {
	gen := &stubGen{outputs: []string{"respondendo rapidinho", "alice, sim!", "tranquilo então"}}
	c, buffers, _ := testComposer(gen, nil)
	addEntry(buffers, "alice", "e aí, responde logo", time.Now())

	// Fast close: prefix.
	out, _ := c.Compose(context.Background(), Request{
		AuthorID: "alice", AuthorName: "alice", ChannelID: "c1",
		FastClose: true, TriggerIsLatest: true,
	})
	if !strings.HasPrefix(out, "alice, ") {
		t.Errorf("expected prefix on fast close, got %q", out)
	}

	// Author already referenced: no double prefix.
	out, _ = c.Compose(context.Background(), Request{
		AuthorID: "alice", AuthorName: "alice", ChannelID: "c1",
		FastClose: true, TriggerIsLatest: true,
	})
	if strings.HasPrefix(out, "alice, alice") {
		t.Errorf("double prefix: %q", out)
	}

	// Resolved reply chain: never prefix.
	out, _ = c.Compose(context.Background(), Request{
		AuthorID: "alice", AuthorName: "alice", ChannelID: "c1",
		FastClose: true, ReplyResolved: true, TriggerIsLatest: true,
	})
	if strings.HasPrefix(out, "alice, ") {
		t.Errorf("prefix on resolved reply: %q", out)
	}
}

// TestNormalize exercises the output normalizer directly.
func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"linha um\nlinha dois", 280, "linha um linha dois"},
		{"resposta boa mas", 280, "resposta boa"},
		{"texto terminando em,", 280, "texto terminando em"},
		{"muito   espaço    aqui", 280, "muito espaço aqui"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in, tc.max); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	// Truncation at a sentence boundary.
	long := "Primeira frase completa aqui. Segunda frase que vai estourar o limite do orçamento de caracteres com folga"
	got := Normalize(long, 40)
	if got != "Primeira frase completa aqui." {
		t.Errorf("sentence cut = %q", got)
	}

	// Truncation at a word boundary gets the ellipsis marker.
	long = "palavras sem pontuação nenhuma seguindo para sempre até passar do limite"
	got = Normalize(long, 30)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got)
	}
	if len([]rune(got)) > 31 {
		t.Errorf("cut too long: %q", got)
	}
}
