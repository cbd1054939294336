package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/papo-dev/papo/internal/types"
)

func TestJournalRecord(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	// Record a respond decision
	err := j.Record(Entry{
		ChannelID: "chan1",
		AuthorID:  "alice",
		Action:    types.ActionRespond,
		Reason:    types.ReasonAllowed,
		Excerpt:   "boa noite pessoal",
		Reply:     "boa!",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Record an ignore
	err = j.Record(Entry{
		ChannelID: "chan1",
		AuthorID:  "bob",
		Action:    types.ActionIgnore,
		Reason:    types.ReasonNoise,
		Excerpt:   "kkkk",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Record a wait
	err = j.Record(Entry{
		ChannelID: "chan1",
		AuthorID:  "alice",
		Action:    types.ActionWait,
		Reason:    types.ReasonFragmentWait,
		WaitLoops: 2,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Read back entries
	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}

	if len(entries) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(entries))
	}

	// Verify first entry
	if entries[0].Action != types.ActionRespond {
		t.Errorf("Expected respond action, got %s", entries[0].Action)
	}
	if entries[0].Excerpt != "boa noite pessoal" {
		t.Errorf("Unexpected excerpt: %s", entries[0].Excerpt)
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}

	// Verify file format
	data, _ := os.ReadFile(filepath.Join(tmpDir, "decisions.jsonl"))
	lines := splitLines(data)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Errorf("Invalid JSON line: %s", line)
		}
	}
}

func TestJournalExcerptTruncated(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	long := strings.Repeat("a", 500)
	if err := j.Record(Entry{AuthorID: "alice", Action: types.ActionIgnore, Excerpt: long}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := j.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if len(entries[0].Excerpt) > maxExcerpt+3 {
		t.Errorf("Excerpt not truncated: %d chars", len(entries[0].Excerpt))
	}
}

func TestJournalToday(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	// Record some entries today
	j.Record(Entry{AuthorID: "alice", Action: types.ActionRespond})
	j.Record(Entry{AuthorID: "bob", Action: types.ActionIgnore})

	entries, err := j.Today()
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("Expected 2 entries today, got %d", len(entries))
	}
}
