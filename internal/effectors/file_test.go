package effectors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileEffectorAppendsReplies(t *testing.T) {
	dir := t.TempDir()
	e := NewFileEffector(dir)

	if err := e.Send("chan1", "e aí"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := e.Send("chan1", "fala"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "replies.jsonl"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}

	var reply fileReply
	if err := json.Unmarshal([]byte(lines[0]), &reply); err != nil {
		t.Fatalf("Invalid JSON line: %v", err)
	}
	if reply.ChannelID != "chan1" || reply.Text != "e aí" {
		t.Errorf("Unexpected first reply: %+v", reply)
	}
	if reply.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestFileEffectorClearOutput(t *testing.T) {
	dir := t.TempDir()
	e := NewFileEffector(dir)

	if err := e.Send("chan1", "opa"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := e.ClearOutput(); err != nil {
		t.Fatalf("ClearOutput failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "replies.jsonl")); !os.IsNotExist(err) {
		t.Error("Expected output file to be removed")
	}

	// Clearing an already-clean state is fine
	if err := e.ClearOutput(); err != nil {
		t.Errorf("ClearOutput on missing file failed: %v", err)
	}
}
