package effectors

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileEffector captures replies to a JSONL file instead of sending to
// Discord. Used for dry runs and synthetic testing.
type FileEffector struct {
	outputPath string
	mu         sync.Mutex
}

// NewFileEffector creates a file effector writing under statePath.
func NewFileEffector(statePath string) *FileEffector {
	return &FileEffector{
		outputPath: filepath.Join(statePath, "replies.jsonl"),
	}
}

type fileReply struct {
	Timestamp time.Time `json:"ts"`
	ChannelID string    `json:"channel_id"`
	Text      string    `json:"text"`
}

// Send appends the reply to the output file.
func (e *FileEffector) Send(channelID, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(e.outputPath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(e.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(fileReply{Timestamp: time.Now(), ChannelID: channelID, Text: text})
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}

	display := text
	if len(display) > 80 {
		display = display[:80] + "..."
	}
	log.Printf("[file-effector] %s: %s", channelID, display)
	return nil
}

// ClearOutput clears the output file (useful for test setup)
func (e *FileEffector) ClearOutput() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Remove(e.outputPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
