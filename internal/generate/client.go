// Package generate talks to the external text-generation service. The
// engine treats it as an opaque oracle: no retries, no model fallback,
// failures surface as errors and the caller stays silent for the turn.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papo-dev/papo/internal/policy"
	"github.com/papo-dev/papo/internal/types"
)

// ErrGeneration wraps every failure of the generation call so callers can
// distinguish "the oracle failed" from their own errors.
var ErrGeneration = errors.New("generation failed")

// Client calls an Ollama-compatible HTTP endpoint.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a generation client. Empty arguments select the
// local Ollama defaults.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

const systemPrompt = `You are a casual chat participant. Reply with one short, ` +
	`informal message in the language of the conversation. Never repeat yourself, ` +
	`never write more than two sentences, never use markdown.`

// Generate produces a reply for the given transcript entries. hint
// carries tone/context guidance, including recent own outputs to avoid.
func (c *Client) Generate(ctx context.Context, entries []types.Entry, hint string) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no entries", ErrGeneration)
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Format())
		b.WriteString("\n")
	}
	if hint != "" {
		b.WriteString("\n(")
		b.WriteString(hint)
		b.WriteString(")\n")
	}

	text, err := c.call(ctx, systemPrompt, b.String())
	if err != nil {
		return "", err
	}
	return text, nil
}

const classifyPrompt = `You label chat snippets. Answer with exactly one word: ` +
	`ENGAGED if the snippet expects a reply, IGNORE if it is not addressed to ` +
	`you, DEAD if the conversation is over.`

// Classify implements the decision policy's escalation hook. Malformed
// model output degrades to the permissive label.
func (c *Client) Classify(ctx context.Context, text string) (policy.Engagement, error) {
	out, err := c.call(ctx, classifyPrompt, text)
	if err != nil {
		return policy.EngagementEngaged, err
	}

	switch strings.ToUpper(strings.TrimSpace(strings.Trim(out, ".!\"' "))) {
	case "IGNORE":
		return policy.EngagementIgnore, nil
	case "DEAD":
		return policy.EngagementDead, nil
	default:
		return policy.EngagementEngaged, nil
	}
}

func (c *Client) call(ctx context.Context, system, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}

	out := strings.TrimSpace(result.Response)
	if out == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return out, nil
}
