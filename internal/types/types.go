package types

import (
	"strings"
	"time"
)

// Message is an inbound chat message as delivered by the transport.
// Address flags (Mentioned, ReplyToBot) are already resolved by the sense;
// the engine does not parse platform markup beyond the cleaned text.
type Message struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	ChannelID  string    `json:"channel_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Mentioned  bool      `json:"mentioned"`     // explicit @mention of the bot
	ReplyToBot bool      `json:"reply_to_bot"`  // reply chain resolves to a bot message
	ReplyToID  string    `json:"reply_to_id,omitempty"`
}

// Fragment is a single message suspected to be part of a larger thought
// the author is still typing across multiple sends. Immutable once created.
type Fragment struct {
	AuthorID  string
	ChannelID string
	Timestamp time.Time
	Raw       string // original text
	Cleaned   string // address-stripped text
	Mentioned bool
	Replying  bool
}

// Direct reports whether the fragment explicitly addresses the bot.
func (f Fragment) Direct() bool {
	return f.Mentioned || f.Replying
}

// Action is the outcome class of a batch decision.
type Action string

const (
	ActionRespond Action = "respond"
	ActionIgnore  Action = "ignore"
	ActionWait    Action = "wait"
)

// Decision is a tagged decision result: the action plus a reason code.
// Reasons are stable strings used in logs and the decision journal.
type Decision struct {
	Action Action
	Reason string
}

// Reason codes produced by the decision policy.
const (
	ReasonEmpty           = "empty"
	ReasonGreeting        = "greeting"
	ReasonNoise           = "noise"
	ReasonFragmentWait    = "fragment_wait"
	ReasonFragmentTimeout = "fragment_timeout"
	ReasonAllowed         = "allowed"
	ReasonRandomSilence   = "random_silence"
	ReasonNotComplete     = "not_complete"
	ReasonWaitCutoff      = "wait_cutoff"
	ReasonDead            = "dead"
	ReasonFallback        = "fallback"
)

func Respond(reason string) Decision { return Decision{Action: ActionRespond, Reason: reason} }
func Ignore(reason string) Decision  { return Decision{Action: ActionIgnore, Reason: reason} }
func Wait(reason string) Decision    { return Decision{Action: ActionWait, Reason: reason} }

// Entry is one line of conversational context handed to the generator.
type Entry struct {
	AuthorID   string    `json:"author_id"`
	Author     string    `json:"author"` // display name
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// Format renders the entry as a "Author: content" transcript line.
func (e Entry) Format() string {
	name := e.Author
	if name == "" {
		name = e.AuthorID
	}
	return name + ": " + strings.TrimSpace(e.Content)
}
