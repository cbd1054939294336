package senses

import (
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/papo-dev/papo/internal/logging"
	"github.com/papo-dev/papo/internal/types"
)

// DiscordSense listens to Discord and produces messages and typing
// signals for the engine.
type DiscordSense struct {
	session   *discordgo.Session
	channelID string
	botID     string
	onMessage func(types.Message)
	onTyping  func(channelID, authorID string)
}

// DiscordConfig holds Discord connection settings
type DiscordConfig struct {
	Token     string
	ChannelID string // optional channel allowlist
}

// NewDiscordSense creates a new Discord sense
func NewDiscordSense(cfg DiscordConfig, onMessage func(types.Message), onTyping func(channelID, authorID string)) (*DiscordSense, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	sense := &DiscordSense{
		session:   session,
		channelID: cfg.ChannelID,
		onMessage: onMessage,
		onTyping:  onTyping,
	}

	session.AddHandler(sense.handleMessage)
	session.AddHandler(sense.handleTyping)

	// Message content plus typing events
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageTyping |
		discordgo.IntentsDirectMessageTyping

	return sense, nil
}

// Start connects to Discord and begins listening
func (d *DiscordSense) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	// Get bot's user ID for self-filtering
	d.botID = d.session.State.User.ID
	log.Printf("[discord-sense] Connected as %s", d.session.State.User.Username)

	return nil
}

// Stop disconnects from Discord
func (d *DiscordSense) Stop() error {
	return d.session.Close()
}

// Session returns the underlying Discord session (for sharing with effector)
func (d *DiscordSense) Session() *discordgo.Session {
	return d.session
}

// BotID returns the connected bot's user ID. Valid after Start.
func (d *DiscordSense) BotID() string {
	return d.botID
}

// handleMessage converts an incoming Discord message and hands it to the
// engine.
func (d *DiscordSense) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore messages from self
	if m.Author.ID == d.botID {
		return
	}

	// Only process messages from configured channel (if set)
	if d.channelID != "" && m.ChannelID != d.channelID {
		return
	}

	msg := types.Message{
		ID:         m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		ChannelID:  m.ChannelID,
		Text:       m.Content,
		Timestamp:  messageTime(m),
		Mentioned:  d.mentionsBot(m),
		ReplyToBot: d.replyToBot(m),
	}
	if m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}

	log.Printf("[discord-sense] msg from %s: %s", m.Author.Username, logging.Truncate(m.Content, 50))

	if d.onMessage != nil {
		d.onMessage(msg)
	}
}

// handleTyping forwards typing signals for debounce-window adaptation.
func (d *DiscordSense) handleTyping(s *discordgo.Session, t *discordgo.TypingStart) {
	if t.UserID == d.botID {
		return
	}
	if d.channelID != "" && t.ChannelID != d.channelID {
		return
	}
	if d.onTyping != nil {
		d.onTyping(t.ChannelID, t.UserID)
	}
}

// mentionsBot checks if the message mentions the bot
func (d *DiscordSense) mentionsBot(m *discordgo.MessageCreate) bool {
	for _, mention := range m.Mentions {
		if mention.ID == d.botID {
			return true
		}
	}
	return false
}

// replyToBot checks if the message is a reply to one of the bot's own
// messages. The gateway resolves the referenced message for us.
func (d *DiscordSense) replyToBot(m *discordgo.MessageCreate) bool {
	ref := m.ReferencedMessage
	return ref != nil && ref.Author != nil && ref.Author.ID == d.botID
}

func messageTime(m *discordgo.MessageCreate) time.Time {
	if !m.Timestamp.IsZero() {
		return m.Timestamp
	}
	return time.Now()
}
