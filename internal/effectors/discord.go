package effectors

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

// DiscordEffector sends composed replies to Discord. Sends are one-shot:
// a failure is logged and dropped, never retried.
type DiscordEffector struct {
	session *discordgo.Session
}

// NewDiscordEffector creates a Discord effector sharing the sense's session.
func NewDiscordEffector(session *discordgo.Session) *DiscordEffector {
	return &DiscordEffector{session: session}
}

// Send delivers one message to the channel.
func (e *DiscordEffector) Send(channelID, text string) error {
	// Flash the typing indicator so the reply lands like a person's.
	if err := e.session.ChannelTyping(channelID); err != nil {
		log.Printf("[discord-effector] typing indicator failed: %v", err)
	}

	_, err := e.session.ChannelMessageSend(channelID, text)
	if err != nil {
		log.Printf("[discord-effector] send to %s failed: %v", channelID, err)
	}
	return err
}
