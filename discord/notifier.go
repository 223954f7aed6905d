package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/reconcile"
)

// Notifier implements reconcile.Notifier on a Discord channel.
type Notifier struct {
	s Session
}

var _ reconcile.Notifier = (*Notifier)(nil)

// NewNotifier returns a Notifier using s.
func NewNotifier(s Session) *Notifier { return &Notifier{s: s} }

// FormatMessage renders the notification text and the mentions it may ping.
func FormatMessage(p reconcile.Payload) *discordgo.MessageSend {
	dot := "🟢"
	if p.Platform == platform.Twitch {
		dot = "🟣"
	}
	who := p.Handle
	if p.DiscordID != "" {
		who = "<@" + p.DiscordID + ">"
	}
	content := fmt.Sprintf("%s **%s** is LIVE on **%s**\n%s", dot, who, p.Platform.Title(), p.URL)

	am := &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
	if p.MentionHere {
		content = "@here " + content
		am.Parse = append(am.Parse, discordgo.AllowedMentionTypeEveryone)
	}
	if p.DiscordID != "" {
		am.Parse = append(am.Parse, discordgo.AllowedMentionTypeUsers)
	}
	return &discordgo.MessageSend{Content: content, AllowedMentions: am}
}

// Send posts the notification and returns its message id.
func (n *Notifier) Send(ctx context.Context, channelID string, p reconcile.Payload) (string, error) {
	if channelID == "" {
		return "", ErrNoChannel
	}
	msg, err := n.s.ChannelMessageSendComplex(channelID, FormatMessage(p), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: send notification: %w", err)
	}
	return msg.ID, nil
}

// Delete removes a message; a message that no longer exists counts as deleted.
func (n *Notifier) Delete(ctx context.Context, channelID, messageID string) error {
	if channelID == "" {
		return ErrNoChannel
	}
	if messageID == "" {
		return nil
	}
	if err := n.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		if isUnknown(err) {
			return nil
		}
		return fmt.Errorf("discord: delete notification: %w", err)
	}
	return nil
}

// Exists probes a message.
func (n *Notifier) Exists(ctx context.Context, channelID, messageID string) (bool, error) {
	if channelID == "" {
		return false, ErrNoChannel
	}
	if _, err := n.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		if isUnknown(err) {
			return false, nil
		}
		return false, fmt.Errorf("discord: fetch notification: %w", err)
	}
	return true, nil
}
