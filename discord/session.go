// Package discord connects the notifier to Discord: it posts and removes
// live notifications, manages the live role and serves the prefix commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrNoChannel is returned when no notify channel is configured.
var ErrNoChannel = errors.New("discord: notify channel not configured")

// Session is the part of *discordgo.Session this package uses.
type Session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

var _ Session = (*discordgo.Session)(nil)

// NewSession creates a bot session with the intents the notifier needs.
func NewSession(token string) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("discord: token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers
	return s, nil
}

// Opener opens a gateway connection.
type Opener interface {
	Open() error
}

const (
	loginBaseDelay   = 2 * time.Second
	loginMaxDelay    = 60 * time.Second
	loginMaxDoubling = 6
)

// LoginDelay is the wait after the attempt-th failed login (attempt >= 1),
// without jitter.
func LoginDelay(attempt int) time.Duration {
	if attempt > loginMaxDoubling {
		attempt = loginMaxDoubling
	}
	if attempt < 0 {
		attempt = 0
	}
	d := loginBaseDelay * time.Duration(1<<attempt)
	if d > loginMaxDelay {
		d = loginMaxDelay
	}
	return d
}

// Login opens s, retrying transient failures with exponential backoff and
// up to a second of jitter. Authentication failures are returned at once.
func Login(ctx context.Context, s Opener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for attempt := 1; ; attempt++ {
		err := s.Open()
		if err == nil {
			return nil
		}
		if IsAuthError(err) {
			return fmt.Errorf("discord: login rejected: %w", err)
		}
		delay := LoginDelay(attempt) + time.Duration(rand.Int64N(int64(time.Second)))
		logger.Warn("discord login failed; retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("err", err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// IsAuthError reports whether err means the bot token was rejected.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusUnauthorized {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "4004") ||
		strings.Contains(msg, "authentication failed") ||
		strings.Contains(msg, "invalid token")
}

// isUnknown reports whether err is Discord saying the message (or its
// channel) does not exist.
func isUnknown(err error) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.Message != nil {
		switch rerr.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return true
		}
	}
	return rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound
}
