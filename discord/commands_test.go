package discord

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/poller"
	"github.com/noxrp/stream-notifier/reconcile"
	"github.com/noxrp/stream-notifier/reconcile/reconciletest"
	"github.com/noxrp/stream-notifier/store"
)

const (
	guildID = "100000000000000001"
	userID  = "200000000000000002"
	chanID  = "300000000000000003"
	otherCh = "300000000000000004"
)

type cmdHarness struct {
	session  *fakeSession
	poller   *poller.Poller
	notifier *reconciletest.Notifier
	handler  *Handler
}

func newCmdHarness(t *testing.T, allowed ...string) *cmdHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "data.json"), store.Defaults)
	st, err := fs.Load(context.Background())
	require.NoError(t, err)

	n := reconciletest.NewNotifier()
	rec := reconcile.New(n, nil)
	rec.Logger = logger
	p := poller.New(st, poller.Config{Store: fs, Reconciler: rec, Logger: logger})

	s := newFakeSession()
	s.perms = discordgo.PermissionManageServer
	s.channels[otherCh] = &discordgo.Channel{ID: otherCh, GuildID: guildID, Type: discordgo.ChannelTypeGuildText}
	return &cmdHarness{session: s, poller: p, notifier: n, handler: NewHandler(s, p, ".", allowed, logger)}
}

func (h *cmdHarness) run(content string, mentions ...*discordgo.User) string {
	h.handler.Handle(context.Background(), &discordgo.Message{
		ChannelID: chanID,
		GuildID:   guildID,
		Content:   content,
		Author:    &discordgo.User{ID: userID},
		Member:    &discordgo.Member{Roles: []string{"member"}},
		Mentions:  mentions,
	})
	return h.session.lastReply()
}

func (h *cmdHarness) state() *store.State {
	var out *store.State
	h.poller.View(func(st *store.State) { out = st.Clone() })
	return out
}

func TestHandle_IgnoresBotsDMsAndOtherText(t *testing.T) {
	h := newCmdHarness(t)
	h.handler.Handle(context.Background(), &discordgo.Message{Content: ".help", GuildID: guildID, Author: &discordgo.User{ID: "1", Bot: true}})
	h.handler.Handle(context.Background(), &discordgo.Message{Content: ".help", Author: &discordgo.User{ID: "1"}})
	h.run("hello there")
	h.run(".unknowncommand")
	assert.Empty(t, h.session.replies)
}

func TestHandle_Access(t *testing.T) {
	h := newCmdHarness(t)
	h.session.perms = 0
	assert.Contains(t, h.run(".config"), "don't have permission")

	h.session.perms = discordgo.PermissionManageServer
	assert.Contains(t, h.run(".config"), "Configuration")

	withRoles := newCmdHarness(t, "mods")
	assert.Contains(t, withRoles.run(".config"), "don't have permission", "role list replaces the permission check")
}

func TestHandle_Help(t *testing.T) {
	h := newCmdHarness(t)
	out := h.run(".help")
	assert.Contains(t, out, ".k add <kickSlug> [@user]")
	assert.Contains(t, out, ".set interval <10..3600>")
}

func TestHandle_SetCommands(t *testing.T) {
	h := newCmdHarness(t)

	assert.Contains(t, h.run(".set interval 5"), "Usage")
	assert.Contains(t, h.run(".set interval 120"), "**120**")
	assert.Equal(t, 120, h.state().Settings.CheckIntervalSeconds)

	assert.Contains(t, h.run(".set mentionhere off"), "**off**")
	assert.False(t, h.state().Settings.MentionHere)

	assert.Contains(t, h.run(".set regex ("), "invalid regex")
	assert.Contains(t, h.run(".set regex nox  rp|cops"), "`nox  rp|cops`")
	assert.Equal(t, "nox  rp|cops", h.state().Settings.KeywordRegex)

	assert.Contains(t, h.run(".set channel this"), "Invalid channel")
	assert.Contains(t, h.run(".set channel <#"+otherCh+">"), "<#"+otherCh+">")
	assert.Equal(t, otherCh, h.state().Settings.NotifyChannelID)

	assert.Contains(t, h.run(".set discoveryTwitchPages 51"), "Usage")
	h.run(".set discoveryTwitchPages 7")
	h.run(".set discoveryKickLimit 30")
	h.run(".set discovery on")
	h.run(".set twitchGameId 1234")
	got := h.state().Settings
	assert.Equal(t, 7, got.DiscoveryTwitchPages)
	assert.Equal(t, 30, got.DiscoveryKickLimit)
	assert.True(t, got.DiscoveryMode)
	assert.Equal(t, "1234", got.TwitchGameID)

	require.NoError(t, h.poller.Update(context.Background(), func(st *store.State) error {
		st.Settings.KickCategoryID = "15"
		st.Settings.KickCategoryResolvedAt = 1
		return nil
	}))
	assert.Contains(t, h.run(".set kickCategoryName Grand Theft Auto VI"), "will re-resolve")
	got = h.state().Settings
	assert.Equal(t, "Grand Theft Auto VI", got.KickCategoryName)
	assert.Empty(t, got.KickCategoryID)
	assert.Zero(t, got.KickCategoryResolvedAt)

	assert.Contains(t, h.run(".set bogus 1"), "Unknown setting key")
}

func TestHandle_StreamerList(t *testing.T) {
	h := newCmdHarness(t)

	assert.Contains(t, h.run(".k list"), "List is empty")
	assert.Contains(t, h.run(".k add Foo <@400000000000000004>"), "(ID: 400000000000000004)")
	assert.Contains(t, h.run(".k add foo"), "already in Kick list")
	assert.Contains(t, h.run(".k bar"), "added to Kick list")
	assert.Contains(t, h.run(".k addmany baz foo qux"), "Added **2**")
	assert.Contains(t, h.run(".k add list"), "Usage")

	out := h.run(".k list")
	assert.Contains(t, out, "1. foo <@400000000000000004>")
	assert.Contains(t, out, "total **4**")

	assert.Contains(t, h.run(".k setmention bar none"), "mention cleared")
	assert.Contains(t, h.run(".k setmention bar junk"), "Could not parse")
	assert.Contains(t, h.run(".k setmention bar x", &discordgo.User{ID: "500000000000000005"}), "<@500000000000000005>")
	s, ok := h.state().FindStreamer(platform.Kick, "bar")
	require.True(t, ok)
	assert.Equal(t, "500000000000000005", s.DiscordID)
	assert.Contains(t, h.run(".k setmention nobody none"), "not found")

	assert.Contains(t, h.run(".k remove qux"), "removed from Kick list")
	assert.Contains(t, h.run(".k remove qux"), "was not in Kick list")

	assert.Contains(t, h.run(".k clear"), "Confirm")
	assert.Contains(t, h.run(".k clear --yes"), "**3** removed")
	assert.Empty(t, h.state().Kick)

	assert.Contains(t, h.run(".t add somebody"), "added to Twitch list")
	assert.Len(t, h.state().Twitch, 1)
}

func TestHandle_RemoveTakesDownNotification(t *testing.T) {
	h := newCmdHarness(t)
	h.run(".t add bar")
	h.notifier.Seed(chanID, "msg-9")
	require.NoError(t, h.poller.Update(context.Background(), func(st *store.State) error {
		st.Runtime.TwitchActive["bar"] = store.ActiveMessage{MessageID: "msg-9", SessionKey: "1", ChannelID: chanID}
		return nil
	}))

	h.run(".t remove bar")
	assert.Equal(t, []string{"msg-9"}, h.notifier.Deletes)
	assert.Empty(t, h.state().Runtime.TwitchActive)
}

func TestHandle_StatusWithoutCredentials(t *testing.T) {
	h := newCmdHarness(t)
	assert.Contains(t, h.run(".k status foo"), "not configured")
	assert.Contains(t, h.run(".t status"), "Usage")
}

func TestHandle_ExportHealthTick(t *testing.T) {
	h := newCmdHarness(t)
	h.run(".k add foo")

	out := h.run(".export kick yaml")
	assert.True(t, strings.HasPrefix(out, "```yaml\n"))
	assert.Contains(t, out, "foo")
	assert.NotContains(t, out, "twitch:")
	assert.Contains(t, h.run(".export everything"), "Usage")

	assert.Contains(t, h.run(".tick"), "Tick complete")
	out = h.run(".health")
	assert.Contains(t, out, "Enabled: **no**")
	assert.Contains(t, out, "Active messages: Kick **0**")

	assert.Contains(t, h.run(".refresh"), "Usage")
	assert.Contains(t, h.run(".refresh kickCategory"), "Failed to resolve")
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, splitMessage("", 100))
	assert.Equal(t, []string{"short"}, splitMessage("short", 100))

	var b strings.Builder
	b.WriteString("```json\n")
	for i := 0; i < 50; i++ {
		b.WriteString("  \"line\": 1234567890,\n")
	}
	b.WriteString("```")
	parts := splitMessage(b.String(), 200)
	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 200)
		assert.True(t, strings.HasPrefix(p, "```json"), "each part reopens the fence")
		assert.Equal(t, 0, strings.Count(p, "```")%2, "fences balanced in %q", p)
	}
}

func TestExtractDiscordID(t *testing.T) {
	msg := &discordgo.Message{}
	assert.Equal(t, "123456789012345678", extractDiscordID(msg, []string{"foo", "<@!123456789012345678>"}))
	assert.Equal(t, "123456789012345678", extractDiscordID(msg, []string{"123456789012345678"}))
	assert.Equal(t, "", extractDiscordID(msg, []string{"foo", "12"}))
	msg.Mentions = []*discordgo.User{{ID: "999"}}
	assert.Equal(t, "999", extractDiscordID(msg, nil))
}
