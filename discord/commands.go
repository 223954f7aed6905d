package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/poller"
	"github.com/noxrp/stream-notifier/store"
)

// maxMessageLen is Discord's message content limit.
const maxMessageLen = 2000

const noAccess = "❌ | You don't have permission to use this bot."

// Engine is what the commands operate on; *poller.Poller implements it.
type Engine interface {
	View(fn func(st *store.State))
	Update(ctx context.Context, fn func(st *store.State) error) error
	RemoveStreamer(ctx context.Context, plat platform.Name, handle string) (store.Streamer, bool, error)
	ClearStreamers(ctx context.Context, plat platform.Name) (int, error)
	Status(ctx context.Context, plat platform.Name, handle string) (poller.StatusReport, error)
	RunTick(ctx context.Context) (poller.Result, error)
	RefreshKickCategory(ctx context.Context) (string, error)
	Export(scope, format string) ([]byte, error)
	Snapshot() poller.Snapshot
}

var _ Engine = (*poller.Poller)(nil)

var (
	mentionRe   = regexp.MustCompile(`<@!?(\d{17,20})>`)
	snowflakeRe = regexp.MustCompile(`^\d{17,20}$`)
	channelRe   = regexp.MustCompile(`^<#(\d{17,20})>$`)
)

// Handler serves the prefix commands.
type Handler struct {
	s       Session
	engine  Engine
	prefix  string
	allowed []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewHandler returns a command handler. allowedRoleIDs empty means members
// need the Manage Server permission.
func NewHandler(s Session, engine Engine, prefix string, allowedRoleIDs []string, logger *slog.Logger) *Handler {
	if prefix == "" {
		prefix = "."
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		s:       s,
		engine:  engine,
		prefix:  prefix,
		allowed: allowedRoleIDs,
		timeout: 2 * time.Minute,
		logger:  logger.With(slog.String("component", "commands")),
	}
}

// OnMessageCreate is the discordgo event handler.
func (h *Handler) OnMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	h.Handle(ctx, m.Message)
}

// Handle runs the command in msg, if any.
func (h *Handler) Handle(ctx context.Context, msg *discordgo.Message) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, h.prefix) {
		return
	}
	raw := strings.TrimSpace(content[len(h.prefix):])
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	var run func(context.Context, *discordgo.Message, string, []string) string
	switch cmd {
	case "help":
		run = h.help
	case "config":
		run = h.config
	case "health":
		run = h.health
	case "export":
		run = h.export
	case "tick":
		run = h.tick
	case "refresh":
		run = h.refresh
	case "set":
		run = h.set
	case "k":
		run = h.streamers(platform.Kick)
	case "t":
		run = h.streamers(platform.Twitch)
	default:
		return
	}

	log := h.logger.With(slog.String("command", cmd), slog.String("user_id", msg.Author.ID))
	if !h.hasAccess(ctx, msg) {
		log.Info("command denied")
		h.reply(ctx, msg, noAccess)
		return
	}
	log.Debug("command")
	h.reply(ctx, msg, run(ctx, msg, raw, args))
}

func (h *Handler) hasAccess(ctx context.Context, msg *discordgo.Message) bool {
	if len(h.allowed) == 0 {
		perms, err := h.s.UserChannelPermissions(msg.Author.ID, msg.ChannelID, discordgo.WithContext(ctx))
		if err != nil {
			h.logger.Warn("permission lookup failed", slog.Any("err", err))
			return false
		}
		return perms&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) != 0
	}
	var roles []string
	if msg.Member != nil {
		roles = msg.Member.Roles
	} else {
		m, err := h.s.GuildMember(msg.GuildID, msg.Author.ID, discordgo.WithContext(ctx))
		if err != nil {
			return false
		}
		roles = m.Roles
	}
	for _, id := range h.allowed {
		if slices.Contains(roles, id) {
			return true
		}
	}
	return false
}

func (h *Handler) reply(ctx context.Context, msg *discordgo.Message, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := h.s.ChannelMessageSend(msg.ChannelID, part, discordgo.WithContext(ctx)); err != nil {
			h.logger.Warn("reply failed", slog.Any("err", err))
			return
		}
	}
}

// splitMessage cuts text on line boundaries into parts of at most limit
// bytes, closing and reopening a code fence that a cut falls inside. Lines
// too long for a single message are truncated.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}
	const closeFence = "\n```"
	var (
		parts []string
		cur   strings.Builder
		fence string
	)
	flush := func() {
		s := strings.TrimRight(cur.String(), "\n")
		if fence != "" {
			s += closeFence
		}
		parts = append(parts, s)
		cur.Reset()
		if fence != "" {
			cur.WriteString(fence)
			cur.WriteByte('\n')
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if maxLine := limit - 32; len(line) > maxLine {
			line = line[:maxLine]
		}
		if cur.Len()+len(line)+1+len(closeFence) > limit {
			flush()
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasPrefix(line, "```") {
			if fence == "" {
				fence = line
			} else {
				fence = ""
			}
		}
	}
	if s := strings.TrimRight(cur.String(), "\n"); s != "" {
		parts = append(parts, s)
	}
	return parts
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func parseOnOff(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, true
	case "off", "false", "no", "0", "disable", "disabled":
		return false, true
	}
	return false, false
}

func discordTime(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return fmt.Sprintf("<t:%d:R>", ms/1000)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// extractDiscordID finds a user id in a real mention, a pasted <@id> or a
// raw snowflake argument.
func extractDiscordID(msg *discordgo.Message, args []string) string {
	if len(msg.Mentions) > 0 && msg.Mentions[0] != nil {
		return msg.Mentions[0].ID
	}
	if m := mentionRe.FindStringSubmatch(strings.Join(args, " ")); m != nil {
		return m[1]
	}
	for _, a := range args {
		if snowflakeRe.MatchString(a) {
			return a
		}
	}
	return ""
}

func (h *Handler) help(_ context.Context, _ *discordgo.Message, _ string, _ []string) string {
	p := h.prefix
	lines := []string{
		"**Stream notifier commands**",
		"```",
		p + "help | " + p + "config | " + p + "health | " + p + "tick",
		p + "export [all|kick|twitch] [json|yaml]",
		p + "refresh kickCategory",
		p + "set channel <#channel|channelId|this>",
		p + "set mentionhere <on|off>",
		p + "set regex <pattern>",
		p + "set interval <10..3600>",
		p + "set discovery <on|off>",
		p + "set discoveryTwitchPages <1..50>",
		p + "set discoveryKickLimit <1..100>",
		p + "set twitchGameId <game_id>",
		p + "set kickCategoryName <name>",
		"",
		p + "k list | " + p + "t list",
		p + "k add <kickSlug> [@user] | " + p + "t add <twitchLogin> [@user]",
		p + "k addmany <slug1> <slug2> ...",
		p + "k setmention <kickSlug> <@user|id|none>",
		p + "k remove <kickSlug>",
		p + "k clear --yes",
		p + "k status <kickSlug>",
		"```",
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) config(_ context.Context, _ *discordgo.Message, _ string, _ []string) string {
	var (
		s              store.Settings
		nKick, nTwitch int
	)
	h.engine.View(func(st *store.State) {
		s = st.Settings
		nKick, nTwitch = len(st.Kick), len(st.Twitch)
	})
	ch := "(not set)"
	if s.NotifyChannelID != "" {
		ch = "<#" + s.NotifyChannelID + ">"
	}
	catID := s.KickCategoryID.String()
	if catID == "" {
		catID = "-"
	}
	return strings.Join([]string{
		"**Configuration**",
		"Notify channel: " + ch,
		"mentionHere: **" + onOff(s.MentionHere) + "**",
		fmt.Sprintf("interval: **%ds**", s.IntervalSeconds()),
		"keywordRegex: `" + s.KeywordRegex + "`",
		fmt.Sprintf("Discovery: **%s** (Twitch pages **%d**, Kick limit **%d**)",
			onOff(s.DiscoveryMode), s.DiscoveryTwitchPages, s.DiscoveryKickLimit),
		"Twitch game_id: **" + s.TwitchGameID + "**",
		"Kick category: **" + s.KickCategoryName + "** (id **" + catID + "**, resolved " + discordTime(s.KickCategoryResolvedAt) + ")",
		fmt.Sprintf("Lists: Kick **%d** • Twitch **%d**", nKick, nTwitch),
	}, "\n")
}

func platformHealthLines(name string, ps poller.PlatformSnapshot, now time.Time) string {
	until := "-"
	if ps.InBackoff(now) {
		until = discordTime(ps.Health.NextAllowedAt)
	}
	lastErr := "-"
	if ps.Health.LastError != "" {
		lastErr = "`" + truncate(ps.Health.LastError, 240) + "`"
	}
	enabled := "no"
	if ps.Enabled {
		enabled = "yes"
	}
	return strings.Join([]string{
		"**" + name + "**",
		"Enabled: **" + enabled + "**",
		fmt.Sprintf("Failures: **%d**", ps.Health.ConsecutiveFailures),
		"Backoff until: **" + until + "**",
		"Last success: **" + discordTime(ps.Health.LastSuccessAt) + "**",
		"Last error: " + lastErr,
	}, "\n")
}

func (h *Handler) health(_ context.Context, _ *discordgo.Message, _ string, _ []string) string {
	snap := h.engine.Snapshot()
	now := time.Now()
	last := "-"
	if !snap.LastTickAt.IsZero() {
		last = discordTime(snap.LastTickAt.UnixMilli())
	}
	return strings.Join([]string{
		"**Health**",
		fmt.Sprintf("Last tick: %s • Duration: **%dms**", last, snap.LastTickMs),
		fmt.Sprintf("Active messages: Kick **%d** • Twitch **%d**", snap.Kick.Active, snap.Twitch.Active),
		"",
		platformHealthLines("Kick", snap.Kick, now),
		"",
		platformHealthLines("Twitch", snap.Twitch, now),
	}, "\n")
}

func (h *Handler) export(_ context.Context, _ *discordgo.Message, _ string, args []string) string {
	scope, format := store.ExportAll, "json"
	for _, a := range args {
		switch v := strings.ToLower(a); v {
		case store.ExportAll, store.ExportKick, store.ExportTwitch:
			scope = v
		case "json", "yaml", "yml":
			format = v
		default:
			return fmt.Sprintf("⚠️ | Usage: `%sexport [all|kick|twitch] [json|yaml]`", h.prefix)
		}
	}
	b, err := h.engine.Export(scope, format)
	if err != nil {
		return "❌ | " + err.Error()
	}
	lang := "json"
	if format != "json" {
		lang = "yaml"
	}
	return "```" + lang + "\n" + strings.TrimRight(string(b), "\n") + "\n```"
}

func (h *Handler) tick(ctx context.Context, _ *discordgo.Message, _ string, _ []string) string {
	res, err := h.engine.RunTick(ctx)
	if res.Skipped {
		return "⏳ | A tick is already running; try again in a moment."
	}
	snap := h.engine.Snapshot()
	out := fmt.Sprintf("✅ | Tick complete in **%dms**. Active messages: Kick **%d** • Twitch **%d**. Next run ~%ds.",
		res.Duration.Milliseconds(), snap.Kick.Active, snap.Twitch.Active, snap.IntervalSeconds)
	if err != nil {
		out += "\n⚠️ | State was not saved: " + err.Error()
	}
	return out
}

func (h *Handler) refresh(ctx context.Context, _ *discordgo.Message, _ string, args []string) string {
	if len(args) == 0 || strings.ToLower(args[0]) != "kickcategory" {
		return fmt.Sprintf("⚠️ | Usage: `%srefresh kickCategory`", h.prefix)
	}
	id, err := h.engine.RefreshKickCategory(ctx)
	if err != nil || id == "" {
		return fmt.Sprintf("⚠️ | Failed to resolve Kick category. Check `%shealth` for details.", h.prefix)
	}
	var name string
	h.engine.View(func(st *store.State) { name = st.Settings.KickCategoryName })
	return fmt.Sprintf("✅ | Kick category resolved: **%s** (%s)", id, name)
}

// restOf returns the raw text after "<cmd> <key> " with spacing preserved.
func restOf(raw string, words int) string {
	s := strings.TrimSpace(raw)
	for i := 0; i < words; i++ {
		idx := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' })
		if idx < 0 {
			return ""
		}
		s = strings.TrimSpace(s[idx:])
	}
	return s
}

func (h *Handler) set(ctx context.Context, msg *discordgo.Message, raw string, args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("⚠️ | Usage: `%sset <key> <value>`", h.prefix)
	}
	key := strings.ToLower(args[0])
	val := ""
	if len(args) > 1 {
		val = args[1]
	}
	intArg := func(min, max int, usage string, apply func(*store.Settings, int)) string {
		n, err := strconv.Atoi(val)
		if err != nil || n < min || n > max {
			return fmt.Sprintf("⚠️ | Usage: `%sset %s` (%d..%d)", h.prefix, usage, min, max)
		}
		if err := h.engine.Update(ctx, func(st *store.State) error { apply(&st.Settings, n); return nil }); err != nil {
			return "❌ | " + err.Error()
		}
		return ""
	}

	switch key {
	case "channel":
		chID := ""
		switch {
		case strings.EqualFold(val, "this"):
			chID = msg.ChannelID
		case channelRe.MatchString(val):
			chID = channelRe.FindStringSubmatch(val)[1]
		case snowflakeRe.MatchString(val):
			chID = val
		}
		if chID == "" {
			return fmt.Sprintf("⚠️ | Usage: `%sset channel <#channel|channelId|this>`", h.prefix)
		}
		ch, err := h.s.Channel(chID, discordgo.WithContext(ctx))
		if err != nil || ch.GuildID == "" || ch.Type == discordgo.ChannelTypeDM || ch.Type == discordgo.ChannelTypeGroupDM || ch.Type == discordgo.ChannelTypeGuildCategory {
			return "❌ | Invalid channel (must be a guild text channel the bot can send to)."
		}
		if err := h.engine.Update(ctx, func(st *store.State) error { st.Settings.NotifyChannelID = chID; return nil }); err != nil {
			return "❌ | " + err.Error()
		}
		return "✅ | notify channel set to <#" + chID + ">"

	case "mentionhere":
		v, ok := parseOnOff(val)
		if !ok {
			return fmt.Sprintf("⚠️ | Usage: `%sset mentionhere <on|off>`", h.prefix)
		}
		if err := h.engine.Update(ctx, func(st *store.State) error { st.Settings.MentionHere = v; return nil }); err != nil {
			return "❌ | " + err.Error()
		}
		return "✅ | mentionHere set to **" + onOff(v) + "**"

	case "interval":
		if out := intArg(store.MinIntervalSeconds, store.MaxIntervalSeconds, "interval <seconds>",
			func(s *store.Settings, n int) { s.CheckIntervalSeconds = n }); out != "" {
			return out
		}
		return fmt.Sprintf("✅ | intervalSeconds set to **%s**", val)

	case "discovery":
		v, ok := parseOnOff(val)
		if !ok {
			return fmt.Sprintf("⚠️ | Usage: `%sset discovery <on|off>`", h.prefix)
		}
		if err := h.engine.Update(ctx, func(st *store.State) error { st.Settings.DiscoveryMode = v; return nil }); err != nil {
			return "❌ | " + err.Error()
		}
		return "✅ | discoveryMode set to **" + onOff(v) + "**"

	case "discoverytwitchpages":
		if out := intArg(1, 50, "discoveryTwitchPages <n>",
			func(s *store.Settings, n int) { s.DiscoveryTwitchPages = n }); out != "" {
			return out
		}
		return "✅ | discoveryTwitchPages set to **" + val + "**"

	case "discoverykicklimit":
		if out := intArg(1, 100, "discoveryKickLimit <n>",
			func(s *store.Settings, n int) { s.DiscoveryKickLimit = n }); out != "" {
			return out
		}
		return "✅ | discoveryKickLimit set to **" + val + "**"

	case "twitchgameid":
		id := strings.TrimSpace(val)
		if id == "" {
			return fmt.Sprintf("⚠️ | Usage: `%sset twitchGameId <game_id>`", h.prefix)
		}
		if err := h.engine.Update(ctx, func(st *store.State) error { st.Settings.TwitchGameID = id; return nil }); err != nil {
			return "❌ | " + err.Error()
		}
		return "✅ | Twitch game_id set to **" + id + "**"

	case "regex":
		pattern := restOf(raw, 2)
		if err := poller.ValidateKeyword(pattern); err != nil {
			return "❌ | " + err.Error()
		}
		if err := h.engine.Update(ctx, func(st *store.State) error { st.Settings.KeywordRegex = pattern; return nil }); err != nil {
			return "❌ | " + err.Error()
		}
		return "✅ | keywordRegex set to `" + pattern + "`"

	case "kickcategoryname":
		name := restOf(raw, 2)
		if name == "" {
			return fmt.Sprintf("⚠️ | Usage: `%sset kickCategoryName <name>`", h.prefix)
		}
		err := h.engine.Update(ctx, func(st *store.State) error {
			st.Settings.KickCategoryName = name
			st.Settings.KickCategoryID = ""
			st.Settings.KickCategoryResolvedAt = 0
			return nil
		})
		if err != nil {
			return "❌ | " + err.Error()
		}
		return "✅ | Kick category name set to **" + name + "** (will re-resolve id)"
	}
	return fmt.Sprintf("⚠️ | Unknown setting key: **%s**. Use `%shelp`.", args[0], h.prefix)
}

var streamerSubcommands = []string{"list", "remove", "add", "status", "addmany", "setmention", "clear"}

func (h *Handler) streamers(plat platform.Name) func(context.Context, *discordgo.Message, string, []string) string {
	return func(ctx context.Context, msg *discordgo.Message, _ string, args []string) string {
		cmd := "k"
		noun := "kickSlug"
		if plat == platform.Twitch {
			cmd = "t"
			noun = "twitchLogin"
		}
		title := plat.Title()
		usage := func(rest string) string {
			return fmt.Sprintf("⚠️ | Usage: `%s%s %s`", h.prefix, cmd, rest)
		}
		sub := ""
		if len(args) > 0 {
			sub = strings.ToLower(args[0])
		}
		arg1 := ""
		if len(args) > 1 {
			arg1 = platform.NormalizeHandle(args[1])
		}

		switch sub {
		case "list":
			var list []store.Streamer
			h.engine.View(func(st *store.State) { list = slices.Clone(*st.Streamers(plat)) })
			if len(list) == 0 {
				return "**" + title + " Streamers**\nList is empty."
			}
			lines := []string{fmt.Sprintf("**%s Streamers** (total **%d**)", title, len(list))}
			for i, s := range list {
				line := fmt.Sprintf("%d. %s", i+1, s.Handle)
				if s.DiscordID != "" {
					line += " <@" + s.DiscordID + ">"
				}
				lines = append(lines, line)
			}
			return strings.Join(lines, "\n")

		case "status":
			if arg1 == "" {
				return usage("status <" + noun + ">")
			}
			rep, err := h.engine.Status(ctx, plat, arg1)
			if err != nil {
				if errors.Is(err, platform.ErrNotConfigured) {
					return "⚠️ | " + title + " credentials are not configured."
				}
				return fmt.Sprintf("❌ | %s API error: %v", title, err)
			}
			return formatStatus(rep, h.keyword())

		case "addmany":
			var handles []string
			for _, a := range args[1:] {
				if n := platform.NormalizeHandle(a); n != "" {
					handles = append(handles, n)
				}
			}
			if len(handles) == 0 {
				return usage("addmany <" + noun + "1> <" + noun + "2> ...")
			}
			added := 0
			err := h.engine.Update(ctx, func(st *store.State) error {
				for _, hd := range handles {
					if st.AddStreamer(plat, hd, "") {
						added++
					}
				}
				return nil
			})
			if err != nil {
				return "❌ | " + err.Error()
			}
			return fmt.Sprintf("✅ | Added **%d** %s streamer(s).", added, title)

		case "setmention":
			who := ""
			if len(args) > 2 {
				who = args[2]
			}
			if arg1 == "" || who == "" {
				return usage("setmention <" + noun + "> <@user|id|none>")
			}
			id := ""
			if !strings.EqualFold(who, "none") {
				if id = extractDiscordID(msg, args[2:]); id == "" {
					return "⚠️ | Could not parse Discord user. Use a real mention or raw ID, or `none`."
				}
			}
			found := false
			err := h.engine.Update(ctx, func(st *store.State) error {
				found = st.SetMention(plat, arg1, id)
				return nil
			})
			if err != nil {
				return "❌ | " + err.Error()
			}
			if !found {
				return fmt.Sprintf("⚠️ | Streamer %s not found in %s list.", arg1, title)
			}
			if id == "" {
				return fmt.Sprintf("✅ | %s mention cleared.", arg1)
			}
			return fmt.Sprintf("✅ | %s mention set to <@%s>", arg1, id)

		case "clear":
			if len(args) < 2 || args[1] != "--yes" {
				return fmt.Sprintf("⚠️ | This will remove ALL %s streamers. Confirm: `%s%s clear --yes`", title, h.prefix, cmd)
			}
			n, err := h.engine.ClearStreamers(ctx, plat)
			if err != nil {
				return "❌ | " + err.Error()
			}
			return fmt.Sprintf("🗑️ | Cleared %s streamer list (**%d** removed).", title, n)

		case "remove":
			if arg1 == "" {
				return usage("remove <" + noun + ">")
			}
			_, ok, err := h.engine.RemoveStreamer(ctx, plat, arg1)
			if err != nil {
				return "❌ | " + err.Error()
			}
			if !ok {
				return fmt.Sprintf("⚠️ | Streamer %s was not in %s list.", arg1, title)
			}
			return fmt.Sprintf("🗑️ | Streamer %s removed from %s list.", arg1, title)
		}

		// add: "<cmd> add <handle> [@user]" or "<cmd> <handle> [@user]"
		handleArg := sub
		if sub == "add" {
			handleArg = arg1
		}
		if handleArg == "" || slices.Contains(streamerSubcommands, handleArg) {
			return usage("add <" + noun + "> [@user]")
		}
		id := extractDiscordID(msg, args)
		added := false
		err := h.engine.Update(ctx, func(st *store.State) error {
			added = st.AddStreamer(plat, handleArg, id)
			return nil
		})
		if err != nil {
			return "❌ | " + err.Error()
		}
		if !added {
			return fmt.Sprintf("⚠️ | Streamer %s is already in %s list.", handleArg, title)
		}
		if id != "" {
			return fmt.Sprintf("✅ | Streamer %s added to %s list. (ID: %s)", handleArg, title, id)
		}
		return fmt.Sprintf("✅ | Streamer %s added to %s list.", handleArg, title)
	}
}

func (h *Handler) keyword() string {
	var kw string
	h.engine.View(func(st *store.State) { kw = st.Settings.KeywordRegex })
	return kw
}

func formatStatus(rep poller.StatusReport, keyword string) string {
	title := rep.Title
	if title == "" {
		title = "(empty)"
	}
	catName := rep.CategoryName
	if catName == "" {
		catName = "?"
	}
	catID := rep.CategoryID
	if catID == "" {
		catID = "?"
	}
	return strings.Join([]string{
		fmt.Sprintf("**%s Status: %s**", rep.Platform.Title(), rep.Handle),
		"Tracked: **" + yesNo(rep.Tracked) + "** • Announced: **" + yesNo(rep.Announced) + "**",
		"Live: **" + yesNo(rep.Live) + "**",
		fmt.Sprintf("Category: **%s** (id: %s)", catName, catID),
		"Category match: **" + yesNo(rep.CategoryMatch) + "**",
		fmt.Sprintf("Regex (%s) match: **%s**", keyword, yesNo(rep.KeywordMatch)),
		"Title: " + title,
		"URL: " + rep.URL,
	}, "\n")
}
