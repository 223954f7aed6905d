package poller

import (
	"context"
	"regexp"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/store"
	"github.com/noxrp/stream-notifier/telemetry"
	"github.com/noxrp/stream-notifier/twitchapi"
)

const (
	maxDiscoveryTwitchPages = 50
	twitchPageSize          = 100
)

func (p *Poller) twitchCycle(ctx context.Context, st *store.State, settings store.Settings, kw *regexp.Regexp) bool {
	if !p.twitchEnabled() {
		return false
	}
	h := st.Health(platform.Twitch)
	if p.health.InBackoff(h) {
		return false
	}
	ctx, span := telemetry.StartSpan(ctx, "poller", "twitch.cycle", telemetry.PlatformAttr(string(platform.Twitch)))
	defer span.End()

	// Helix filters by game_id server side, so only the keyword is checked here.
	f := Filter{Keyword: kw}
	changed := p.checkTwitch(ctx, st, settings, f)
	if settings.DiscoveryMode {
		if settings.TwitchGameID != "" {
			changed = p.discoverTwitch(ctx, st, settings, f) || changed
		}
	} else {
		changed = p.dropUntracked(ctx, st, platform.Twitch, nil, settings.NotifyChannelID) || changed
	}
	return changed
}

func (p *Poller) checkTwitch(ctx context.Context, st *store.State, settings store.Settings, f Filter) bool {
	h := st.Health(platform.Twitch)
	if p.health.InBackoff(h) {
		return false
	}
	logins := handles(st.Twitch)
	if len(logins) == 0 {
		return false
	}
	changed, err := p.reconcileTwitchLogins(ctx, st, logins, discordIDs(st.Twitch), settings, f)
	if err == nil {
		p.health.RecordSuccess(platform.Twitch, h)
	}
	return changed
}

// reconcileTwitchLogins looks the logins up in batches and applies the
// result. A login without a stream in the game is offline. It stops at the
// first failed batch, which is recorded against Twitch's health.
func (p *Poller) reconcileTwitchLogins(ctx context.Context, st *store.State, logins []string, meta map[string]string, settings store.Settings, f Filter) (bool, error) {
	h := st.Health(platform.Twitch)
	active := st.Active(platform.Twitch)
	channelID := settings.NotifyChannelID
	changed := false
	for _, group := range chunk(logins, twitchapi.MaxLoginsPerRequest) {
		recs, err := p.twitch.StreamsByLogins(ctx, group, settings.TwitchGameID)
		if err != nil {
			p.health.RecordFailure(platform.Twitch, h, "twitch.getStreamsByUserLogins", err)
			return changed, err
		}
		byLogin := make(map[string]platform.LiveRecord, len(recs))
		for _, rec := range recs {
			if rec.Handle != "" {
				byLogin[rec.Handle] = rec
			}
		}
		for _, login := range group {
			rec, ok := byLogin[login]
			if !ok || rec.StreamID == "" || !f.Matches(rec) {
				if p.rec.EnsureOffline(ctx, active, channelID, platform.Twitch, login, meta[login]) {
					changed = true
				}
				continue
			}
			if p.rec.EnsureLive(ctx, active, channelID, rec.StreamID, p.payload(platform.Twitch, login, meta[login], rec, settings)) {
				changed = true
			}
		}
	}
	return changed, nil
}

// discoverTwitch walks up to DiscoveryTwitchPages pages of the game's live
// streams. When the cursor ran out the whole listing was read and untracked
// records not seen are removed; when the page budget ran out first, those
// records are looked up by login instead.
func (p *Poller) discoverTwitch(ctx context.Context, st *store.State, settings store.Settings, f Filter) bool {
	h := st.Health(platform.Twitch)
	if p.health.InBackoff(h) {
		return false
	}
	pages := store.ClampInt(settings.DiscoveryTwitchPages, 1, maxDiscoveryTwitchPages, store.DefaultDiscoveryTwitchPages)
	tracked := discordIDs(st.Twitch)
	active := st.Active(platform.Twitch)
	channelID := settings.NotifyChannelID

	seen := map[string]bool{}
	changed := false
	complete := false
	cursor := ""
	for page := 0; page < pages; page++ {
		recs, next, err := p.twitch.StreamsByGame(ctx, settings.TwitchGameID, twitchPageSize, cursor)
		if err != nil {
			p.health.RecordFailure(platform.Twitch, h, "twitch.getStreamsByGame", err)
			return changed
		}
		for _, rec := range recs {
			login := rec.Handle
			if login == "" || rec.StreamID == "" {
				continue
			}
			if _, ok := tracked[login]; ok {
				continue
			}
			if !f.Matches(rec) {
				continue
			}
			seen[login] = true
			if p.rec.EnsureLive(ctx, active, channelID, rec.StreamID, p.payload(platform.Twitch, login, "", rec, settings)) {
				changed = true
			}
		}
		if next == "" {
			complete = true
			break
		}
		cursor = next
	}
	p.health.RecordSuccess(platform.Twitch, h)

	if complete {
		return p.dropUntracked(ctx, st, platform.Twitch, seen, channelID) || changed
	}
	unseen := untrackedUnseen(st, platform.Twitch, seen)
	if len(unseen) == 0 {
		return changed
	}
	recheck, _ := p.reconcileTwitchLogins(ctx, st, unseen, nil, settings, f)
	return recheck || changed
}
