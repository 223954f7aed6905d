package poller

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/noxrp/stream-notifier/kickapi"
	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/reconcile"
	"github.com/noxrp/stream-notifier/store"
	"github.com/noxrp/stream-notifier/telemetry"
)

// CategoryCacheTTL is how long a resolved Kick category id is reused.
const CategoryCacheTTL = 24 * time.Hour

func (p *Poller) kickCycle(ctx context.Context, st *store.State, settings store.Settings, kw *regexp.Regexp) bool {
	if !p.kickEnabled() {
		return false
	}
	h := st.Health(platform.Kick)
	if p.health.InBackoff(h) {
		return false
	}
	ctx, span := telemetry.StartSpan(ctx, "poller", "kick.cycle", telemetry.PlatformAttr(string(platform.Kick)))
	defer span.End()

	categoryID, _ := p.ensureKickCategory(ctx, st)
	f := Filter{Keyword: kw, CategoryID: categoryID}

	changed := p.checkKick(ctx, st, settings, f)
	if settings.DiscoveryMode {
		if categoryID != "" {
			changed = p.discoverKick(ctx, st, settings, f) || changed
		}
	} else {
		changed = p.dropUntracked(ctx, st, platform.Kick, nil, settings.NotifyChannelID) || changed
	}
	return changed
}

// ensureKickCategory returns the cached category id, resolving it by name
// when the cache is empty or older than a day. While Kick is backing off the
// cached value is returned as-is. The error is the resolution failure, if one
// happened.
func (p *Poller) ensureKickCategory(ctx context.Context, st *store.State) (string, error) {
	now := p.health.Now()
	cached := st.Settings.KickCategoryID.String()
	resolvedAt := st.Settings.KickCategoryResolvedAt
	if cached != "" && resolvedAt > 0 && now.UnixMilli()-resolvedAt < CategoryCacheTTL.Milliseconds() {
		return cached, nil
	}
	h := st.Health(platform.Kick)
	if p.health.InBackoff(h) {
		return cached, nil
	}

	id, err := p.kick.FindCategoryID(ctx, st.Settings.KickCategoryName)
	if err != nil {
		p.health.RecordFailure(platform.Kick, h, "kick.findCategoryIdByName", err)
		return cached, err
	}
	st.Settings.KickCategoryID = platform.ID(id)
	st.Settings.KickCategoryResolvedAt = now.UnixMilli()
	p.health.RecordSuccess(platform.Kick, h)
	return id, nil
}

func (p *Poller) checkKick(ctx context.Context, st *store.State, settings store.Settings, f Filter) bool {
	h := st.Health(platform.Kick)
	if p.health.InBackoff(h) {
		return false
	}
	slugs := handles(st.Kick)
	if len(slugs) == 0 {
		return false
	}
	changed, err := p.reconcileKickSlugs(ctx, st, slugs, discordIDs(st.Kick), settings, f)
	if err == nil {
		p.health.RecordSuccess(platform.Kick, h)
	}
	return changed
}

// reconcileKickSlugs looks the slugs up in batches and applies the result.
// Slugs missing from an answer are offline. It stops at the first failed
// batch, which is recorded against Kick's health.
func (p *Poller) reconcileKickSlugs(ctx context.Context, st *store.State, slugs []string, meta map[string]string, settings store.Settings, f Filter) (bool, error) {
	h := st.Health(platform.Kick)
	active := st.Active(platform.Kick)
	channelID := settings.NotifyChannelID
	changed := false
	for _, group := range chunk(slugs, kickapi.MaxSlugsPerRequest) {
		recs, err := p.kick.ChannelsBySlugs(ctx, group)
		if err != nil {
			p.health.RecordFailure(platform.Kick, h, "kick.getChannelsBySlugs", err)
			return changed, err
		}

		processed := make(map[string]bool, len(recs))
		for _, rec := range recs {
			slug := rec.Handle
			if slug == "" {
				continue
			}
			processed[slug] = true
			if !f.Matches(rec) {
				if p.rec.EnsureOffline(ctx, active, channelID, platform.Kick, slug, meta[slug]) {
					changed = true
				}
				continue
			}
			key := reconcile.DeriveSessionKey(rec.StartedAt, rec.Title)
			if p.rec.EnsureLive(ctx, active, channelID, key, p.payload(platform.Kick, slug, meta[slug], rec, settings)) {
				changed = true
			}
		}
		// channels missing from the answer are treated as offline
		for _, slug := range group {
			if processed[slug] {
				continue
			}
			if p.rec.EnsureOffline(ctx, active, channelID, platform.Kick, slug, meta[slug]) {
				changed = true
			}
		}
	}
	return changed, nil
}

// discoverKick scans the live streams of the category. Tracked slugs are left
// to checkKick. The scan is complete when Kick returned fewer streams than
// the limit, and untracked records that were not seen are then removed.
// Otherwise those records are looked up by slug, since a busy category can
// hide them from every listing.
func (p *Poller) discoverKick(ctx context.Context, st *store.State, settings store.Settings, f Filter) bool {
	h := st.Health(platform.Kick)
	if p.health.InBackoff(h) {
		return false
	}
	limit := store.ClampInt(settings.DiscoveryKickLimit, 1, kickapi.MaxLivestreamLimit, store.DefaultDiscoveryKickLimit)

	recs, err := p.kick.LivestreamsByCategory(ctx, f.CategoryID, limit, "started_at")
	if err != nil {
		p.health.RecordFailure(platform.Kick, h, "kick.getLivestreamsByCategoryId", err)
		return false
	}
	p.health.RecordSuccess(platform.Kick, h)

	tracked := discordIDs(st.Kick)
	active := st.Active(platform.Kick)
	channelID := settings.NotifyChannelID
	seen := make(map[string]bool, len(recs))
	changed := false
	for _, rec := range recs {
		slug := rec.Handle
		if slug == "" {
			continue
		}
		if _, ok := tracked[slug]; ok {
			continue
		}
		// the listing is already scoped to the category
		if !rec.Live || !f.KeywordMatches(rec) {
			continue
		}
		seen[slug] = true
		key := reconcile.DeriveSessionKey(rec.StartedAt, rec.Title)
		if p.rec.EnsureLive(ctx, active, channelID, key, p.payload(platform.Kick, slug, "", rec, settings)) {
			changed = true
		}
	}
	if len(recs) < limit {
		return p.dropUntracked(ctx, st, platform.Kick, seen, channelID) || changed
	}
	unseen := untrackedUnseen(st, platform.Kick, seen)
	if len(unseen) == 0 {
		return changed
	}
	// untracked records carry no discord id, so meta stays empty
	recheck, _ := p.reconcileKickSlugs(ctx, st, unseen, nil, settings, f)
	return recheck || changed
}

// RefreshKickCategory drops the cached category id and resolves it again.
func (p *Poller) RefreshKickCategory(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.kickEnabled() {
		return "", platform.ErrNotConfigured
	}
	st := p.state
	st.Settings.KickCategoryID = ""
	st.Settings.KickCategoryResolvedAt = 0
	id, err := p.ensureKickCategory(ctx, st)
	if err == nil && id == "" {
		err = errors.New("kick is backing off; try again later")
	}
	if saveErr := p.saveLocked(ctx); saveErr != nil && err == nil {
		err = saveErr
	}
	p.publish()
	return id, err
}
