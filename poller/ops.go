package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/store"
)

// PlatformSnapshot is the read-only view of one platform.
type PlatformSnapshot struct {
	Enabled bool                 `json:"enabled"`
	Tracked int                  `json:"tracked"`
	Active  int                  `json:"activeMessages"`
	Health  store.PlatformHealth `json:"health"`
}

// InBackoff reports whether the platform was backing off at now.
func (s PlatformSnapshot) InBackoff(now time.Time) bool {
	return s.Health.NextAllowedAt > 0 && now.UnixMilli() < s.Health.NextAllowedAt
}

// Snapshot is published after every tick and operator change so the HTTP
// server can read it without taking the state lock.
type Snapshot struct {
	LastTickAt       time.Time        `json:"lastTickAt"`
	LastTickDuration time.Duration    `json:"-"`
	LastTickMs       int64            `json:"lastTickDurationMs"`
	Interval         time.Duration    `json:"-"`
	IntervalSeconds  int              `json:"checkIntervalSeconds"`
	Settings         store.Settings   `json:"settings"`
	Kick             PlatformSnapshot `json:"kick"`
	Twitch           PlatformSnapshot `json:"twitch"`
}

// publish stores a fresh Snapshot; p.mu must be held (or p not yet shared).
func (p *Poller) publish() {
	st := p.state
	s := &Snapshot{
		LastTickDuration: time.Duration(st.Runtime.LastTickDurationMs) * time.Millisecond,
		LastTickMs:       st.Runtime.LastTickDurationMs,
		Interval:         st.Settings.Interval(),
		IntervalSeconds:  st.Settings.IntervalSeconds(),
		Settings:         st.Settings,
		Kick: PlatformSnapshot{
			Enabled: p.kickEnabled(),
			Tracked: len(st.Kick),
			Active:  len(st.Runtime.KickActive),
			Health:  st.Runtime.KickHealth,
		},
		Twitch: PlatformSnapshot{
			Enabled: p.twitchEnabled(),
			Tracked: len(st.Twitch),
			Active:  len(st.Runtime.TwitchActive),
			Health:  st.Runtime.TwitchHealth,
		},
	}
	if st.Runtime.LastTickAt > 0 {
		s.LastTickAt = time.UnixMilli(st.Runtime.LastTickAt)
	}
	p.snap.Store(s)
}

// Snapshot returns the latest published view. It never blocks on a tick.
func (p *Poller) Snapshot() Snapshot {
	if s := p.snap.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// View runs fn with the state under the lock. fn must not keep references.
func (p *Poller) View(fn func(st *store.State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.state)
}

// Update applies fn to the state and persists it. If fn returns an error
// nothing is saved and the in-memory state is restored. A failed save keeps
// the change in memory, marked dirty for the next tick, and still returns the
// error. Changes to the interval, notify channel or mention flag restart the
// tick timer.
func (p *Poller) Update(ctx context.Context, fn func(st *store.State) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	backup := p.state.Clone()
	before := p.state.Settings
	if err := fn(p.state); err != nil {
		p.state = backup
		return err
	}
	p.state.Normalize()
	saveErr := p.saveLocked(ctx)

	after := p.state.Settings
	p.interval.Store(int64(after.Interval()))
	p.publish()
	if before.IntervalSeconds() != after.IntervalSeconds() ||
		before.NotifyChannelID != after.NotifyChannelID ||
		before.MentionHere != after.MentionHere {
		p.Reschedule()
	}
	if saveErr != nil {
		return fmt.Errorf("save state: %w", saveErr)
	}
	return nil
}

// RemoveStreamer stops tracking handle and takes down its notification, if
// any. The removal is kept even when the message cannot be deleted.
func (p *Poller) RemoveStreamer(ctx context.Context, plat platform.Name, handle string) (store.Streamer, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state
	removed, ok := st.RemoveStreamer(plat, handle)
	if !ok {
		return store.Streamer{}, false, nil
	}
	p.rec.EnsureOffline(ctx, st.Active(plat), st.Settings.NotifyChannelID, plat, removed.Handle, removed.DiscordID)
	err := p.saveLocked(ctx)
	p.publish()
	return removed, true, err
}

// ClearStreamers removes every tracked streamer of plat and returns how many
// there were.
func (p *Poller) ClearStreamers(ctx context.Context, plat platform.Name) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state
	list := st.Streamers(plat)
	removed := *list
	*list = []store.Streamer{}
	active := st.Active(plat)
	for _, s := range removed {
		p.rec.EnsureOffline(ctx, active, st.Settings.NotifyChannelID, plat, s.Handle, s.DiscordID)
	}
	err := p.saveLocked(ctx)
	p.publish()
	return len(removed), err
}

// Export renders the state the way the export command shows it.
func (p *Poller) Export(scope, format string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return store.Export(p.state, scope, format)
}

// StatusReport answers "why is (or isn't) this streamer announced".
type StatusReport struct {
	Platform      platform.Name
	Handle        string
	Tracked       bool
	Live          bool
	Title         string
	CategoryID    string
	CategoryName  string
	CategoryMatch bool
	KeywordMatch  bool
	URL           string
	// Announced is true when an active notification exists for the handle.
	Announced bool
}

// Status fetches handle's current live record. Failures go back to the
// caller and do not touch platform health.
func (p *Poller) Status(ctx context.Context, plat platform.Name, handle string) (StatusReport, error) {
	h := platform.NormalizeHandle(handle)
	if h == "" {
		return StatusReport{}, errors.New("handle is required")
	}

	var (
		settings store.Settings
		tracked  bool
		active   bool
	)
	p.View(func(st *store.State) {
		settings = st.Settings
		_, tracked = st.FindStreamer(plat, h)
		_, active = st.Active(plat)[h]
	})

	rep := StatusReport{Platform: plat, Handle: h, Tracked: tracked, Announced: active, URL: plat.ChannelURL(h)}
	var (
		rec       platform.LiveRecord
		found     bool
		wantCatID string
	)
	switch plat {
	case platform.Kick:
		if !p.kickEnabled() {
			return rep, platform.ErrNotConfigured
		}
		recs, err := p.kick.ChannelsBySlugs(ctx, []string{h})
		if err != nil {
			return rep, err
		}
		rec, found = pick(recs, h)
		wantCatID = settings.KickCategoryID.String()
	case platform.Twitch:
		if !p.twitchEnabled() {
			return rep, platform.ErrNotConfigured
		}
		recs, err := p.twitch.StreamsByLogins(ctx, []string{h}, "")
		if err != nil {
			return rep, err
		}
		rec, found = pick(recs, h)
		wantCatID = settings.TwitchGameID
	default:
		return rep, fmt.Errorf("unknown platform %q", plat)
	}
	if !found {
		rep.CategoryMatch = wantCatID == ""
		return rep, nil
	}

	f := Filter{Keyword: CompileKeyword(settings.KeywordRegex), CategoryID: wantCatID}
	rep.Live = rec.Live
	rep.Title = rec.Title
	rep.CategoryID = rec.CategoryID
	rep.CategoryName = rec.CategoryName
	rep.CategoryMatch = f.CategoryMatches(rec)
	rep.KeywordMatch = f.KeywordMatches(rec)
	return rep, nil
}

func pick(recs []platform.LiveRecord, handle string) (platform.LiveRecord, bool) {
	for _, r := range recs {
		if r.Handle == handle {
			return r, true
		}
	}
	return platform.LiveRecord{}, false
}
