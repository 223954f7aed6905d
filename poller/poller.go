// Package poller runs the poll tick: it asks Kick and Twitch who is live,
// filters the answers and hands each streamer to the reconciler, then
// persists the state document once per tick.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/noxrp/stream-notifier/health"
	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/reconcile"
	"github.com/noxrp/stream-notifier/store"
	"github.com/noxrp/stream-notifier/telemetry"
)

// ForcedSaveEvery bounds how long in-memory state may drift from the store
// when nothing else triggers a save.
const ForcedSaveEvery = 5 * time.Minute

// KickSource is the subset of the Kick client the poller uses.
type KickSource interface {
	Enabled() bool
	ChannelsBySlugs(ctx context.Context, slugs []string) ([]platform.LiveRecord, error)
	FindCategoryID(ctx context.Context, name string) (string, error)
	LivestreamsByCategory(ctx context.Context, categoryID string, limit int, sort string) ([]platform.LiveRecord, error)
}

// TwitchSource is the subset of the Twitch client the poller uses.
type TwitchSource interface {
	Enabled() bool
	StreamsByLogins(ctx context.Context, logins []string, gameID string) ([]platform.LiveRecord, error)
	StreamsByGame(ctx context.Context, gameID string, first int, after string) ([]platform.LiveRecord, string, error)
}

// Result describes one RunTick call.
type Result struct {
	Changed  bool
	Skipped  bool
	Saved    bool
	Duration time.Duration
}

// Config wires a Poller.
type Config struct {
	Store      store.Store
	Kick       KickSource
	Twitch     TwitchSource
	Reconciler *reconcile.Reconciler
	Health     *health.Tracker
	Logger     *slog.Logger
}

// Poller owns the in-memory State. mu guards it and is held for a whole
// tick and for every operator update, so updates wait for a running tick.
type Poller struct {
	store  store.Store
	kick   KickSource
	twitch TwitchSource
	rec    *reconcile.Reconciler
	health *health.Tracker
	logger *slog.Logger

	mu       sync.Mutex
	state    *store.State
	dirty    bool
	lastSave time.Time

	running  atomic.Bool
	interval atomic.Int64
	snap     atomic.Pointer[Snapshot]
	resched  chan struct{}
}

// New returns a Poller over an already loaded state.
func New(st *store.State, cfg Config) *Poller {
	if cfg.Health == nil {
		cfg.Health = health.NewTracker()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	st.Normalize()
	p := &Poller{
		store:   cfg.Store,
		kick:    cfg.Kick,
		twitch:  cfg.Twitch,
		rec:     cfg.Reconciler,
		health:  cfg.Health,
		logger:  cfg.Logger.With(slog.String("component", "poller")),
		state:   st,
		resched: make(chan struct{}, 1),
	}
	p.interval.Store(int64(st.Settings.Interval()))
	p.publish()
	return p
}

func (p *Poller) kickEnabled() bool   { return p.kick != nil && p.kick.Enabled() }
func (p *Poller) twitchEnabled() bool { return p.twitch != nil && p.twitch.Enabled() }

// RunTick runs one poll cycle. A call made while another tick is running
// returns immediately with Skipped set.
func (p *Poller) RunTick(ctx context.Context) (Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		telemetry.CountTick(true)
		return Result{Skipped: true}, nil
	}
	defer p.running.Store(false)

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "poller", "tick")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "poller"))

	st := p.state
	start := p.health.Now()
	st.Runtime.LastTickAt = start.UnixMilli()

	settings := st.Settings
	kickHealth, twitchHealth := st.Runtime.KickHealth, st.Runtime.TwitchHealth
	kw := CompileKeyword(settings.KeywordRegex)

	// Each cycle touches only its own platform's list, active map and
	// health record; Kick additionally owns the cached category fields.
	var kickChanged, twitchChanged bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kickChanged = p.kickCycle(gctx, st, settings, kw)
		return nil
	})
	g.Go(func() error {
		twitchChanged = p.twitchCycle(gctx, st, settings, kw)
		return nil
	})
	_ = g.Wait()

	res := Result{Changed: kickChanged || twitchChanged}
	now := p.health.Now()
	res.Duration = now.Sub(start)
	st.Runtime.LastTickDurationMs = res.Duration.Milliseconds()

	dirty := p.dirty || st.Settings != settings ||
		healthChanged(kickHealth, st.Runtime.KickHealth) || healthChanged(twitchHealth, st.Runtime.TwitchHealth)
	var saveErr error
	if res.Changed || dirty || now.Sub(p.lastSave) >= ForcedSaveEvery {
		if saveErr = p.saveLocked(ctx); saveErr != nil {
			log.Error("save state failed", slog.Any("err", saveErr))
			telemetry.RecordError(span, saveErr)
		} else {
			res.Saved = true
		}
	}

	if telemetry.TickDuration != nil {
		telemetry.TickDuration.Observe(res.Duration.Seconds())
	}
	telemetry.CountTick(false)
	telemetry.SetActiveMessages(string(platform.Kick), len(st.Runtime.KickActive))
	telemetry.SetActiveMessages(string(platform.Twitch), len(st.Runtime.TwitchActive))
	p.publish()
	if saveErr == nil {
		telemetry.SetSpanSuccess(span)
	}

	log.Debug("tick finished",
		slog.Bool("changed", res.Changed),
		slog.Bool("saved", res.Saved),
		slog.Duration("duration", res.Duration))
	return res, saveErr
}

// saveLocked persists the state; p.mu must be held.
func (p *Poller) saveLocked(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.Save(ctx, p.state); err != nil {
		p.dirty = true
		return err
	}
	p.dirty = false
	p.lastSave = p.health.Now()
	return nil
}

func (p *Poller) payload(plat platform.Name, handle, discordID string, rec platform.LiveRecord, settings store.Settings) reconcile.Payload {
	return reconcile.Payload{
		Platform:     plat,
		Handle:       handle,
		DiscordID:    discordID,
		Title:        rec.Title,
		CategoryName: rec.CategoryName,
		URL:          plat.ChannelURL(handle),
		MentionHere:  settings.MentionHere,
	}
}

// healthChanged ignores LastSuccessAt, which moves on every good tick and
// is left to the periodic save.
func healthChanged(a, b store.PlatformHealth) bool {
	a.LastSuccessAt, b.LastSuccessAt = 0, 0
	return a != b
}

func discordIDs(list []store.Streamer) map[string]string {
	m := make(map[string]string, len(list))
	for _, s := range list {
		m[s.Handle] = s.DiscordID
	}
	return m
}

func handles(list []store.Streamer) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s.Handle != "" {
			out = append(out, s.Handle)
		}
	}
	return out
}

// untrackedUnseen returns the sorted handles with an active record of plat
// that are neither tracked nor in seen.
func untrackedUnseen(st *store.State, plat platform.Name, seen map[string]bool) []string {
	tracked := discordIDs(*st.Streamers(plat))
	var out []string
	for _, h := range st.ActiveHandles(plat) {
		if _, ok := tracked[h]; ok || seen[h] {
			continue
		}
		out = append(out, h)
	}
	return out
}

// dropUntracked reconciles as offline every active record of plat whose
// handle is neither tracked nor in seen. Used after a complete discovery
// scan, and with seen == nil when discovery is off.
func (p *Poller) dropUntracked(ctx context.Context, st *store.State, plat platform.Name, seen map[string]bool, channelID string) bool {
	active := st.Active(plat)
	changed := false
	for _, h := range untrackedUnseen(st, plat, seen) {
		if p.rec.EnsureOffline(ctx, active, channelID, plat, h, "") {
			changed = true
		}
	}
	return changed
}
