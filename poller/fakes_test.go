package poller_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/noxrp/stream-notifier/health"
	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/poller"
	"github.com/noxrp/stream-notifier/reconcile"
	"github.com/noxrp/stream-notifier/reconcile/reconciletest"
	"github.com/noxrp/stream-notifier/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.UnixMilli(1_714_557_600_000)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memStore struct {
	mu    sync.Mutex
	saves int
	last  []byte
	err   error
}

func (m *memStore) Load(context.Context) (*store.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return store.Defaults(), nil
	}
	return store.Decode(m.last)
}

func (m *memStore) Save(_ context.Context, s *store.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	b, err := store.Encode(s)
	if err != nil {
		return err
	}
	m.saves++
	m.last = b
	return nil
}

func (m *memStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type fakeKick struct {
	mu          sync.Mutex
	channels    map[string]platform.LiveRecord
	livestreams []platform.LiveRecord
	categoryID  string
	categoryErr error
	channelsErr error

	channelCalls  int
	categoryCalls int
	liveCalls     int

	// when set, ChannelsBySlugs signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func newFakeKick() *fakeKick {
	return &fakeKick{channels: map[string]platform.LiveRecord{}, categoryID: "15"}
}

func (f *fakeKick) Enabled() bool { return true }

func (f *fakeKick) set(rec platform.LiveRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[rec.Handle] = rec
}

func (f *fakeKick) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelsErr = err
}

func (f *fakeKick) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channelCalls
}

func (f *fakeKick) ChannelsBySlugs(_ context.Context, slugs []string) ([]platform.LiveRecord, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelCalls++
	if f.channelsErr != nil {
		return nil, f.channelsErr
	}
	var out []platform.LiveRecord
	for _, s := range slugs {
		if rec, ok := f.channels[s]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeKick) FindCategoryID(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryCalls++
	if f.categoryErr != nil {
		return "", f.categoryErr
	}
	return f.categoryID, nil
}

func (f *fakeKick) LivestreamsByCategory(_ context.Context, _ string, limit int, _ string) ([]platform.LiveRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveCalls++
	out := f.livestreams
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeTwitch struct {
	mu      sync.Mutex
	streams map[string]platform.LiveRecord
	// pages answered by StreamsByGame in order; the last page has no cursor
	pages     [][]platform.LiveRecord
	err       error
	gameIDs   []string
	gameCalls int
}

func newFakeTwitch() *fakeTwitch {
	return &fakeTwitch{streams: map[string]platform.LiveRecord{}}
}

func (f *fakeTwitch) Enabled() bool { return true }

func (f *fakeTwitch) set(rec platform.LiveRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[rec.Handle] = rec
}

func (f *fakeTwitch) drop(login string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.streams, login)
}

func (f *fakeTwitch) StreamsByLogins(_ context.Context, logins []string, gameID string) ([]platform.LiveRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gameIDs = append(f.gameIDs, gameID)
	if f.err != nil {
		return nil, f.err
	}
	var out []platform.LiveRecord
	for _, l := range logins {
		if rec, ok := f.streams[l]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeTwitch) StreamsByGame(_ context.Context, _ string, _ int, after string) ([]platform.LiveRecord, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gameCalls++
	idx := 0
	if after != "" {
		idx = int(after[0] - '0')
	}
	if idx >= len(f.pages) {
		return nil, "", nil
	}
	next := ""
	if idx+1 < len(f.pages) {
		next = string(rune('0' + idx + 1))
	}
	return f.pages[idx], next, nil
}

type harness struct {
	clock    *clock
	store    *memStore
	kick     *fakeKick
	twitch   *fakeTwitch
	notifier *reconciletest.Notifier
	roles    *reconciletest.Roles
	poller   *poller.Poller
}

type harnessOpt func(*poller.Config, *harness)

func withoutTwitch() harnessOpt {
	return func(c *poller.Config, h *harness) { c.Twitch = nil; h.twitch = nil }
}

func withoutKick() harnessOpt {
	return func(c *poller.Config, h *harness) { c.Kick = nil; h.kick = nil }
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

// baseState tracks kick "foo" and twitch "bar" with a resolved category.
func baseState(now time.Time) *store.State {
	st := store.Defaults()
	st.Settings.NotifyChannelID = "chan-1"
	st.Settings.KickCategoryID = "15"
	st.Settings.KickCategoryResolvedAt = now.UnixMilli()
	st.Kick = []store.Streamer{{Handle: "foo", DiscordID: "42"}}
	st.Twitch = []store.Streamer{{Handle: "bar", DiscordID: "43"}}
	return st
}

func newHarness(st *store.State, opts ...harnessOpt) *harness {
	h := &harness{
		clock:    newClock(),
		store:    &memStore{},
		kick:     newFakeKick(),
		twitch:   newFakeTwitch(),
		notifier: reconciletest.NewNotifier(),
		roles:    reconciletest.NewRoles(),
	}
	if st == nil {
		st = baseState(h.clock.Now())
	}
	rec := reconcile.New(h.notifier, h.roles)
	rec.Now = h.clock.Now
	rec.Logger = quietLogger()
	cfg := poller.Config{
		Store:      h.store,
		Kick:       h.kick,
		Twitch:     h.twitch,
		Reconciler: rec,
		Health: health.NewTracker(
			health.WithClock(h.clock.Now),
			health.WithJitter(func() time.Duration { return 0 }),
			health.WithLogger(quietLogger()),
		),
		Logger: quietLogger(),
	}
	for _, o := range opts {
		o(&cfg, h)
	}
	h.poller = poller.New(st, cfg)
	return h
}

func (h *harness) state() *store.State {
	var out *store.State
	h.poller.View(func(st *store.State) { out = st.Clone() })
	return out
}

func kickLive(slug, start, title string) platform.LiveRecord {
	return platform.LiveRecord{Handle: slug, Live: true, StartedAt: start, Title: title, CategoryID: "15", CategoryName: "Grand Theft Auto V"}
}

func twitchLive(login, id, title string) platform.LiveRecord {
	return platform.LiveRecord{Handle: login, Live: true, StreamID: id, StartedAt: "2024-05-01T10:00:00Z", Title: title, CategoryID: "32982"}
}
