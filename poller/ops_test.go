package poller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/store"
)

func TestUpdate_PersistsAndReschedules(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	err := h.poller.Update(ctx, func(st *store.State) error {
		st.Settings.CheckIntervalSeconds = 120
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, h.poller.Interval())
	assert.Equal(t, 1, h.store.Saves())
	assert.Equal(t, 120, h.poller.Snapshot().IntervalSeconds)
}

func TestUpdate_SaveFailureKeepsTimerInSync(t *testing.T) {
	h := newHarness(nil, withoutKick(), withoutTwitch())
	ctx := context.Background()
	h.store.err = errors.New("disk full")

	err := h.poller.Update(ctx, func(st *store.State) error {
		st.Settings.CheckIntervalSeconds = 300
		return nil
	})
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 5*time.Minute, h.poller.Interval())
	assert.Equal(t, 300, h.poller.Snapshot().IntervalSeconds)
	assert.Equal(t, 300, h.state().Settings.CheckIntervalSeconds)

	// the change is still pending and goes out with the next tick
	h.store.err = nil
	res, err := h.poller.RunTick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, 1, h.store.Saves())
}

func TestUpdate_ErrorRestoresState(t *testing.T) {
	h := newHarness(nil)
	err := h.poller.Update(context.Background(), func(st *store.State) error {
		st.AddStreamer(platform.Kick, "new", "")
		return errors.New("nope")
	})
	require.Error(t, err)
	_, found := h.state().FindStreamer(platform.Kick, "new")
	assert.False(t, found)
	assert.Zero(t, h.store.Saves())
}

func TestRemoveStreamer_TakesDownNotification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, withoutTwitch())
	h.kick.set(kickLive("foo", "s1", "NoxRP"))
	_, err := h.poller.RunTick(ctx)
	require.NoError(t, err)
	msg := h.state().Runtime.KickActive["foo"].MessageID

	removed, ok, err := h.poller.RemoveStreamer(ctx, platform.Kick, " FOO ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", removed.DiscordID)
	assert.Equal(t, []string{msg}, h.notifier.Deletes)
	assert.False(t, h.roles.Holds("42"))
	assert.Empty(t, h.state().Kick)

	_, ok, err = h.poller.RemoveStreamer(ctx, platform.Kick, "foo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearStreamers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil, withoutKick())
	h.twitch.set(twitchLive("bar", "1", "NoxRP"))
	_, err := h.poller.RunTick(ctx)
	require.NoError(t, err)

	n, err := h.poller.ClearStreamers(ctx, platform.Twitch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got := h.state()
	assert.Empty(t, got.Twitch)
	assert.Empty(t, got.Runtime.TwitchActive)
	assert.Len(t, got.Kick, 1, "other platform untouched")
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.kick.set(kickLive("foo", "s1", "NoxRP day"))
	off := twitchLive("bar", "7", "chatting")
	off.CategoryID = "509658"
	h.twitch.set(off)

	rep, err := h.poller.Status(ctx, platform.Kick, "foo")
	require.NoError(t, err)
	assert.True(t, rep.Tracked)
	assert.True(t, rep.Live)
	assert.True(t, rep.CategoryMatch)
	assert.True(t, rep.KeywordMatch)
	assert.Equal(t, "https://kick.com/foo", rep.URL)

	rep, err = h.poller.Status(ctx, platform.Twitch, "bar")
	require.NoError(t, err)
	assert.True(t, rep.Live)
	assert.False(t, rep.CategoryMatch)
	assert.False(t, rep.KeywordMatch)
	assert.Equal(t, "", h.twitch.gameIDs[0], "status asks without the game filter")

	rep, err = h.poller.Status(ctx, platform.Kick, "nobody")
	require.NoError(t, err)
	assert.False(t, rep.Tracked)
	assert.False(t, rep.Live)
}

func TestStatus_ErrorsDoNotTouchHealth(t *testing.T) {
	h := newHarness(nil)
	h.kick.setErr(&platform.APIError{Service: "kick", StatusCode: 503})

	_, err := h.poller.Status(context.Background(), platform.Kick, "foo")
	require.Error(t, err)
	assert.Zero(t, h.state().Runtime.KickHealth.ConsecutiveFailures)
}

func TestRefreshKickCategory(t *testing.T) {
	h := newHarness(nil, withoutTwitch())
	h.kick.categoryID = "77"

	id, err := h.poller.RefreshKickCategory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "77", id)
	assert.Equal(t, platform.ID("77"), h.state().Settings.KickCategoryID)
	assert.Equal(t, 1, h.store.Saves())
}

func TestSnapshot(t *testing.T) {
	h := newHarness(nil, withoutTwitch())
	h.kick.set(kickLive("foo", "s1", "NoxRP"))
	_, err := h.poller.RunTick(context.Background())
	require.NoError(t, err)

	s := h.poller.Snapshot()
	assert.True(t, s.Kick.Enabled)
	assert.False(t, s.Twitch.Enabled)
	assert.Equal(t, 1, s.Kick.Tracked)
	assert.Equal(t, 1, s.Kick.Active)
	assert.Equal(t, h.clock.Now().UnixMilli(), s.LastTickAt.UnixMilli())
	assert.False(t, s.Kick.InBackoff(h.clock.Now()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(nil, withoutTwitch())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.poller.Run(ctx) }()

	require.Eventually(t, func() bool { return h.kick.calls() >= 1 }, time.Second, 5*time.Millisecond, "first tick runs immediately")
	h.poller.Reschedule()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
