package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) NotifyGlobal(context.Context) bool {
	c.n.Add(1)
	return true
}

// liveNotifier counts only notifications whose context is still usable.
type liveNotifier struct{ live, dead atomic.Int32 }

func (l *liveNotifier) NotifyGlobal(ctx context.Context) bool {
	if ctx.Err() != nil {
		l.dead.Add(1)
		return false
	}
	l.live.Add(1)
	return true
}

type failingSaves struct {
	store.Store
}

func (failingSaves) SaveGlobal(context.Context, engine.GlobalState) error {
	return store.ErrUnavailable
}

func newController(t *testing.T, d time.Duration) (*Controller, *store.MemoryStore, *clockwork.FakeClock, *countingNotifier) {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveGlobal(context.Background(), engine.NewGlobalState(d)))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	n := &countingNotifier{}
	return New(st, n, clock, time.Second, zap.NewNop()), st, clock, n
}

func TestController_ExpiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	c, st, clock, n := newController(t, 75*time.Second)

	g, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseRunning, g.Phase())
	assert.Equal(t, int32(1), n.n.Load())

	clock.Advance(80 * time.Second)
	expired, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, int32(2), n.n.Load())

	clock.Advance(80 * time.Second)
	expired, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, int32(2), n.n.Load(), "no second broadcast")

	got, err := st.GetGlobal(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsEnded)
	assert.True(t, got.StartTime.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestController_PollBeforeDeadline(t *testing.T) {
	ctx := context.Background()
	c, _, clock, n := newController(t, 75*time.Second)

	expired, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, expired, "not started")

	_, err = c.Start(ctx)
	require.NoError(t, err)
	clock.Advance(74 * time.Second)
	expired, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, expired)

	clock.Advance(time.Second)
	expired, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, expired, "elapsed == duration ends the game")
	assert.Equal(t, int32(2), n.n.Load())
}

func TestController_ForceEndIdempotent(t *testing.T) {
	ctx := context.Background()
	c, st, _, n := newController(t, time.Hour)

	_, err := c.Start(ctx)
	require.NoError(t, err)

	first, err := c.ForceEnd(ctx)
	require.NoError(t, err)
	second, err := c.ForceEnd(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), n.n.Load(), "start + one end")

	got, err := st.GetGlobal(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsEnded)
	assert.NotNil(t, got.StartTime, "force end keeps StartTime")
}

func TestController_OnlyStartClearsEnded(t *testing.T) {
	ctx := context.Background()
	c, _, clock, _ := newController(t, 10*time.Second)

	_, err := c.ForceEnd(ctx)
	require.NoError(t, err)
	for range 3 {
		clock.Advance(time.Minute)
		_, err := c.Poll(ctx)
		require.NoError(t, err)
	}

	g, err := c.Start(ctx)
	require.NoError(t, err)
	assert.False(t, g.IsEnded)
	assert.True(t, g.StartTime.Equal(clock.Now()))
}

func TestController_SaveFailureDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveGlobal(ctx, engine.NewGlobalState(time.Minute)))
	n := &countingNotifier{}
	c := New(failingSaves{st}, n, clockwork.NewFakeClock(), time.Second, zap.NewNop())

	_, err := c.Start(ctx)
	require.ErrorIs(t, err, store.ErrUnavailable)
	_, err = c.ForceEnd(ctx)
	require.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, int32(0), n.n.Load())

	g, err := st.GetGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseNotStarted, g.Phase())
}

func TestController_NotifiesAfterCallerCancels(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveGlobal(context.Background(), engine.NewGlobalState(time.Minute)))
	clock := clockwork.NewFakeClock()
	n := &liveNotifier{}
	c := New(st, n, clock, time.Second, zap.NewNop())

	gone, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Start(gone)
	require.NoError(t, err)
	_, err = c.ForceEnd(gone)
	require.NoError(t, err)
	_, err = c.Start(gone)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	expired, err := c.Poll(gone)
	require.NoError(t, err)
	require.True(t, expired)

	assert.Equal(t, int32(4), n.live.Load())
	assert.Zero(t, n.dead.Load())
}

func TestController_RunPollsOnTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, st, clock, n := newController(t, 3*time.Second)

	_, err := c.Start(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for range 3 {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
	}

	require.Eventually(t, func() bool {
		g, err := st.GetGlobal(ctx)
		return err == nil && g.IsEnded
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), n.n.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
