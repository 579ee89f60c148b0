package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Notifier is told when the global record changed.
type Notifier interface {
	NotifyGlobal(ctx context.Context) bool
}

// Controller owns every write to the global countdown record.
type Controller struct {
	mu       sync.Mutex
	store    store.Store
	notify   Notifier
	clock    clockwork.Clock
	interval time.Duration
	log      *zap.Logger
}

func New(st store.Store, n Notifier, clock clockwork.Clock, interval time.Duration, log *zap.Logger) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		store:    st,
		notify:   n,
		clock:    clock,
		interval: interval,
		log:      log.With(zap.String("component", "timer")),
	}
}

// Start sets StartTime to now and clears IsEnded. Calling it again restarts
// the countdown.
func (c *Controller) Start(ctx context.Context) (engine.GlobalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.store.GetGlobal(ctx)
	if err != nil {
		return engine.GlobalState{}, fmt.Errorf("start timer: %w", err)
	}
	g = engine.StartTimer(g, c.clock.Now())
	if err := c.store.SaveGlobal(ctx, g); err != nil {
		return engine.GlobalState{}, fmt.Errorf("start timer: %w", err)
	}
	c.log.Info("countdown started", zap.Time("start_time", *g.StartTime), zap.Duration("duration", g.Duration))
	c.notifyGlobal(ctx)
	return g, nil
}

// ForceEnd ends the game. It does nothing when the game already ended.
func (c *Controller) ForceEnd(ctx context.Context) (engine.GlobalState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.store.GetGlobal(ctx)
	if err != nil {
		return engine.GlobalState{}, fmt.Errorf("end game: %w", err)
	}
	g, changed := engine.EndGame(g)
	if !changed {
		return g, nil
	}
	if err := c.store.SaveGlobal(ctx, g); err != nil {
		return engine.GlobalState{}, fmt.Errorf("end game: %w", err)
	}
	c.log.Info("game ended by observer")
	c.notifyGlobal(ctx)
	return g, nil
}

// Poll ends a running countdown whose duration has elapsed. It reports
// whether it did.
func (c *Controller) Poll(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.store.GetGlobal(ctx)
	if err != nil {
		return false, fmt.Errorf("poll timer: %w", err)
	}
	g, expired := engine.Expire(g, c.clock.Now())
	if !expired {
		return false, nil
	}
	if err := c.store.SaveGlobal(ctx, g); err != nil {
		return false, fmt.Errorf("poll timer: %w", err)
	}
	c.log.Info("countdown expired")
	c.notifyGlobal(ctx)
	return true, nil
}

// notifyGlobal follows a committed save and ignores cancellation of ctx.
func (c *Controller) notifyGlobal(ctx context.Context) {
	if !c.notify.NotifyGlobal(context.WithoutCancel(ctx)) {
		c.log.Warn("global broadcast not queued, hub stopped")
	}
}

// Run polls every interval until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if _, err := c.Poll(ctx); err != nil {
				c.log.Warn("poll failed", zap.Error(err))
			}
		}
	}
}
