package engine

import "time"

const GlobalID = "global"

type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseRunning    Phase = "running"
	PhaseEnded      Phase = "ended"
)

// GlobalState is the singleton countdown record.
type GlobalState struct {
	StartTime *time.Time    `json:"startTime" bson:"start_time"`
	Duration  time.Duration `json:"duration" bson:"duration"`
	IsEnded   bool          `json:"isEnded" bson:"is_ended"`
}

func NewGlobalState(d time.Duration) GlobalState {
	return GlobalState{Duration: d}
}

func (g GlobalState) Phase() Phase {
	switch {
	case g.IsEnded:
		return PhaseEnded
	case g.StartTime == nil:
		return PhaseNotStarted
	default:
		return PhaseRunning
	}
}

// StartTimer (re)starts the countdown at now. Restarting an ended game
// clears IsEnded.
func StartTimer(g GlobalState, now time.Time) GlobalState {
	t := now
	g.StartTime = &t
	g.IsEnded = false
	return g
}

// EndGame forces the ended state. changed is false when it was already ended.
func EndGame(g GlobalState) (out GlobalState, changed bool) {
	if g.IsEnded {
		return g, false
	}
	g.IsEnded = true
	return g, true
}

// Expire ends a running countdown whose duration has elapsed at now.
func Expire(g GlobalState, now time.Time) (out GlobalState, changed bool) {
	if g.Phase() != PhaseRunning {
		return g, false
	}
	if now.Sub(*g.StartTime) < g.Duration {
		return g, false
	}
	g.IsEnded = true
	return g, true
}

// Remaining is the countdown left at now, clamped at zero.
func (g GlobalState) Remaining(now time.Time) time.Duration {
	switch g.Phase() {
	case PhaseNotStarted:
		return g.Duration
	case PhaseEnded:
		return 0
	}
	left := g.Duration - now.Sub(*g.StartTime)
	if left < 0 {
		return 0
	}
	return left
}
