package types

import (
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
)

// TeamView is a team record as clients see it. The password never leaves
// the server.
type TeamView struct {
	TeamID      string            `json:"teamId"`
	Progress    []bool            `json:"progress"`
	ScoreFields map[string]string `json:"scoreFields"`
}

// GlobalView carries times as unix milliseconds. Remaining is computed when
// the view is built.
type GlobalView struct {
	StartTime *int64 `json:"startTime"`
	Duration  int64  `json:"duration"`
	IsEnded   bool   `json:"isEnded"`
	Phase     string `json:"phase"`
	Remaining int64  `json:"remaining"`
}

type Snapshot struct {
	Version int64      `json:"version"`
	Teams   []TeamView `json:"teams"`
	Global  GlobalView `json:"global"`
}

func NewTeamView(r engine.TeamRecord) TeamView {
	r = r.Clone()
	return TeamView{TeamID: r.TeamID, Progress: r.Progress, ScoreFields: r.ScoreFields}
}

func NewTeamViews(recs []engine.TeamRecord) []TeamView {
	out := make([]TeamView, 0, len(recs))
	for _, r := range recs {
		out = append(out, NewTeamView(r))
	}
	return out
}

func NewGlobalView(g engine.GlobalState, now time.Time) GlobalView {
	v := GlobalView{
		Duration:  g.Duration.Milliseconds(),
		IsEnded:   g.IsEnded,
		Phase:     string(g.Phase()),
		Remaining: g.Remaining(now).Milliseconds(),
	}
	if g.StartTime != nil {
		ms := g.StartTime.UnixMilli()
		v.StartTime = &ms
	}
	return v
}
