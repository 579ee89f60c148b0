package engine

import (
	"maps"
	"slices"
)

func NewTeamRecord(teamID, password string, slots int) TeamRecord {
	return TeamRecord{
		TeamID:      teamID,
		Password:    password,
		Progress:    make([]bool, slots),
		ScoreFields: map[string]string{},
	}
}

// Clone returns a deep copy so callers can mutate without aliasing store data.
func (r TeamRecord) Clone() TeamRecord {
	out := r
	out.Progress = slices.Clone(r.Progress)
	if out.Progress == nil {
		out.Progress = []bool{}
	}
	out.ScoreFields = maps.Clone(r.ScoreFields)
	if out.ScoreFields == nil {
		out.ScoreFields = map[string]string{}
	}
	return out
}
