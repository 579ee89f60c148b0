package engine

import (
	"errors"
	"fmt"
)

var ErrProgressIndex = errors.New("progress index out of range")
var ErrInvalidClaim = errors.New("invalid claim")
var ErrClaimMismatch = errors.New("claim values do not match configured rule")
var ErrUnknownClaim = errors.New("no claim rule for field")

// TeamRecord is the persisted progress of one team.
type TeamRecord struct {
	TeamID      string            `json:"teamId" bson:"_id"`
	Password    string            `json:"password" bson:"password"`
	Progress    []bool            `json:"progress" bson:"progress"`
	ScoreFields map[string]string `json:"scoreFields" bson:"score_fields"`
}

// Outcome is the result of arbitrating a claim.
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
)

// Claim asks for FieldID on the requester to be set to WinValue, forcing the
// opponent's OpponentFieldID to LoseValue, unless the opponent already holds
// WinValue there.
type Claim struct {
	TeamID          string
	FieldID         string
	WinValue        string
	LoseValue       string
	OpponentTeamID  string
	OpponentFieldID string
}

func (c Claim) Validate() error {
	switch {
	case c.TeamID == "" || c.OpponentTeamID == "":
		return fmt.Errorf("%w: team ids are required", ErrInvalidClaim)
	case c.TeamID == c.OpponentTeamID:
		return fmt.Errorf("%w: team %q cannot claim against itself", ErrInvalidClaim, c.TeamID)
	case c.FieldID == "" || c.OpponentFieldID == "":
		return fmt.Errorf("%w: field ids are required", ErrInvalidClaim)
	case c.WinValue == "":
		return fmt.Errorf("%w: win value is required", ErrInvalidClaim)
	case c.WinValue == c.LoseValue:
		return fmt.Errorf("%w: win and lose values are both %q", ErrInvalidClaim, c.WinValue)
	}
	return nil
}

// Arbitrate resolves a claim between requester and opponent. On OutcomeLost
// both records are returned unchanged.
func Arbitrate(requester, opponent TeamRecord, c Claim) (Outcome, TeamRecord, TeamRecord) {
	if opponent.ScoreFields[c.OpponentFieldID] == c.WinValue {
		return OutcomeLost, requester, opponent
	}

	newReq := requester.Clone()
	newOpp := opponent.Clone()
	newReq.ScoreFields[c.FieldID] = c.WinValue
	newOpp.ScoreFields[c.OpponentFieldID] = c.LoseValue
	return OutcomeWon, newReq, newOpp
}

func SetProgress(rec TeamRecord, index int, checked bool) (TeamRecord, error) {
	if index < 0 || index >= len(rec.Progress) {
		return rec, fmt.Errorf("%w: %d not in [0,%d)", ErrProgressIndex, index, len(rec.Progress))
	}
	out := rec.Clone()
	out.Progress[index] = checked
	return out, nil
}

// SetScoreField overwrites one score field; last write wins.
func SetScoreField(rec TeamRecord, fieldID, value string) TeamRecord {
	out := rec.Clone()
	out.ScoreFields[fieldID] = value
	return out
}
