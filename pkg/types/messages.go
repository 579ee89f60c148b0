package types

import "encoding/json"

// Client -> Server
const (
	EvtLogin            = "login"
	EvtUpdateProgress   = "updateProgress"
	EvtUpdateScoreField = "updateScoreField"
	EvtTryLockFirst     = "tryLockFirst"
	EvtAdminStartTimer  = "adminStartTimer"
	EvtAdminEndGame     = "adminEndGame"
)

// Server -> Client
const (
	EvtLoginSuccess      = "loginSuccess"
	EvtLoginError        = "loginError"
	EvtStateUpdate       = "stateUpdate"
	EvtGlobalStateUpdate = "globalStateUpdate"
	EvtError             = "error"
)

type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type LoginRequest struct {
	TeamID   string `json:"teamId"`
	Password string `json:"password"`
}

type UpdateProgressRequest struct {
	TeamID  string `json:"teamId"`
	Index   int    `json:"index"`
	Checked bool   `json:"checked"`
}

type UpdateScoreFieldRequest struct {
	TeamID  string `json:"teamId"`
	FieldID string `json:"fieldId"`
	Value   string `json:"value"`
}

type TryLockFirstRequest struct {
	TeamID          string `json:"teamId"`
	FieldID         string `json:"fieldId"`
	WinValue        string `json:"winValue"`
	LoseValue       string `json:"loseValue"`
	OpponentTeamID  string `json:"opponentTeamId"`
	OpponentFieldID string `json:"opponentFieldId"`
}

// ServerMessage is every frame the server sends. Data holds a LoginSuccess,
// []TeamView or GlobalView depending on Type.
type ServerMessage struct {
	Type    string `json:"type"`
	Version int64  `json:"version,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type LoginSuccess struct {
	TeamID    string `json:"teamId"`
	IsReferee bool   `json:"isReferee,omitempty"`
}
