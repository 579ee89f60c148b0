package game

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"go.uber.org/zap"
)

var (
	ErrAuthFailed  = errors.New("invalid team id or password")
	ErrNotLoggedIn = errors.New("login required")
	ErrForbidden   = errors.New("not allowed for this session")

	ErrInvalidRequest = errors.New("invalid request")
)

// Identity is who a logged-in connection acts as.
type Identity struct {
	TeamID   string
	Observer bool
}

// Broadcaster is told after every committed team change.
type Broadcaster interface {
	NotifyState(ctx context.Context) bool
}

// Timer runs the shared countdown.
type Timer interface {
	Start(ctx context.Context) (engine.GlobalState, error)
	ForceEnd(ctx context.Context) (engine.GlobalState, error)
}

type Config struct {
	ObserverID     string
	ObserverSecret string
	// StrictTeamScope limits a team session to its own team's records.
	StrictTeamScope bool
	Claims          engine.ClaimTable
}

// Service applies client operations to the store. Every read-modify-write of
// a team record runs under that team's lock.
type Service struct {
	cfg   Config
	store store.Store
	bcast Broadcaster
	timer Timer
	locks keyedMutex
	log   *zap.Logger
}

func NewService(cfg Config, st store.Store, b Broadcaster, t Timer, log *zap.Logger) *Service {
	return &Service{cfg: cfg, store: st, bcast: b, timer: t, log: log}
}

func (s *Service) Login(ctx context.Context, teamID, password string) (Identity, error) {
	if teamID == s.cfg.ObserverID && s.cfg.ObserverID != "" {
		if !secretEqual(password, s.cfg.ObserverSecret) {
			return Identity{}, ErrAuthFailed
		}
		return Identity{TeamID: teamID, Observer: true}, nil
	}

	rec, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, ErrAuthFailed
	}
	if err != nil {
		return Identity{}, fmt.Errorf("login %s: %w", teamID, err)
	}
	if !secretEqual(password, rec.Password) {
		return Identity{}, ErrAuthFailed
	}
	return Identity{TeamID: rec.TeamID}, nil
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Service) authorize(who *Identity, teamID string) error {
	switch {
	case who == nil:
		return ErrNotLoggedIn
	case who.Observer:
		return nil
	case s.cfg.StrictTeamScope && who.TeamID != teamID:
		return fmt.Errorf("%w: team %s acting for %s", ErrForbidden, who.TeamID, teamID)
	}
	return nil
}

func (s *Service) authorizeObserver(who *Identity) error {
	switch {
	case who == nil:
		return ErrNotLoggedIn
	case !who.Observer:
		return fmt.Errorf("%w: observer only", ErrForbidden)
	}
	return nil
}

func (s *Service) SetProgress(ctx context.Context, who *Identity, teamID string, index int, checked bool) error {
	if err := s.authorize(who, teamID); err != nil {
		return err
	}
	err := s.update(ctx, teamID, func(rec engine.TeamRecord) (engine.TeamRecord, error) {
		return engine.SetProgress(rec, index, checked)
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// SetScoreField overwrites one field. Concurrent writers to the same field
// resolve as last write wins.
func (s *Service) SetScoreField(ctx context.Context, who *Identity, teamID, fieldID, value string) error {
	if err := s.authorize(who, teamID); err != nil {
		return err
	}
	if fieldID == "" {
		return fmt.Errorf("update score field: %w: field id is required", ErrInvalidRequest)
	}
	err := s.update(ctx, teamID, func(rec engine.TeamRecord) (engine.TeamRecord, error) {
		return engine.SetScoreField(rec, fieldID, value), nil
	})
	if err != nil {
		return fmt.Errorf("update score field: %w", err)
	}
	return nil
}

func (s *Service) update(ctx context.Context, teamID string, fn func(engine.TeamRecord) (engine.TeamRecord, error)) error {
	unlock := s.locks.lock(teamID)
	rec, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		unlock()
		return fmt.Errorf("team %s: %w", teamID, err)
	}
	rec, err = fn(rec)
	if err != nil {
		unlock()
		return err
	}
	err = s.store.SaveTeams(ctx, rec)
	unlock()
	if err != nil {
		return fmt.Errorf("team %s: %w", teamID, err)
	}
	s.notifyState(ctx)
	return nil
}

// notifyState follows a committed save and ignores cancellation of ctx.
func (s *Service) notifyState(ctx context.Context) {
	if !s.bcast.NotifyState(context.WithoutCancel(ctx)) {
		s.log.Warn("state broadcast not queued, hub stopped")
	}
}

// TryClaim arbitrates a paired-field claim. A lost claim writes nothing and
// is not an error.
func (s *Service) TryClaim(ctx context.Context, who *Identity, c engine.Claim) (engine.Outcome, error) {
	if err := s.authorize(who, c.TeamID); err != nil {
		return "", err
	}
	c, err := s.cfg.Claims.Resolve(c)
	if err != nil {
		return "", err
	}

	unlock := s.locks.lock(c.TeamID, c.OpponentTeamID)
	outcome, err := s.arbitrate(ctx, c)
	unlock()
	if err != nil {
		return "", fmt.Errorf("claim %s.%s: %w", c.TeamID, c.FieldID, err)
	}

	log := s.log.With(
		zap.String("team_id", c.TeamID),
		zap.String("field_id", c.FieldID),
		zap.String("opponent_team_id", c.OpponentTeamID),
		zap.String("outcome", string(outcome)))
	if outcome == engine.OutcomeLost {
		log.Debug("claim lost")
		return outcome, nil
	}
	log.Info("claim won")
	s.notifyState(ctx)
	return outcome, nil
}

func (s *Service) arbitrate(ctx context.Context, c engine.Claim) (engine.Outcome, error) {
	req, err := s.store.GetTeam(ctx, c.TeamID)
	if err != nil {
		return "", fmt.Errorf("team %s: %w", c.TeamID, err)
	}
	opp, err := s.store.GetTeam(ctx, c.OpponentTeamID)
	if err != nil {
		return "", fmt.Errorf("team %s: %w", c.OpponentTeamID, err)
	}

	outcome, req, opp := engine.Arbitrate(req, opp, c)
	if outcome == engine.OutcomeLost {
		return outcome, nil
	}
	// The opponent goes first so a failure between the two writes never
	// leaves both sides holding the win value.
	if err := s.store.SaveTeams(ctx, opp, req); err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) StartTimer(ctx context.Context, who *Identity) (engine.GlobalState, error) {
	if err := s.authorizeObserver(who); err != nil {
		return engine.GlobalState{}, err
	}
	return s.timer.Start(ctx)
}

func (s *Service) EndGame(ctx context.Context, who *Identity) (engine.GlobalState, error) {
	if err := s.authorizeObserver(who); err != nil {
		return engine.GlobalState{}, err
	}
	return s.timer.ForceEnd(ctx)
}
