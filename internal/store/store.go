package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("record not found")
var ErrUnavailable = errors.New("store unavailable")

// Store persists team records and the global countdown record.
type Store interface {
	GetTeam(ctx context.Context, teamID string) (engine.TeamRecord, error)
	// ListTeams returns every team ordered by TeamID.
	ListTeams(ctx context.Context) ([]engine.TeamRecord, error)
	// SaveTeams upserts records in argument order. Each record is written
	// all-or-nothing.
	SaveTeams(ctx context.Context, recs ...engine.TeamRecord) error
	GetGlobal(ctx context.Context) (engine.GlobalState, error)
	SaveGlobal(ctx context.Context, g engine.GlobalState) error
	Close(ctx context.Context) error
}

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverFile     Driver = "file"
	DriverPostgres Driver = "postgres"
	DriverMongo    Driver = "mongo"
	DriverRedis    Driver = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Driver        Driver
	DataDir       string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
	RedisAddrs    []string
	RedisPassword string
}

func Open(ctx context.Context, opts Options, log *zap.Logger) (Store, error) {
	log = log.With(zap.String("driver", string(opts.Driver)))

	var (
		s   Store
		err error
	)
	switch opts.Driver {
	case DriverMemory:
		s = NewMemoryStore()
	case DriverFile:
		s, err = NewFileStore(opts.DataDir)
	case DriverPostgres:
		s, err = OpenPostgres(ctx, opts.PostgresDSN)
	case DriverMongo:
		s, err = OpenMongo(ctx, opts.MongoURI, opts.MongoDatabase)
	case DriverRedis:
		s, err = OpenRedis(ctx, opts.RedisAddrs, opts.RedisPassword)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.Info("store opened")
	return s, nil
}

type TeamSeed struct {
	ID       string
	Password string
}

// Seed describes the records created at first start.
type Seed struct {
	Teams         []TeamSeed
	ProgressSlots int
	Duration      time.Duration
}

// Bootstrap creates missing team records and the global record. Existing
// records are left untouched.
func Bootstrap(ctx context.Context, s Store, seed Seed, log *zap.Logger) error {
	for _, t := range seed.Teams {
		_, err := s.GetTeam(ctx, t.ID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("bootstrap team %s: %w", t.ID, err)
		}
		if err := s.SaveTeams(ctx, engine.NewTeamRecord(t.ID, t.Password, seed.ProgressSlots)); err != nil {
			return fmt.Errorf("bootstrap team %s: %w", t.ID, err)
		}
		log.Info("initialized team", zap.String("team_id", t.ID))
	}

	_, err := s.GetGlobal(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("bootstrap global: %w", err)
	}
	if err := s.SaveGlobal(ctx, engine.NewGlobalState(seed.Duration)); err != nil {
		return fmt.Errorf("bootstrap global: %w", err)
	}
	log.Info("initialized global state", zap.Duration("duration", seed.Duration))
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
