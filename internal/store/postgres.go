package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type teamRow struct {
	TeamID      string            `gorm:"primaryKey;column:team_id"`
	Password    string            `gorm:"not null"`
	Progress    []bool            `gorm:"serializer:json;type:jsonb;not null"`
	ScoreFields map[string]string `gorm:"serializer:json;type:jsonb;not null"`
	UpdatedAt   time.Time
}

func (teamRow) TableName() string { return "team_records" }

type globalRow struct {
	ID         string `gorm:"primaryKey"`
	StartTime  *time.Time
	DurationMs int64
	IsEnded    bool
	UpdatedAt  time.Time
}

func (globalRow) TableName() string { return "global_state" }

// GormStore persists records in Postgres through gorm.
type GormStore struct {
	db *gorm.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres store: dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, unavailable("open postgres", err)
	}
	return NewGormStore(ctx, db)
}

// NewGormStore migrates the schema on db and returns a store over it.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, unavailable("postgres handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, unavailable("ping postgres", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&teamRow{}, &globalRow{}); err != nil {
		return nil, unavailable("migrate", err)
	}
	return &GormStore{db: db}, nil
}

func rowToTeam(r teamRow) engine.TeamRecord {
	return engine.TeamRecord{
		TeamID:      r.TeamID,
		Password:    r.Password,
		Progress:    r.Progress,
		ScoreFields: r.ScoreFields,
	}.Clone()
}

func (s *GormStore) GetTeam(ctx context.Context, teamID string) (engine.TeamRecord, error) {
	var row teamRow
	err := s.db.WithContext(ctx).First(&row, "team_id = ?", teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.TeamRecord{}, ErrNotFound
	}
	if err != nil {
		return engine.TeamRecord{}, unavailable("get team "+teamID, err)
	}
	return rowToTeam(row), nil
}

func (s *GormStore) ListTeams(ctx context.Context) ([]engine.TeamRecord, error) {
	var rows []teamRow
	if err := s.db.WithContext(ctx).Order("team_id").Find(&rows).Error; err != nil {
		return nil, unavailable("list teams", err)
	}
	out := make([]engine.TeamRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToTeam(r))
	}
	return out, nil
}

func (s *GormStore) SaveTeams(ctx context.Context, recs ...engine.TeamRecord) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range recs {
			rec = rec.Clone()
			row := teamRow{
				TeamID:      rec.TeamID,
				Password:    rec.Password,
				Progress:    rec.Progress,
				ScoreFields: rec.ScoreFields,
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("save teams", err)
	}
	return nil
}

func (s *GormStore) GetGlobal(ctx context.Context) (engine.GlobalState, error) {
	var row globalRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", engine.GlobalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.GlobalState{}, ErrNotFound
	}
	if err != nil {
		return engine.GlobalState{}, unavailable("get global", err)
	}
	return engine.GlobalState{
		StartTime: row.StartTime,
		Duration:  time.Duration(row.DurationMs) * time.Millisecond,
		IsEnded:   row.IsEnded,
	}, nil
}

func (s *GormStore) SaveGlobal(ctx context.Context, g engine.GlobalState) error {
	row := globalRow{
		ID:         engine.GlobalID,
		StartTime:  g.StartTime,
		DurationMs: g.Duration.Milliseconds(),
		IsEnded:    g.IsEnded,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return unavailable("save global", err)
	}
	return nil
}

func (s *GormStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
