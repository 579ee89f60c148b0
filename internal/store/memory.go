package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
)

// MemoryStore keeps records in process memory. Records are copied on the way
// in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	teams  map[string]engine.TeamRecord
	global *engine.GlobalState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{teams: make(map[string]engine.TeamRecord)}
}

func (m *MemoryStore) GetTeam(_ context.Context, teamID string) (engine.TeamRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.teams[teamID]
	if !ok {
		return engine.TeamRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) ListTeams(_ context.Context) ([]engine.TeamRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.TeamRecord, 0, len(m.teams))
	for _, rec := range m.teams {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b engine.TeamRecord) int { return strings.Compare(a.TeamID, b.TeamID) })
	return out, nil
}

func (m *MemoryStore) SaveTeams(_ context.Context, recs ...engine.TeamRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		m.teams[rec.TeamID] = rec.Clone()
	}
	return nil
}

func (m *MemoryStore) GetGlobal(_ context.Context) (engine.GlobalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.global == nil {
		return engine.GlobalState{}, ErrNotFound
	}
	return cloneGlobal(*m.global), nil
}

func (m *MemoryStore) SaveGlobal(_ context.Context, g engine.GlobalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g = cloneGlobal(g)
	m.global = &g
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }

func cloneGlobal(g engine.GlobalState) engine.GlobalState {
	if g.StartTime != nil {
		t := *g.StartTime
		g.StartTime = &t
	}
	return g
}
