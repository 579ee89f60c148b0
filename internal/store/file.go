package store

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"github.com/c2FmZQ/storage"
)

const (
	teamsDir   = "teams"
	globalFile = "global.json"
)

// FileStore keeps one JSON document per record under a data directory.
// Multi-record saves are committed together.
type FileStore struct {
	dir     string
	storage *storage.Storage
	mu      sync.Mutex // serializes writers; storage also locks per file
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: data dir is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, teamsDir), 0o700); err != nil {
		return nil, unavailable("mkdir", err)
	}
	return &FileStore{
		dir:     dir,
		storage: storage.New(dir, nil),
	}, nil
}

func teamFile(teamID string) string {
	return filepath.Join(teamsDir, url.PathEscape(teamID)+".json")
}

func notExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || os.IsNotExist(err)
}

func (fs *FileStore) GetTeam(_ context.Context, teamID string) (engine.TeamRecord, error) {
	var rec engine.TeamRecord
	if err := fs.storage.ReadDataFile(teamFile(teamID), &rec); err != nil {
		if notExist(err) {
			return engine.TeamRecord{}, ErrNotFound
		}
		return engine.TeamRecord{}, unavailable("read team "+teamID, err)
	}
	return rec.Clone(), nil
}

func (fs *FileStore) ListTeams(ctx context.Context) ([]engine.TeamRecord, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dir, teamsDir))
	if err != nil {
		return nil, unavailable("list teams", err)
	}

	var out []engine.TeamRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		teamID, err := url.PathUnescape(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		rec, err := fs.GetTeam(ctx, teamID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b engine.TeamRecord) int { return strings.Compare(a.TeamID, b.TeamID) })
	return out, nil
}

func (fs *FileStore) SaveTeams(_ context.Context, recs ...engine.TeamRecord) (retErr error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	recs = dedupeTeams(recs)

	// New records are written directly; existing ones are rewritten in one
	// commit so a pair update never lands half way.
	var (
		files   []string
		objs    []any
		updates []engine.TeamRecord
	)
	for _, rec := range recs {
		name := teamFile(rec.TeamID)
		if _, err := os.Stat(filepath.Join(fs.dir, name)); notExist(err) {
			if err := fs.storage.SaveDataFile(name, rec); err != nil {
				return unavailable("create team "+rec.TeamID, err)
			}
			continue
		}
		files = append(files, name)
		objs = append(objs, &engine.TeamRecord{})
		updates = append(updates, rec)
	}
	if len(files) == 0 {
		return nil
	}

	commit, err := fs.storage.OpenManyForUpdate(files, objs)
	if err != nil {
		return unavailable("open teams for update", err)
	}
	defer commit(false, &retErr)

	for i, rec := range updates {
		*objs[i].(*engine.TeamRecord) = rec
	}
	if err := commit(true, nil); err != nil {
		return unavailable("commit teams", err)
	}
	return nil
}

func (fs *FileStore) GetGlobal(_ context.Context) (engine.GlobalState, error) {
	var g engine.GlobalState
	if err := fs.storage.ReadDataFile(globalFile, &g); err != nil {
		if notExist(err) {
			return engine.GlobalState{}, ErrNotFound
		}
		return engine.GlobalState{}, unavailable("read global", err)
	}
	return g, nil
}

func (fs *FileStore) SaveGlobal(_ context.Context, g engine.GlobalState) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.storage.SaveDataFile(globalFile, g); err != nil {
		return unavailable("save global", err)
	}
	return nil
}

func (fs *FileStore) Close(context.Context) error { return nil }

// dedupeTeams keeps the last write for each team, in first-seen order.
func dedupeTeams(recs []engine.TeamRecord) []engine.TeamRecord {
	idx := make(map[string]int, len(recs))
	out := make([]engine.TeamRecord, 0, len(recs))
	for _, rec := range recs {
		if i, ok := idx[rec.TeamID]; ok {
			out[i] = rec
			continue
		}
		idx[rec.TeamID] = len(out)
		out = append(out, rec)
	}
	return out
}
