package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"github.com/redis/go-redis/v9"
)

// All keys share the {scoreboard} hash tag so a multi-team MULTI/EXEC stays
// inside one cluster slot.
const (
	redisTeamKeyPrefix = "ark:{scoreboard}:team:"
	redisTeamSetKey    = "ark:{scoreboard}:teams"
	redisGlobalKey     = "ark:{scoreboard}:global"
)

// RedisStore keeps JSON-encoded records in Redis.
type RedisStore struct {
	rdb redis.UniversalClient
}

func OpenRedis(ctx context.Context, addrs []string, password string) (*RedisStore, error) {
	if len(addrs) == 0 {
		return nil, errors.New("redis store: no addresses provided")
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  6 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, unavailable(fmt.Sprintf("ping redis %v", addrs), err)
	}
	return NewRedisStore(rdb), nil
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisTeamKey(teamID string) string { return redisTeamKeyPrefix + teamID }

func (s *RedisStore) GetTeam(ctx context.Context, teamID string) (engine.TeamRecord, error) {
	data, err := s.rdb.Get(ctx, redisTeamKey(teamID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.TeamRecord{}, ErrNotFound
	}
	if err != nil {
		return engine.TeamRecord{}, unavailable("get team "+teamID, err)
	}
	var rec engine.TeamRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return engine.TeamRecord{}, fmt.Errorf("decode team %s: %w", teamID, err)
	}
	return rec.Clone(), nil
}

func (s *RedisStore) ListTeams(ctx context.Context) ([]engine.TeamRecord, error) {
	ids, err := s.rdb.SMembers(ctx, redisTeamSetKey).Result()
	if err != nil {
		return nil, unavailable("list team ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisTeamKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("get teams", err)
	}

	out := make([]engine.TeamRecord, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // id in set but value gone
		}
		var rec engine.TeamRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("decode team %s: %w", ids[i], err)
		}
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b engine.TeamRecord) int { return strings.Compare(a.TeamID, b.TeamID) })
	return out, nil
}

func (s *RedisStore) SaveTeams(ctx context.Context, recs ...engine.TeamRecord) error {
	payloads := make([][]byte, len(recs))
	for i, rec := range recs {
		data, err := json.Marshal(rec.Clone())
		if err != nil {
			return fmt.Errorf("encode team %s: %w", rec.TeamID, err)
		}
		payloads[i] = data
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, rec := range recs {
			pipe.Set(ctx, redisTeamKey(rec.TeamID), payloads[i], 0)
			pipe.SAdd(ctx, redisTeamSetKey, rec.TeamID)
		}
		return nil
	})
	if err != nil {
		return unavailable("save teams", err)
	}
	return nil
}

func (s *RedisStore) GetGlobal(ctx context.Context) (engine.GlobalState, error) {
	data, err := s.rdb.Get(ctx, redisGlobalKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.GlobalState{}, ErrNotFound
	}
	if err != nil {
		return engine.GlobalState{}, unavailable("get global", err)
	}
	var g engine.GlobalState
	if err := json.Unmarshal(data, &g); err != nil {
		return engine.GlobalState{}, fmt.Errorf("decode global: %w", err)
	}
	return g, nil
}

func (s *RedisStore) SaveGlobal(ctx context.Context, g engine.GlobalState) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode global: %w", err)
	}
	if err := s.rdb.Set(ctx, redisGlobalKey, data, 0).Err(); err != nil {
		return unavailable("save global", err)
	}
	return nil
}

func (s *RedisStore) Close(context.Context) error {
	return s.rdb.Close()
}
