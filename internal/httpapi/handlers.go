package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"github.com/DoyleJ11/ark-scoreboard/pkg/types"
	"go.uber.org/zap"
)

// VersionSource reports the version of the latest state broadcast.
type VersionSource interface {
	Version(ctx context.Context) (int64, bool)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Healthz answers 200 while the store can read the global record.
func Healthz(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := st.GetGlobal(ctx); err != nil {
			log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// State returns the same snapshot a client receives on login.
func State(st store.Store, vs VersionSource, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		teams, err := st.ListTeams(ctx)
		if err != nil {
			log.Error("list teams", zap.Error(err))
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		g, err := st.GetGlobal(ctx)
		if err != nil {
			log.Error("get global", zap.Error(err))
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}

		snap := types.Snapshot{Teams: types.NewTeamViews(teams), Global: types.NewGlobalView(g, time.Now())}
		if v, ok := vs.Version(ctx); ok {
			snap.Version = v
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
