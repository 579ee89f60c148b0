package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Deps struct {
	Store       store.Store
	Versions    VersionSource
	WS          http.Handler
	StaticDir   string
	CORSOrigins []string
	Log         *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: d.CORSOrigins,
		AllowedHeaders: []string{"*"},
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(d.Log))
	r.Use(c.Handler)

	r.Get("/healthz", Healthz(d.Store, d.Log))
	r.Get("/api/state", State(d.Store, d.Versions, d.Log))
	r.Get("/ws", d.WS.ServeHTTP)

	if d.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(d.StaticDir)))
	}
	return r
}
