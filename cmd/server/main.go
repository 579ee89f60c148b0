package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/config"
	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"github.com/DoyleJ11/ark-scoreboard/internal/game"
	"github.com/DoyleJ11/ark-scoreboard/internal/httpapi"
	"github.com/DoyleJ11/ark-scoreboard/internal/hub"
	"github.com/DoyleJ11/ark-scoreboard/internal/lobby"
	"github.com/DoyleJ11/ark-scoreboard/internal/logging"
	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"github.com/DoyleJ11/ark-scoreboard/internal/timer"
	"github.com/DoyleJ11/ark-scoreboard/internal/ws"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	claims, err := engine.NewClaimTable(cfg.ClaimRules)
	if err != nil {
		return fmt.Errorf("claim rules: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	if err := store.Bootstrap(ctx, st, cfg.Seed, log); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	lb := lobby.NewLobby(gctx, log.Named("lobby"))
	h := hub.NewHub(gctx, st, lb, log.Named("hub"))
	tc := timer.New(st, h, clockwork.NewRealClock(), cfg.PollInterval, log)
	svc := game.NewService(game.Config{
		ObserverID:      cfg.ObserverID,
		ObserverSecret:  cfg.ObserverSecret,
		StrictTeamScope: cfg.StrictTeamScope,
		Claims:          claims,
	}, st, h, tc, log.Named("game"))

	wsHandler := ws.Handler(svc, lb, h, ws.Options{
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
		OriginPatterns: cfg.CORSOrigins,
	}, log.Named("ws"))

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Store:       st,
			Versions:    h,
			WS:          wsHandler,
			StaticDir:   cfg.StaticDir,
			CORSOrigins: cfg.CORSOrigins,
			Log:         log.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("store", string(cfg.Store.Driver)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return tc.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// Both actors stop with gctx; the lobby closes every outbox on its
		// way out, which ends the remaining websocket writers.
		<-lb.Done()
		<-h.Done()
		return err
	})

	return g.Wait()
}
