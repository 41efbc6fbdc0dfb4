package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"keygate.io/internal/auth"
	"keygate.io/internal/config"
	"keygate.io/internal/httpapi"
	"keygate.io/internal/obs"
	"keygate.io/internal/orgs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	logger := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Persistent store when a DSN is configured, in-memory otherwise. The
	// in-memory store is for local development only: it loses everything on
	// restart.
	var (
		store auth.Store
		db    *sql.DB
	)
	if cfg.PostgresDSN != "" {
		pg, err := auth.OpenPG(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("open postgres")
		}
		store = pg
		db = pg.DB()
	} else {
		logger.Warn().Msg("KEYGATE_PG_DSN not set, using in-memory store")
		store = auth.NewMemStore()
	}

	tokens, err := auth.NewTokenService(cfg.AuthSecret,
		auth.WithAccessTTL(cfg.AccessTTL()),
		auth.WithRefreshTTL(cfg.RefreshTTL()),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("token service")
	}

	authSvc := auth.NewService(store, tokens)

	api := httpapi.New(
		authSvc,
		auth.NewResolver(store),
		orgs.NewService(store),
		httpapi.ReadyProbe{DB: db},
		version,
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PurgeInterval > 0 {
		go purgeLoop(rootCtx, authSvc, cfg.PurgeInterval)
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("version", version).Msg("starting keygate-api")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	logger.Info().Msg("stopped")
}

// purgeLoop deletes expired refresh-token rows on a fixed interval.
func purgeLoop(ctx context.Context, svc *auth.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpiredTokens(ctx)
			if err != nil {
				obs.Logger().Error().Err(err).Msg("purge expired refresh tokens")
				continue
			}
			obs.ObservePurged(n)
			if n > 0 {
				obs.Logger().Info().Int64("purged", n).Msg("expired refresh tokens removed")
			}
		}
	}
}
