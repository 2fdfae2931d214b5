package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/docstore/memory"
	"github.com/collabhq/portal/internal/docstore/postgres"
	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/logger"
	"github.com/collabhq/portal/internal/session"
)

type ServeCmd struct {
	Listen string `help:"health endpoint listen address" default:"localhost:8080" env:"PORTAL_LISTEN"`

	// Store configuration
	StoreType string        `help:"document store backend (memory or postgres)" default:"memory" env:"PORTAL_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`

	// Profile cache configuration
	RedisURL string `help:"redis URL for the profile cache; empty uses the in-process cache" default:"" env:"PORTAL_REDIS_URL"`
}

type PostgresFlags struct {
	ConnString  string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`
	MaxConns    int32  `help:"maximum pool connections" default:"10"`
	AutoMigrate bool   `help:"run schema migrations at startup" default:"true" env:"PORTAL_POSTGRES_AUTO_MIGRATE"`
}

// Run boots the document store backend (migrations and change feed
// included), verifies the profile cache connection, and serves the
// health endpoint until interrupted.
func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Dev)
	log.Info().Str("version", globals.Version).Str("store", s.StoreType).Msg("starting portald")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, cleanup, err := s.buildStore(ctx, log)
	if err != nil {
		return err
	}
	defer cleanup()

	cache, err := s.buildCache(log)
	if err != nil {
		return err
	}
	if closer, ok := cache.(interface{ Close() error }); ok {
		defer closer.Close() //nolint:errcheck
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// A not-found probe read still proves the store answers.
		if _, err := docs.GetDocument(r.Context(), "health/probe"); err != nil && !fault.IsNotFound(err) {
			log.Warn().Err(err).Msg("health probe failed")
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := configureHTTPServer(s.Listen, mux)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", s.Listen).Msg("serving health endpoint")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("http shutdown failed")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *ServeCmd) buildStore(ctx context.Context, log zerolog.Logger) (docstore.Store, func(), error) {
	switch s.StoreType {
	case "postgres":
		cfg := &postgres.Config{
			ConnString:  s.Postgres.ConnString,
			MaxConns:    s.Postgres.MaxConns,
			AutoMigrate: s.Postgres.AutoMigrate,
		}
		store, err := postgres.NewStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Start(); err != nil {
			return nil, nil, err
		}
		log.Info().Msg("postgres document store ready")
		return store, store.Stop, nil
	default:
		log.Warn().Msg("using in-memory document store, data will not survive restarts")
		return memory.NewStore(), func() {}, nil
	}
}

func (s *ServeCmd) buildCache(log zerolog.Logger) (session.ProfileCache, error) {
	if s.RedisURL == "" {
		return session.NewMemoryCache(), nil
	}
	cache, err := session.NewRedisCache(s.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("redis profile cache connected")
	return cache, nil
}
