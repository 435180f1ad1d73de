package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/plated-app/ratings-api/db"
	"github.com/plated-app/ratings-api/internal/config"
	httpserver "github.com/plated-app/ratings-api/internal/http"
	"github.com/plated-app/ratings-api/internal/middleware"
	"github.com/plated-app/ratings-api/internal/profile"
	"github.com/plated-app/ratings-api/internal/ratings"
	"github.com/plated-app/ratings-api/internal/repository"
	"github.com/plated-app/ratings-api/internal/store"
	"github.com/plated-app/ratings-api/internal/tablestore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.New(os.Stdout, "[plated-ratings] ", log.LstdFlags|log.Lshortfile)

	svc, closeStorage, err := buildRatingService(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	defer closeStorage()

	var profiles profile.Client
	if cfg.ProfileURL != "" {
		client, err := profile.NewHTTPClient(cfg.ProfileURL, cfg.ProfileAPIKey, time.Duration(cfg.ProfileTimeoutSecs)*time.Second, logger)
		if err != nil {
			log.Fatalf("init profile client: %v", err)
		}
		profiles = client
	}

	var limit func(http.Handler) http.Handler
	if cfg.RedisURL != "" {
		limiter, err := middleware.NewSubmissionLimiter(cfg.RedisURL, cfg.RateLimitMax, time.Duration(cfg.RateLimitWindowSecs)*time.Second, logger)
		if err != nil {
			log.Fatalf("init rate limiter: %v", err)
		}
		defer limiter.Close()
		limit = limiter.Limit
	}

	server := httpserver.New(cfg, svc, profiles, limit, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			log.Printf("server error: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("graceful shutdown error: %v", err)
	}
}

func buildRatingService(ctx context.Context, cfg config.Config, logger *log.Logger) (ratings.Service, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		st, err := store.New(dbCtx, cfg.DBURL, store.Options{
			MaxConns:               int32(cfg.DBMaxConns),
			MinConns:               int32(cfg.DBMinConns),
			MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
			MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
			ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
			StatementCacheCapacity: cfg.DBStatementCache,
			Logger:                 logger,
		})
		if err != nil {
			return nil, nil, err
		}
		if cfg.MigrateOnStart {
			if err := store.ApplyMigrations(dbCtx, st.Pool(), db.Migrations()); err != nil {
				st.Close()
				return nil, nil, err
			}
		}
		return repository.NewService(st), st.Close, nil

	default:
		fileStore, err := tablestore.NewFileStore(cfg.RatingsFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Printf("ratings: using file backend at %s", cfg.RatingsFile)
		return ratings.NewLedger(fileStore, logger), func() {}, nil
	}
}
