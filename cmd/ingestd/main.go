package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/admitdata/gradcafe-etl/internal/config"
	"github.com/admitdata/gradcafe-etl/internal/dedup"
	"github.com/admitdata/gradcafe-etl/internal/fetch"
	"github.com/admitdata/gradcafe-etl/internal/httpapi"
	"github.com/admitdata/gradcafe-etl/internal/job"
	"github.com/admitdata/gradcafe-etl/internal/load"
	"github.com/admitdata/gradcafe-etl/internal/normalize"
	"github.com/admitdata/gradcafe-etl/internal/store"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithField("error", err).Warn("loading .env")
	}

	cfg := config.Load()
	log.Info("starting admissions ingestion service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := store.NewPostgres(cfg.Postgres.ConnectionString, cfg.Postgres.TableName)
	if err != nil {
		log.WithField("error", err).Fatal("postgres connection failed")
	}
	defer pg.Close()
	log.Info("postgres connected")

	// Redis seen-cache is optional; without it dedup hits the store only
	var seenCache dedup.SeenCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithField("error", err).Warn("redis unavailable, dedup degrades to store-only")
		} else {
			seenCache = dedup.NewRedisSeenCache(rdb, cfg.Redis.SeenPrefix, cfg.Redis.SeenTTL)
			log.Info("redis connected")
		}
	}

	// Elasticsearch mirror is optional
	var mirror load.SearchMirror
	if len(cfg.Elasticsearch.Addresses) > 0 {
		idx, err := store.NewSearchIndex(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Index)
		if err != nil {
			log.WithField("error", err).Warn("elasticsearch unavailable, search mirroring disabled")
		} else {
			mirror = idx
			log.Info("elasticsearch connected")
		}
	}

	fetcher := fetch.New(fetch.Config{
		BaseURL:        cfg.Scraper.BaseURL,
		PerPage:        cfg.Scraper.PerPage,
		MaxPages:       cfg.Scraper.MaxPages,
		UserAgent:      cfg.Scraper.UserAgent,
		RequestDelay:   cfg.Scraper.RequestDelay,
		MaxRetries:     cfg.Scraper.MaxRetries,
		RetryBackoff:   cfg.Scraper.RetryBackoff,
		RequestTimeout: cfg.Scraper.RequestTimeout,
	})

	pipeline := job.NewPipeline(
		fetcher,
		pg,
		normalize.New(),
		dedup.New(pg, seenCache),
		load.New(pg, mirror),
		cfg.Scraper.TargetEntries,
	)
	coordinator := job.NewCoordinator(pipeline)

	handler := httpapi.NewHandler(coordinator, pg, cfg.Server.SyncPull)
	router := httpapi.SetupRouter(handler, cfg.Server.Mode)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Fatal("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutdown signal received, stopping")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("http shutdown")
	}

	// Leave the job state idle on clean teardown
	coordinator.Clear()
	log.Info("graceful shutdown complete")
}
