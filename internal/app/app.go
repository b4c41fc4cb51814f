// Package app builds the essay transformer and its collaborators from
// configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/essayist/internal/cache"
	"github.com/dgallion1/essayist/internal/config"
	"github.com/dgallion1/essayist/internal/essay"
	"github.com/dgallion1/essayist/internal/iiif"
	"github.com/dgallion1/essayist/internal/knowledge"
	"github.com/dgallion1/essayist/internal/source"
	"github.com/dgallion1/essayist/internal/stats"
)

const cachePrefix = "essayist:"

// App holds the wired components shared by the server and the CLI.
type App struct {
	Config      config.Config
	Stats       *stats.Tracker
	Source      source.Source
	Transformer *essay.Transformer

	redis *cache.Redis
	log   *slog.Logger
}

// New wires every component. A configured Redis must answer a ping.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	tracker := stats.NewTracker(time.Hour)
	a := &App{Config: cfg, Stats: tracker, log: log}

	var kgCache, mfCache, geoCache cache.Cache
	if cfg.RedisAddr != "" {
		r := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cachePrefix,
			TTL:      cfg.CacheTTL,
		})
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.redis = r
		kgCache = r.Namespace("kg:")
		mfCache = r.Namespace("manifest:")
		geoCache = r.Namespace("geo:")
		log.Info("using redis cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	} else {
		kgCache = cache.NewMemory()
		mfCache = cache.NewMemory()
		geoCache = cache.NewMemory()
	}

	kg := knowledge.NewClient(knowledge.Config{
		Endpoints: cfg.SPARQLEndpoints(),
		UserAgent: "essayist",
		Timeout:   cfg.HTTPTimeout,
		Stats:     tracker,
	})

	var manifests essay.ManifestService
	if cfg.ManifestServiceURL != "" {
		manifests = iiif.NewClient(cfg.ManifestServiceURL, cfg.HTTPTimeout, tracker)
	}

	if cfg.ContentRoot != "" {
		a.Source = source.NewLocal(cfg.ContentRoot)
		log.Info("serving local essays", "root", cfg.ContentRoot)
	} else {
		a.Source = source.NewGitHub(cfg.GitHubAPIURL, cfg.GHToken, cfg.HTTPTimeout, tracker, log)
	}

	a.Transformer = essay.New(essay.Options{
		Knowledge:       kg,
		Geocoder:        kg,
		Manifests:       manifests,
		KnowledgeCache:  kgCache,
		ManifestCache:   mfCache,
		GeoCache:        geoCache,
		ManifestWorkers: cfg.ManifestWorkers,
		Runs:            essay.NewRunStore(cfg.RunTTL),
		Log:             log,
	})
	return a, nil
}

// StartCleanup drops expired runs until ctx is done.
func (a *App) StartCleanup(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Transformer.Runs().Cleanup()
			}
		}
	}()
}

// Close releases the cache connection.
func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}
