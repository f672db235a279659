package main

import (
	"context"
	"time"

	"galleria/internal/auth"
	"galleria/internal/config"
	"galleria/internal/database"
	"galleria/internal/geocode"
	"galleria/internal/ingest"
	"galleria/internal/media"
	"galleria/internal/search"
	"galleria/internal/storage"
	"galleria/internal/tagger"
	"galleria/internal/tagger/clip"
	"galleria/pkg/cache"
	"galleria/pkg/logger"
)

// app holds the long-lived services shared by every command.
type app struct {
	cfg      *config.Config
	cache    *cache.MemoryCache
	store    storage.Store
	geocoder *geocode.Geocoder
	tagger   *tagger.Suggester
	images   *ingest.Service
	users    *auth.Service
	tokens   *auth.TokenService
}

// bootstrap loads the configuration, opens the database and builds the
// upload pipeline. withTagger controls whether the model is loaded.
func bootstrap(ctx context.Context, withTagger bool) *app {
	config.Load(configFile)
	cfg := config.AppConfig

	database.InitDB()

	a := &app{cfg: cfg}

	a.cache = cache.New(cache.Options{
		Enabled: cfg.Cache.Enabled,
		MaxSize: int64(cfg.Cache.MaxCapacity) << 20,
		TTL:     config.Duration(cfg.Cache.TTL, cache.DefaultTTL),
	})

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.LogFatal("Storage initialization failed: %v", err)
	}
	a.store = store

	a.geocoder = geocode.New(
		geocode.NewNominatim(cfg.Geocode.Endpoint, cfg.Geocode.UserAgent, cfg.Geocode.Language,
			config.Duration(cfg.Geocode.Timeout, geocode.DefaultTimeout)),
		a.cache,
		geocode.Options{
			Enabled:       cfg.Geocode.Enabled,
			Timeout:       config.Duration(cfg.Geocode.Timeout, geocode.DefaultTimeout),
			RatePerSecond: cfg.Geocode.RatePerSecond,
			CacheTTL:      config.Duration(cfg.Geocode.CacheTTL, geocode.DefaultCacheTTL),
		},
	)

	if withTagger {
		a.tagger = loadTagger(cfg.Tagger)
	}

	pipeline := ingest.NewPipeline(
		media.NewNormalizer(cfg.Image.NormalizeQuality),
		media.NewExtractor(a.geocoder),
		media.NewThumbnailer(cfg.Image.ThumbnailSize, cfg.Image.ThumbnailQuality, cfg.Image.SafetyCap),
	)
	a.images = ingest.NewService(database.DB, a.store, pipeline)

	a.tokens = auth.NewTokenService(cfg.Security.JWTSecret, config.Duration(cfg.Security.TokenTTL, 24*time.Hour))
	a.users = auth.NewService(database.DB, a.tokens)
	return a
}

// loadTagger returns nil when suggestions are disabled or the model cannot
// be loaded; the rest of the service keeps working.
func loadTagger(cfg config.TaggerConfig) *tagger.Suggester {
	if !cfg.Enabled {
		logger.LogWarn("Tag suggestion is DISABLED via config.")
		return nil
	}

	labels, err := tagger.LoadLabelEmbeddings(cfg.EmbeddingsPath, tagger.Vocabulary)
	if err != nil {
		logger.LogWarn("Tag suggestion unavailable: %v", err)
		return nil
	}

	enc, err := clip.Load(cfg.ModelPath, labels.Dim())
	if err != nil {
		logger.LogWarn("Tag suggestion unavailable: %v", err)
		return nil
	}

	return tagger.NewSuggester(enc, labels, tagger.Options{
		Threshold: cfg.Threshold,
		MaxTags:   cfg.MaxTags,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Timeout:   config.Duration(cfg.Timeout, tagger.DefaultTimeout),
		Language:  cfg.Language,
	})
}

func (a *app) newSearcher() *search.Searcher {
	seg, err := search.NewSegmenter()
	if err != nil {
		logger.LogWarn("Segmenter dictionary failed to load, falling back to whitespace: %v", err)
	}
	return search.New(database.DB, seg, a.cfg.Search.MaxResults)
}

func (a *app) close() {
	if err := a.tagger.Close(); err != nil {
		logger.LogWarn("Tagger shutdown: %v", err)
	}
	a.cache.Close()
	if err := database.Close(database.DB); err != nil {
		logger.LogWarn("Database close: %v", err)
	}
}
