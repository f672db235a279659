package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"galleria/pkg/logger"
)

var AppConfig *Config

func (c *Config) GetBaseUrl() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

// Duration parses a duration setting, falling back when it is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Load reads config.yaml (optional), environment variables and defaults into
// AppConfig. The process exits on an invalid configuration.
func Load(configFile string) {
	cfg, err := LoadFrom(configFile)
	if err != nil {
		log.Fatalf("[FATAL] CONFIGURATION ERROR: %v", err)
	}
	AppConfig = cfg

	logger.SetDebug(cfg.App.Debug)
	logger.LogInfo("⚙️  %s v%s Initialized | Env: %s | Port: %d",
		cfg.App.Name,
		cfg.App.Version,
		cfg.Server.Env,
		cfg.Server.Port,
	)
}

// LoadFrom builds a Config without touching the global. An empty configFile
// searches ./config.yaml.
func LoadFrom(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GALLERIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("database.path", "GALLERY_DATABASE_PATH")
	v.BindEnv("security.jwt_secret", "GALLERY_JWT_SECRET")
	v.BindEnv("storage.minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio.endpoint", "MINIO_HOST")
	v.BindEnv("server.port", "APP_PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.LogInfo("Config file not found. Using Environment Variables and Defaults.")
		} else if configFile != "" {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		} else {
			logger.LogWarn("Config file found but unreadable: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	cfg.BaseURL = cfg.GetBaseUrl()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "Galleria")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.start_message", true)

	// Server
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.env", "development")

	// Database
	v.SetDefault("database.path", "./data/gallery.db")
	v.SetDefault("database.vacuum_threshold", "256MiB")
	v.SetDefault("database.maintenance_interval", "30m")

	// Storage
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.root", "./media")
	v.SetDefault("storage.public_path", "/media")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.bucket", "images")
	v.SetDefault("storage.minio.use_ssl", false)

	// Image Pipeline
	v.SetDefault("image.max_upload_size", "20MiB")
	v.SetDefault("image.thumbnail_size", 300)
	v.SetDefault("image.thumbnail_quality", 85)
	v.SetDefault("image.safety_cap", 4096)
	v.SetDefault("image.normalize_quality", 100)

	// Geocoding
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.endpoint", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "galleria-image-manager")
	v.SetDefault("geocode.language", "zh-cn")
	v.SetDefault("geocode.timeout", "5s")
	v.SetDefault("geocode.rate_per_second", 1.0)
	v.SetDefault("geocode.cache_ttl", "24h")

	// Tag Suggestion
	v.SetDefault("tagger.enabled", true)
	v.SetDefault("tagger.model_path", "./models/clip-vit-base-patch32-visual.onnx")
	v.SetDefault("tagger.embeddings_path", "./models/clip-vit-base-patch32-labels.json")
	v.SetDefault("tagger.threshold", 0.10)
	v.SetDefault("tagger.max_tags", 3)
	v.SetDefault("tagger.workers", 1)
	v.SetDefault("tagger.queue_size", 16)
	v.SetDefault("tagger.timeout", "10s")
	v.SetDefault("tagger.language", "zh")

	// Search
	v.SetDefault("search.max_results", 10)

	// Caching
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_capacity", 100) // 100 MB
	v.SetDefault("cache.ttl", "30m")

	// Security & Limits
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.token_ttl", "24h")
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests", 20)
	v.SetDefault("security.rate_limit.window", "1s")
	v.SetDefault("security.rate_limit.burst", 50)
}

func (c *Config) Validate() error {
	// Security: token signing key
	if c.Security.JWTSecret == "" || c.Security.JWTSecret == "secret" {
		if c.Server.Env == "production" {
			return fmt.Errorf("security.jwt_secret cannot be default or empty in production environment")
		}
		logger.LogWarn("Security Alert: Using an unsafe development JWT secret. Do not use this in production!")
		c.Security.JWTSecret = "galleria-development-secret"
	}

	durations := map[string]string{
		"cache.ttl":                     c.Cache.TTL,
		"security.rate_limit.window":    c.Security.RateLimit.Window,
		"security.token_ttl":            c.Security.TokenTTL,
		"geocode.timeout":               c.Geocode.Timeout,
		"geocode.cache_ttl":             c.Geocode.CacheTTL,
		"tagger.timeout":                c.Tagger.Timeout,
		"database.maintenance_interval": c.Database.MaintenanceInterval,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s format '%s': %v", key, value, err)
		}
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage.root is required for the local storage driver")
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage.minio.endpoint and storage.minio.bucket are required for the minio driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver '%s' (expected local or minio)", c.Storage.Driver)
	}

	if c.Tagger.Threshold <= 0 || c.Tagger.Threshold >= 1 {
		return fmt.Errorf("tagger.threshold must be in (0, 1), got %v", c.Tagger.Threshold)
	}
	if c.Tagger.MaxTags < 1 {
		return fmt.Errorf("tagger.max_tags must be at least 1")
	}
	if c.Tagger.Workers < 1 {
		return fmt.Errorf("tagger.workers must be at least 1")
	}
	if c.Tagger.QueueSize < 1 {
		return fmt.Errorf("tagger.queue_size must be at least 1")
	}
	if c.Image.ThumbnailSize < 16 {
		return fmt.Errorf("image.thumbnail_size must be at least 16 pixels")
	}
	return nil
}
