package config

type Config struct {
	// App: Global application metadata
	App InConfigAppConfig `mapstructure:"app"`

	// Server: Network configuration and execution environment
	Server ServerConfig `mapstructure:"server"`

	// Database: SQLite engine parameters and maintenance schedule
	Database DatabaseConfig `mapstructure:"database"`

	// Storage: Where original uploads and thumbnails are written
	Storage StorageConfig `mapstructure:"storage"`

	// Image: Upload limits and derived asset parameters
	Image ImageConfig `mapstructure:"image"`

	// Geocode: Reverse geocoding provider for GPS-tagged photos
	Geocode GeocodeConfig `mapstructure:"geocode"`

	// Tagger: Local image-text similarity model used for tag suggestions
	Tagger TaggerConfig `mapstructure:"tagger"`

	// Search: Natural-language search limits
	Search SearchConfig `mapstructure:"search"`

	// Cache: In-memory cache settings (served assets, geocode results)
	Cache CacheConfig `mapstructure:"cache"`

	// Security: Authentication, CORS whitelist, and DDoS protection
	Security SecurityConfig `mapstructure:"security"`

	// BaseURL: The public-facing root URL used for absolute link generation
	BaseURL string `mapstructure:"base_url"`
}

type InConfigAppConfig struct {
	// Name: Identity of the service used in logs and the startup banner
	Name string `mapstructure:"name"`

	// Version: Application semantic version (e.g., "0.1.0")
	Version string `mapstructure:"version"`

	// Debug: Enables LogDebug output
	Debug bool `mapstructure:"debug"`

	StartMessage bool `mapstructure:"start_message"`
}

type ServerConfig struct {
	// Port: The TCP port the HTTP server will bind to (default: 8000)
	Port int `mapstructure:"port"`

	// Env: Execution context (development, staging, production)
	Env string `mapstructure:"env"`
}

type DatabaseConfig struct {
	// Path: Physical location of the SQLite database file (e.g., ./data/gallery.db)
	Path string `mapstructure:"path"`

	// VacuumThreshold: File size below which maintenance never vacuums (e.g., "256MiB")
	VacuumThreshold string `mapstructure:"vacuum_threshold"`

	// MaintenanceInterval: Frequency of the background maintenance worker (e.g., "30m")
	MaintenanceInterval string `mapstructure:"maintenance_interval"`
}

type StorageConfig struct {
	// Driver: "local" (filesystem) or "minio" (S3 compatible object storage)
	Driver string `mapstructure:"driver"`

	// Root: Base directory for the local driver (e.g., ./media)
	Root string `mapstructure:"root"`

	// PublicPath: URL prefix under which stored assets are served (e.g., "/media")
	PublicPath string `mapstructure:"public_path"`

	Minio MinioConfig `mapstructure:"minio"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type ImageConfig struct {
	// MaxUploadSize: Maximum payload size for upload/analyze endpoints (e.g., "20MiB")
	MaxUploadSize string `mapstructure:"max_upload_size"`

	// ThumbnailSize: Bounding box edge for thumbnails in pixels (default 300)
	ThumbnailSize int `mapstructure:"thumbnail_size"`

	// ThumbnailQuality: JPEG quality for thumbnails (1-100)
	ThumbnailQuality int `mapstructure:"thumbnail_quality"`

	// SafetyCap: Sources larger than this on either edge are pre-shrunk (default 4096)
	SafetyCap int `mapstructure:"safety_cap"`

	// NormalizeQuality: JPEG quality used when converting HEIC uploads
	NormalizeQuality int `mapstructure:"normalize_quality"`
}

type GeocodeConfig struct {
	// Enabled: When false, GPS photos get a plain coordinate string
	Enabled bool `mapstructure:"enabled"`

	// Endpoint: Nominatim compatible base URL
	Endpoint string `mapstructure:"endpoint"`

	// UserAgent: Required by the public Nominatim usage policy
	UserAgent string `mapstructure:"user_agent"`

	// Language: accept-language sent to the provider (e.g., "zh-cn")
	Language string `mapstructure:"language"`

	// Timeout: Hard bound on a single lookup (e.g., "5s")
	Timeout string `mapstructure:"timeout"`

	// RatePerSecond: Outbound request budget
	RatePerSecond float64 `mapstructure:"rate_per_second"`

	// CacheTTL: How long resolved places are kept in memory
	CacheTTL string `mapstructure:"cache_ttl"`
}

type TaggerConfig struct {
	// Enabled: Toggles loading the model at startup
	Enabled bool `mapstructure:"enabled"`

	// ModelPath: ONNX export of the CLIP visual tower
	ModelPath string `mapstructure:"model_path"`

	// EmbeddingsPath: JSON with one text embedding per vocabulary label
	EmbeddingsPath string `mapstructure:"embeddings_path"`

	// Threshold: Minimum probability for a label to be suggested
	Threshold float64 `mapstructure:"threshold"`

	// MaxTags: Upper bound on suggested labels
	MaxTags int `mapstructure:"max_tags"`

	// Workers: Dedicated inference goroutines
	Workers int `mapstructure:"workers"`

	// QueueSize: Pending analyze requests before callers are turned away
	QueueSize int `mapstructure:"queue_size"`

	// Timeout: Upper bound on a single suggestion, queueing included (e.g., "10s")
	Timeout string `mapstructure:"timeout"`

	// Language: "zh" or "en" display names for suggested labels
	Language string `mapstructure:"language"`
}

type SearchConfig struct {
	// MaxResults: Cap on natural-language search hits
	MaxResults int `mapstructure:"max_results"`
}

type CacheConfig struct {
	// Enabled: Toggles the in-memory caching layer
	Enabled bool `mapstructure:"enabled"`

	// MaxCapacity: Maximum RAM allocated for cache in MB (e.g., 100)
	MaxCapacity int `mapstructure:"max_capacity"`

	// TTL: Expiration time for cached items (e.g., "30m", "24h")
	TTL string `mapstructure:"ttl"`
}

type SecurityConfig struct {
	// JWTSecret: HMAC key for access tokens
	JWTSecret string `mapstructure:"jwt_secret"`

	// TokenTTL: Access token lifetime (e.g., "24h")
	TokenTTL string `mapstructure:"token_ttl"`

	// CorsOrigins: List of allowed domains for browser-based cross-origin requests
	CorsOrigins []string `mapstructure:"cors_origins"`

	// RateLimit: DDoS protection logic using a token-bucket algorithm
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	// Enabled: Global toggle for the rate limiting middleware
	Enabled bool `mapstructure:"enabled"`

	// Requests: Number of allowed requests per time window
	Requests int `mapstructure:"requests"`

	// Window: The timeframe for the request limit (e.g., "1s", "1m")
	Window string `mapstructure:"window"`

	// Burst: Temporary allowed spike capacity above the steady-rate limit
	Burst int `mapstructure:"burst"`
}
