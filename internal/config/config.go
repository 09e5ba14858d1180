// Package config provides environment-driven configuration for recall.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	DatabaseURL Secret
	APIKey      Secret
	Port        string
	ListenHost  string
	MetricsPort string
	CORSOrigins []string
	LogLevel    string
	DBMaxConns  int

	RateLimitRPS   int
	RateLimitBurst int

	EmbeddingProvider   string
	OllamaURL           string
	OllamaAllowRemote   bool
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingMaxChars   int
	OpenAIAPIKey        Secret
	EmbedWorkers        int

	RerankURL     string
	RerankModel   string
	RerankAPIKey  Secret
	RerankTimeout time.Duration

	RRFK            int
	RetrievePool    int
	RetrieveKeep    int
	TemporalWindow  time.Duration
	RecencyDecay    string
	RecencyHalfLife time.Duration

	BufferMaxMessages  int
	BufferInactivity   time.Duration
	BufferTTL          time.Duration
	BufferSafetyMargin time.Duration
	BufferSweep        string

	ResolverCacheTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional.

	cfg := &Config{
		DatabaseURL:       Secret(envOrDefault("DATABASE_URL", "")),
		APIKey:            Secret(envOrDefault("API_KEY", "")),
		Port:              envOrDefault("PORT", "3040"),
		ListenHost:        envOrDefault("LISTEN_HOST", "127.0.0.1"),
		MetricsPort:       envOrDefault("METRICS_PORT", "9092"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		EmbeddingProvider: envOrDefault("EMBEDDING_PROVIDER", "ollama"),
		OllamaURL:         envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaAllowRemote: envOrDefault("OLLAMA_ALLOW_REMOTE", "false") == "true",
		EmbeddingModel:    envOrDefault("EMBEDDING_MODEL", "qwen3-embedding:0.6b"),
		OpenAIAPIKey:      Secret(envOrDefault("OPENAI_API_KEY", "")),
		RerankURL:         envOrDefault("RERANK_URL", ""),
		RerankModel:       envOrDefault("RERANK_MODEL", "bge-reranker-v2-m3"),
		RerankAPIKey:      Secret(envOrDefault("RERANK_API_KEY", "")),
		RecencyDecay:      envOrDefault("RECENCY_DECAY", "exponential"),
		BufferSweep:       envOrDefault("BUFFER_SWEEP", "@every 30s"),
	}

	ints := []struct {
		key      string
		def      int
		min, max int
		dst      *int
	}{
		{"DB_MAX_CONNS", 21, 2, 200, &cfg.DBMaxConns},
		{"RATE_LIMIT_RPS", 20, 1, 10000, &cfg.RateLimitRPS},
		{"RATE_LIMIT_BURST", 40, 1, 10000, &cfg.RateLimitBurst},
		{"EMBEDDING_DIMENSIONS", 1024, 1, 4096, &cfg.EmbeddingDimensions},
		{"EMBEDDING_MAX_CHARS", 8000, 256, 1 << 20, &cfg.EmbeddingMaxChars},
		{"EMBED_WORKERS", 4, 1, 16, &cfg.EmbedWorkers},
		{"RRF_K", 60, 1, 1000, &cfg.RRFK},
		{"RETRIEVE_POOL", 60, 3, 1000, &cfg.RetrievePool},
		{"RETRIEVE_KEEP", 15, 1, 200, &cfg.RetrieveKeep},
		{"BUFFER_MAX_MESSAGES", 5, 1, 1000, &cfg.BufferMaxMessages},
	}

	for _, v := range ints {
		n, err := envInt(v.key, v.def, v.min, v.max)
		if err != nil {
			return nil, err
		}

		*v.dst = n
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"RERANK_TIMEOUT", 5 * time.Second, &cfg.RerankTimeout},
		{"TEMPORAL_WINDOW", 30 * time.Minute, &cfg.TemporalWindow},
		{"RECENCY_HALF_LIFE", 72 * time.Hour, &cfg.RecencyHalfLife},
		{"BUFFER_INACTIVITY", 2 * time.Minute, &cfg.BufferInactivity},
		{"BUFFER_TTL", 30 * time.Minute, &cfg.BufferTTL},
		{"BUFFER_SAFETY_MARGIN", time.Minute, &cfg.BufferSafetyMargin},
		{"RESOLVER_CACHE_TTL", 10 * time.Minute, &cfg.ResolverCacheTTL},
	}

	for _, v := range durations {
		d, err := envDuration(v.key, v.def)
		if err != nil {
			return nil, err
		}

		*v.dst = d
	}

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}

// AuthEnabled reports whether requests must carry the API key.
func (c *Config) AuthEnabled() bool {
	return c.APIKey.Value() != ""
}

// RerankEnabled reports whether a rerank service is configured.
func (c *Config) RerankEnabled() bool {
	return c.RerankURL != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envInt(key string, fallback, lo, hi int) (int, error) {
	n, err := strconv.Atoi(envOrDefault(key, strconv.Itoa(fallback)))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, lo, hi)
	}

	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback.String()))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (e.g. 30s, 5m)", key)
	}

	return d, nil
}
