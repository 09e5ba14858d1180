package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

func (c *Config) validate() error {
	checks := []func() error{
		c.validateDatabase,
		c.validateNetwork,
		c.validateEmbedding,
		c.validateRerank,
		c.validateRetrieval,
		c.validateBuffer,
		c.validateCORS,
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	if !isLoopback(dbURL.Hostname()) && dbURL.Query().Get("sslmode") == "disable" {
		return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbURL.Hostname())
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := parsePort("PORT", c.Port)
	if err != nil {
		return err
	}

	// Loopback for local use; 0.0.0.0/:: when the network boundary is a container.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	if !isLoopback(c.ListenHost) && c.APIKey.Value() == "" {
		return fmt.Errorf("API_KEY is required when LISTEN_HOST is not a loopback address")
	}

	if k := c.APIKey.Value(); k != "" && len(k) < 16 {
		return fmt.Errorf("API_KEY must be at least 16 characters")
	}

	metricsPort, err := parsePort("METRICS_PORT", c.MetricsPort)
	if err != nil {
		return err
	}

	if metricsPort == port {
		return fmt.Errorf("METRICS_PORT must differ from PORT")
	}

	return nil
}

func parsePort(key, v string) (int, error) {
	port, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}

	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 1 and 65535", key)
	}

	return port, nil
}

func (c *Config) validateEmbedding() error {
	switch c.EmbeddingProvider {
	case "ollama":
		ollamaURL, err := url.ParseRequestURI(c.OllamaURL)
		if err != nil {
			return fmt.Errorf("OLLAMA_URL is not a valid URL: %w", err)
		}

		if !isLoopback(ollamaURL.Hostname()) && !c.OllamaAllowRemote {
			return fmt.Errorf("OLLAMA_URL must point to localhost (set OLLAMA_ALLOW_REMOTE=true for distributed deployments)")
		}
	case "openai":
		if c.OpenAIAPIKey.Value() == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER is openai")
		}
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be 'ollama' or 'openai', got %q", c.EmbeddingProvider)
	}

	return nil
}

func (c *Config) validateRerank() error {
	if c.RerankURL == "" {
		return nil
	}

	u, err := url.ParseRequestURI(c.RerankURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("RERANK_URL is not a valid URL")
	}

	if !isLoopback(u.Hostname()) && u.Scheme != "https" && c.RerankAPIKey.Value() != "" {
		return fmt.Errorf("RERANK_URL must use HTTPS when RERANK_API_KEY is sent to a non-local host")
	}

	return nil
}

func (c *Config) validateRetrieval() error {
	// Reranking needs material to reorder.
	if c.RetrievePool < 3*c.RetrieveKeep {
		return fmt.Errorf("RETRIEVE_POOL (%d) must be at least 3x RETRIEVE_KEEP (%d)", c.RetrievePool, c.RetrieveKeep)
	}

	switch c.RecencyDecay {
	case "exponential", "linear", "step":
	default:
		return fmt.Errorf("RECENCY_DECAY must be 'exponential', 'linear' or 'step', got %q", c.RecencyDecay)
	}

	return nil
}

func (c *Config) validateBuffer() error {
	if c.BufferSafetyMargin >= c.BufferTTL {
		return fmt.Errorf("BUFFER_SAFETY_MARGIN must be shorter than BUFFER_TTL")
	}

	if c.BufferInactivity > c.BufferTTL {
		return fmt.Errorf("BUFFER_INACTIVITY must not exceed BUFFER_TTL")
	}

	if _, err := cron.ParseStandard(c.BufferSweep); err != nil {
		return fmt.Errorf("BUFFER_SWEEP is not a valid schedule: %w", err)
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
