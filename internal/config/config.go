// Package config parses and validates all application configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup; pass the resulting [Config] by pointer into
// the consumer loop and its collaborators. The process exits non-zero when
// a variable required by the selected queue backend is missing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Queue backend names accepted in QUEUE_BACKEND.
const (
	BackendAzure = "azure"
	BackendRedis = "redis"
)

// Config holds all application configuration sourced from environment
// variables. The variable names match the historical deployment manifests.
// Sensitive fields are masked in String().
type Config struct {
	// ── Snyk API ─────────────────────────────────────────────────────────────────
	SnykToken          string  `env:"SNYK_TOKEN,required"`
	SnykRestAPIURL     string  `env:"SNYK_REST_API_URL"     envDefault:"https://api.snyk.io/rest/"`
	SnykRestAPIVersion string  `env:"SNYK_REST_API_VERSION" envDefault:"2024-10-15"`
	SnykV1APIURL       string  `env:"SNYK_V1_API_URL"       envDefault:"https://api.snyk.io/v1/"`
	SnykAPIRPS         float64 `env:"SNYK_API_RPS"          envDefault:"5"`

	// ── Queue transport ──────────────────────────────────────────────────────────
	// QueueBackend: "azure" (Storage Queue + managed identity, production) or
	// "redis" (local development and CI).
	QueueBackend       string `env:"QUEUE_BACKEND" envDefault:"azure"`
	StorageAccountName string `env:"STORAGE_ACCOUNT_NAME"`
	StorageQueueName   string `env:"STORAGE_QUEUE_NAME"`
	RedisAddr          string `env:"REDIS_ADDR"      envDefault:"localhost:6379"`
	RedisQueueKey      string `env:"REDIS_QUEUE_KEY" envDefault:"snyk-tag-processor:queue"`

	// ── Processing ───────────────────────────────────────────────────────────────
	// MaxTimeout is the backoff base: the visibility delay applied on the
	// final permitted attempt; earlier attempts get a halved share of it.
	MaxAttempts          int           `env:"MAX_ATTEMPTS"           envDefault:"5"`
	MaxTimeout           time.Duration `env:"MAX_TIMEOUT"            envDefault:"30m"`
	VisibilityTimeout    time.Duration `env:"VISIBILITY_TIMEOUT"     envDefault:"30s"`
	QueuePollingInterval time.Duration `env:"QUEUE_POLLING_INTERVAL" envDefault:"10s"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the constraints env tags cannot express: per-backend
// required variables and sane processing bounds.
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case BackendAzure:
		var missing []string
		if c.StorageAccountName == "" {
			missing = append(missing, "STORAGE_ACCOUNT_NAME")
		}
		if c.StorageQueueName == "" {
			missing = append(missing, "STORAGE_QUEUE_NAME")
		}
		if len(missing) > 0 {
			return fmt.Errorf("queue backend %q requires %s", c.QueueBackend, strings.Join(missing, ", "))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("queue backend %q requires REDIS_ADDR", c.QueueBackend)
		}
	default:
		return fmt.Errorf("unknown queue backend %q (expected %q or %q)", c.QueueBackend, BackendAzure, BackendRedis)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.VisibilityTimeout < 2*time.Second {
		return fmt.Errorf("VISIBILITY_TIMEOUT must be at least 2s, got %s", c.VisibilityTimeout)
	}
	if c.QueuePollingInterval <= 0 {
		return fmt.Errorf("QUEUE_POLLING_INTERVAL must be positive, got %s", c.QueuePollingInterval)
	}
	return nil
}

// String renders the config for startup logging with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"backend=%s account=%s queue=%s redis=%s rest_api=%s api_version=%s token=%s max_attempts=%d max_timeout=%s visibility=%s poll_interval=%s",
		c.QueueBackend, c.StorageAccountName, c.StorageQueueName, c.RedisAddr,
		c.SnykRestAPIURL, c.SnykRestAPIVersion, mask(c.SnykToken),
		c.MaxAttempts, c.MaxTimeout, c.VisibilityTimeout, c.QueuePollingInterval,
	)
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
