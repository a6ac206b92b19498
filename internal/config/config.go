// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"portfolio-chat/internal/intent"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	StateBackend        string        `env:"STATE_BACKEND" envDefault:"memory"`
	StateTable          string        `env:"STATE_TABLE"`
	RedisURL            string        `env:"REDIS_URL"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	MemoryStoreCapacity int           `env:"MEMORY_STORE_CAPACITY" envDefault:"1000"`

	ParamPrefix   string `env:"PARAM_PREFIX"`
	KnowledgeFile string `env:"KNOWLEDGE_FILE"`

	Classifier       string        `env:"CLASSIFIER" envDefault:"rule"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH" envDefault:"300"`

	Generator GeneratorConfig

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
}

// GeneratorConfig configures the optional OpenAI-compatible generator. The
// API key comes from GENERATOR_API_KEY or, when unset, from the
// generator_api_key parameter under PARAM_PREFIX.
type GeneratorConfig struct {
	Enabled bool          `env:"GENERATOR_ENABLED" envDefault:"false"`
	BaseURL string        `env:"GENERATOR_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	Model   string        `env:"GENERATOR_MODEL" envDefault:"openai/gpt-4o-mini"`
	APIKey  string        `env:"GENERATOR_API_KEY"`
	Timeout time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"10s"`
}

// Load parses and validates the environment.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StateBackend = strings.ToLower(strings.TrimSpace(c.StateBackend))
	c.StateTable = strings.TrimSpace(c.StateTable)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.ParamPrefix = strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
	c.KnowledgeFile = strings.TrimSpace(c.KnowledgeFile)
	c.Classifier = strings.ToLower(strings.TrimSpace(c.Classifier))
	c.Generator.Model = strings.TrimSpace(c.Generator.Model)
	c.Generator.APIKey = strings.TrimSpace(c.Generator.APIKey)
}

// Validate checks the cross-field requirements.
func (c Config) Validate() error {
	var errs []error
	switch c.StateBackend {
	case BackendDynamoDB:
		if c.StateTable == "" {
			errs = append(errs, errors.New("STATE_TABLE is required for the dynamodb backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend))
	}
	if _, err := intent.ParseKind(c.Classifier); err != nil {
		errs = append(errs, err)
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("IDLE_TIMEOUT must be positive"))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	if c.MemoryStoreCapacity <= 0 {
		errs = append(errs, errors.New("MEMORY_STORE_CAPACITY must be positive"))
	}
	if c.Generator.Enabled {
		if c.Generator.Model == "" {
			errs = append(errs, errors.New("GENERATOR_MODEL is required when the generator is enabled"))
		}
		if c.Generator.APIKey == "" && c.ParamPrefix == "" {
			errs = append(errs, errors.New("GENERATOR_API_KEY or PARAM_PREFIX is required when the generator is enabled"))
		}
		if c.Generator.Timeout <= 0 {
			errs = append(errs, errors.New("GENERATOR_TIMEOUT must be positive"))
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SlogLevel converts LOG_LEVEL to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return lvl, nil
}
