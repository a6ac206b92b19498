package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STATE_BACKEND", "STATE_TABLE", "REDIS_URL", "SESSION_TTL", "MEMORY_STORE_CAPACITY",
		"PARAM_PREFIX", "KNOWLEDGE_FILE", "CLASSIFIER", "IDLE_TIMEOUT", "MAX_MESSAGE_LENGTH",
		"GENERATOR_ENABLED", "GENERATOR_BASE_URL", "GENERATOR_MODEL", "GENERATOR_API_KEY",
		"GENERATOR_TIMEOUT", "LOG_LEVEL", "HTTP_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, BackendMemory, cfg.StateBackend)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.Equal(t, 1000, cfg.MemoryStoreCapacity)
	require.Equal(t, "rule", cfg.Classifier)
	require.Equal(t, 30*time.Minute, cfg.IdleTimeout)
	require.Equal(t, 300, cfg.MaxMessageLength)
	require.False(t, cfg.Generator.Enabled)
	require.Equal(t, "https://openrouter.ai/api/v1", cfg.Generator.BaseURL)
	require.Equal(t, 10*time.Second, cfg.Generator.Timeout)
	require.Equal(t, ":8080", cfg.HTTPAddr)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, lvl)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATE_BACKEND", " DynamoDB ")
	t.Setenv("STATE_TABLE", "chat-sessions")
	t.Setenv("PARAM_PREFIX", "/portfolio/chat/")
	t.Setenv("CLASSIFIER", "embedding")
	t.Setenv("IDLE_TIMEOUT", "5m")
	t.Setenv("GENERATOR_ENABLED", "true")
	t.Setenv("GENERATOR_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendDynamoDB, cfg.StateBackend)
	require.Equal(t, "chat-sessions", cfg.StateTable)
	require.Equal(t, "/portfolio/chat", cfg.ParamPrefix)
	require.Equal(t, "embedding", cfg.Classifier)
	require.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	require.True(t, cfg.Generator.Enabled)
	require.Equal(t, 3*time.Second, cfg.Generator.Timeout)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_MalformedDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("IDLE_TIMEOUT", "half an hour")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate_CrossFieldRules(t *testing.T) {
	valid := func() Config {
		return Config{
			StateBackend:        BackendMemory,
			SessionTTL:          time.Hour,
			MemoryStoreCapacity: 10,
			Classifier:          "rule",
			IdleTimeout:         time.Minute,
			MaxMessageLength:    100,
			LogLevel:            "info",
			Generator:           GeneratorConfig{Model: "m", Timeout: time.Second},
		}
	}
	require.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "dynamodb without table", mutate: func(c *Config) { c.StateBackend = BackendDynamoDB }, want: "STATE_TABLE"},
		{name: "redis without url", mutate: func(c *Config) { c.StateBackend = BackendRedis }, want: "REDIS_URL"},
		{name: "unknown backend", mutate: func(c *Config) { c.StateBackend = "postgres" }, want: "STATE_BACKEND"},
		{name: "unknown classifier", mutate: func(c *Config) { c.Classifier = "neural" }, want: "neural"},
		{name: "generator without key source", mutate: func(c *Config) { c.Generator.Enabled = true }, want: "GENERATOR_API_KEY"},
		{name: "generator without model", mutate: func(c *Config) {
			c.Generator.Enabled = true
			c.Generator.APIKey = "k"
			c.Generator.Model = ""
		}, want: "GENERATOR_MODEL"},
		{name: "zero idle timeout", mutate: func(c *Config) { c.IdleTimeout = 0 }, want: "IDLE_TIMEOUT"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, want: "LOG_LEVEL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_GeneratorWithParamPrefix(t *testing.T) {
	cfg := Config{
		StateBackend:        BackendRedis,
		RedisURL:            "redis://localhost:6379/0",
		SessionTTL:          time.Hour,
		MemoryStoreCapacity: 1,
		Classifier:          "embedding",
		IdleTimeout:         time.Minute,
		MaxMessageLength:    1,
		LogLevel:            "warn",
		ParamPrefix:         "/portfolio",
		Generator:           GeneratorConfig{Enabled: true, Model: "m", Timeout: time.Second},
	}
	require.NoError(t, cfg.Validate())
}
