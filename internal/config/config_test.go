package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "GEMINI_API_KEY", "SHADEBOT_STORE", "SHADEBOT_DB",
		"SHADEBOT_REDIS_ADDR", "SHADEBOT_AMQP_URL", "SHADEBOT_HTTP_ADDR",
		"SHADEBOT_LOG_LEVEL", "SHADEBOT_OVERSIZE_LIMIT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "shadebot", cfg.Name)
	assert.Equal(t, 0.6, cfg.Thresholds.ClassifierConfidence)
	assert.Equal(t, 0.9, cfg.Thresholds.EdgeCaseConfidence)
	assert.Equal(t, 3, cfg.Thresholds.OversizeRepeatLimit)
	assert.Equal(t, 2*time.Hour, cfg.GetHumanStaleness())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.False(t, cfg.LLM.Enabled())
	require.NoError(t, cfg.Validate(), "defaults must validate without an API key")
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.HTTPAddr, cfg.Server.HTTPAddr)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cfg", "shadebot.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = ProviderGemini
	cfg.LLM.APIKey = "g-test"
	cfg.Store.Backend = "sqlite"
	cfg.Thresholds.OversizeRepeatLimit = 4
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, loaded.LLM.Provider)
	assert.Equal(t, "g-test", loaded.LLM.APIKey)
	assert.Equal(t, "sqlite", loaded.Store.Backend)
	assert.Equal(t, 4, loaded.Thresholds.OversizeRepeatLimit)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "shadebot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  classifier_confidence: 0.75\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.Thresholds.ClassifierConfidence)
	assert.Equal(t, 0.9, cfg.Thresholds.EdgeCaseConfidence)
	assert.NotEmpty(t, cfg.Bot.Personas)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("OPENAI_API_KEY selects provider when empty", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	})

	t.Run("key for another provider does not override", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := &Config{LLM: LLMConfig{Provider: ProviderGemini, APIKey: "g"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "g", cfg.LLM.APIKey)
		assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	})

	t.Run("store and transport", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SHADEBOT_STORE", "redis")
		t.Setenv("SHADEBOT_REDIS_ADDR", "cache:6380")
		t.Setenv("SHADEBOT_AMQP_URL", "amqp://bus")
		t.Setenv("SHADEBOT_HTTP_ADDR", ":9999")
		t.Setenv("SHADEBOT_OVERSIZE_LIMIT", "5")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "redis", cfg.Store.Backend)
		assert.Equal(t, "cache:6380", cfg.Store.RedisAddr)
		assert.True(t, cfg.AMQP.Enabled)
		assert.Equal(t, "amqp://bus", cfg.AMQP.URL)
		assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
		assert.Equal(t, 5, cfg.Thresholds.OversizeRepeatLimit)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.LLM.Provider = "zai" }},
		{"bad backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"sqlite without path", func(c *Config) { c.Store.Backend = "sqlite"; c.Store.SQLitePath = "" }},
		{"confidence out of range", func(c *Config) { c.Thresholds.ClassifierConfidence = 1.5 }},
		{"zero repeat limit", func(c *Config) { c.Thresholds.OversizeRepeatLimit = 0 }},
		{"bad staleness", func(c *Config) { c.Thresholds.HumanStaleness = "soon" }},
		{"amqp without url", func(c *Config) { c.AMQP.Enabled = true; c.AMQP.URL = "" }},
		{"no personas", func(c *Config) { c.Bot.Personas = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.GetLLMTimeout())
	cfg.LLM.Timeout = "garbage"
	assert.Equal(t, 30*time.Second, cfg.GetLLMTimeout(), "falls back on parse error")

	assert.Equal(t, 720*time.Hour, cfg.GetRedisTTL())
	cfg.Store.RedisTTL = "0"
	assert.Zero(t, cfg.GetRedisTTL())

	cfg.LLM.Provider = ProviderOpenAI
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.ModelOrDefault())
	cfg.LLM.Model = "gpt-4.1"
	assert.Equal(t, "gpt-4.1", cfg.LLM.ModelOrDefault())
}

func TestLoggingConfig(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Categories: map[string]bool{"api": false}}
	assert.False(t, lc.IsCategoryEnabled("api"))
	assert.True(t, lc.IsCategoryEnabled("dispatch"))

	out := lc.Logging()
	assert.Equal(t, "debug", out.Level)
	assert.False(t, out.Categories["api"])
}
