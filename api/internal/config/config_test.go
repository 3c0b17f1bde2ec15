package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"damage-assessor/api/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "DEFAULT_ENGINE", "DEEPSEEK_API_KEY", "DEEPSEEK_URL", "DEEPSEEK_MODEL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "GEMINI_API_KEY", "GEMINI_MODEL",
		"TELEGRAM_BOT_TOKEN", "WEBHOOK_URL", "DATABASE_URL", "SQLITE_PATH", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "CACHE_TTL", "ANALYZE_TIMEOUT", "SESSION_IDLE_TTL", "LLM_MAX_RPS", "UPSTREAM_RETRIES", "RATE_LIMIT_PER_MINUTE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "deepseek", cfg.DefaultEngine)
	assert.Equal(t, "DEEPSEEK-REASONER", cfg.DeepseekModel)
	assert.Equal(t, 180*time.Second, cfg.AnalyzeTimeout)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionIdleTTL)
	assert.Equal(t, 2, cfg.UpstreamRetries)
	assert.Equal(t, 100, cfg.RateLimitPerMinute)
	assert.Zero(t, cfg.LLMMaxRPS)

	assert.Error(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "assessor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
default_engine: openai
openai_api_key: sk-file
openai_model: gpt-4o
analyze_timeout: 45s
llm_max_rps: 2.5
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_MODEL", "gpt-4.1-mini")
	t.Setenv("ANALYZE_TIMEOUT", "0")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SESSION_IDLE_TTL", "30m")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "sk-file", cfg.OpenAIAPIKey)
	assert.Equal(t, "gpt-4.1-mini", cfg.OpenAIModel)
	assert.Zero(t, cfg.AnalyzeTimeout)
	assert.Equal(t, 2.5, cfg.LLMMaxRPS)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"openai"}, cfg.Engines())
}

func TestLoad_BadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPSTREAM_RETRIES", "many")
	t.Setenv("CACHE_TTL", "forever")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_RETRIES")
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate_DefaultEngineMustBeConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.GeminiAPIKey = "g"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deepseek")

	cfg.DefaultEngine = "gemini"
	assert.NoError(t, cfg.Validate())
}
