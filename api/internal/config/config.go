package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          string `yaml:"port"`
	DefaultEngine string `yaml:"default_engine"`

	DeepseekAPIKey string `yaml:"deepseek_api_key"`
	DeepseekURL    string `yaml:"deepseek_url"`
	DeepseekModel  string `yaml:"deepseek_model"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIModel    string `yaml:"openai_model"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	GeminiModel    string `yaml:"gemini_model"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	WebhookURL       string `yaml:"webhook_url"`

	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	AnalyzeTimeout     time.Duration `yaml:"analyze_timeout"`
	SessionIdleTTL     time.Duration `yaml:"session_idle_ttl"`
	LLMMaxRPS          float64       `yaml:"llm_max_rps"`
	UpstreamRetries    int           `yaml:"upstream_retries"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

func Default() *Config {
	return &Config{
		Port:               "8000",
		DefaultEngine:      "deepseek",
		DeepseekModel:      "DEEPSEEK-REASONER",
		OpenAIModel:        "gpt-4o-mini",
		GeminiModel:        "gemini-2.5-flash",
		CacheTTL:           24 * time.Hour,
		AnalyzeTimeout:     180 * time.Second,
		SessionIdleTTL:     24 * time.Hour,
		UpstreamRetries:    2,
		RateLimitPerMinute: 100,
	}
}

// Load: значения по умолчанию, затем YAML из CONFIG_FILE, затем переменные окружения (и .env).
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DefaultEngine = strings.ToLower(getEnv("DEFAULT_ENGINE", c.DefaultEngine))

	c.DeepseekAPIKey = getEnv("DEEPSEEK_API_KEY", c.DeepseekAPIKey)
	c.DeepseekURL = getEnv("DEEPSEEK_URL", c.DeepseekURL)
	c.DeepseekModel = getEnv("DEEPSEEK_MODEL", c.DeepseekModel)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)

	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)

	var errs []error
	parseInt := func(k string, dst *int) {
		if v := getEnv(k, ""); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = n
		}
	}
	parseDur := func(k string, dst *time.Duration) {
		if v := getEnv(k, ""); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = d
		}
	}
	parseInt("REDIS_DB", &c.RedisDB)
	parseInt("UPSTREAM_RETRIES", &c.UpstreamRetries)
	parseInt("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	parseDur("CACHE_TTL", &c.CacheTTL)
	parseDur("ANALYZE_TIMEOUT", &c.AnalyzeTimeout)
	parseDur("SESSION_IDLE_TTL", &c.SessionIdleTTL)
	if v := getEnv("LLM_MAX_RPS", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLM_MAX_RPS: %w", err))
		} else {
			c.LLMMaxRPS = f
		}
	}
	return errors.Join(errs...)
}

// parseDuration принимает "90s", "2m" и просто число секунд.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Engines: движки, для которых задан ключ.
func (c *Config) Engines() []string {
	var out []string
	if c.DeepseekAPIKey != "" {
		out = append(out, "deepseek")
	}
	if c.OpenAIAPIKey != "" {
		out = append(out, "openai")
	}
	if c.GeminiAPIKey != "" {
		out = append(out, "gemini")
	}
	return out
}

func (c *Config) Validate() error {
	engines := c.Engines()
	if len(engines) == 0 {
		return errors.New("no engine configured: set DEEPSEEK_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY")
	}
	def := c.DefaultEngine
	switch def {
	case "gpt":
		def = "openai"
	case "google":
		def = "gemini"
	}
	for _, e := range engines {
		if e == def {
			return nil
		}
	}
	return fmt.Errorf("default engine %q has no API key (configured: %s)", c.DefaultEngine, strings.Join(engines, ", "))
}

func (c *Config) Addr() string { return "0.0.0.0:" + c.Port }
