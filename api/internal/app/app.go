// Package app собирает движки, хранилища и сервисы из конфигурации
// для всех бинарников: HTTP API, Telegram-бота и CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	"damage-assessor/api/internal/assess"
	"damage-assessor/api/internal/cache"
	"damage-assessor/api/internal/config"
	"damage-assessor/api/internal/llm"
	"damage-assessor/api/internal/llm/deepseek"
	"damage-assessor/api/internal/llm/gemini"
	"damage-assessor/api/internal/llm/openai"
	"damage-assessor/api/internal/session"
	"damage-assessor/api/internal/store"
)

type Deps struct {
	Config   *config.Config
	Engines  *llm.Engines
	Store    store.Store
	Cache    *cache.Redis
	Service  *assess.Service
	Sessions *session.Registry
	Orch     *session.Orchestrator

	stopSweep context.CancelFunc
}

// BuildEngines создаёт движки, для которых задан ключ.
func BuildEngines(cfg *config.Config) *llm.Engines {
	opt := openai.ClientOptions{Retries: cfg.UpstreamRetries}
	var engs []llm.Engine
	if cfg.DeepseekAPIKey != "" {
		engs = append(engs, deepseek.New(cfg.DeepseekAPIKey, cfg.DeepseekModel, cfg.DeepseekURL, opt))
	}
	if cfg.OpenAIAPIKey != "" {
		engs = append(engs, openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, opt))
	}
	if cfg.GeminiAPIKey != "" {
		engs = append(engs, gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.UpstreamRetries))
	}
	return llm.NewEngines(cfg.DefaultEngine, engs...)
}

// OpenStore: Postgres по DATABASE_URL, иначе SQLite по SQLITE_PATH, иначе nil (история выключена).
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Printf("[INFO] db connected: %s", SafeDSNSummary(cfg.DatabaseURL))
		return pg, nil
	case cfg.SQLitePath != "":
		lite, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Printf("[INFO] sqlite store: %s", cfg.SQLitePath)
		return lite, nil
	}
	return nil, nil
}

// OpenCache возвращает nil, если REDIS_ADDR не задан.
func OpenCache(ctx context.Context, cfg *config.Config) (*cache.Redis, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	c := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	log.Printf("[INFO] redis cache: %s ttl=%s", cfg.RedisAddr, cfg.CacheTTL)
	return c, nil
}

// Wire проверяет конфигурацию и поднимает всё, что она описывает.
// Недоступный Redis не фатален: сервис работает без кэша.
func Wire(ctx context.Context, cfg *config.Config) (*Deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Deps{Config: cfg, Engines: BuildEngines(cfg), Sessions: session.NewRegistry()}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.Store = st

	opt := assess.Options{Store: st, CacheTTL: cfg.CacheTTL}
	if c, err := OpenCache(ctx, cfg); err != nil {
		log.Printf("[WARN] cache disabled: %v", err)
	} else if c != nil {
		d.Cache = c
		opt.Cache = c
	}

	d.Service = assess.New(d.Engines, opt)
	d.Orch = session.NewOrchestrator(d.Service, session.Options{Timeout: cfg.AnalyzeTimeout, MaxRPS: cfg.LLMMaxRPS})

	var sweepCtx context.Context
	sweepCtx, d.stopSweep = context.WithCancel(context.WithoutCancel(ctx))
	go d.Sessions.RunSweeper(sweepCtx, cfg.SessionIdleTTL)
	log.Printf("[INFO] engines: %s (default %s)", strings.Join(d.Engines.Names(), ", "), cfg.DefaultEngine)
	return d, nil
}

// Close останавливает анализы, дожидается записи истории и закрывает соединения.
func (d *Deps) Close() error {
	if d.stopSweep != nil {
		d.stopSweep()
	}
	if d.Orch != nil {
		d.Orch.Stop()
	}
	if d.Service != nil {
		d.Service.Wait()
	}
	var errs []error
	if d.Cache != nil {
		errs = append(errs, d.Cache.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}

func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
