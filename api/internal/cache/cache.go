package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"damage-assessor/api/internal/damage"
)

const keyPrefix = "damage:analysis:v1:"

// Key: ключ результата по хэшу снимка, движку и модели.
func Key(imageHash, engine, model string) string {
	return keyPrefix + strings.Join([]string{imageHash, engine, model}, "|")
}

// Redis кэширует ответы модели, чтобы повторная загрузка того же снимка не стоила запроса.
type Redis struct {
	Rdb *redis.Client
	TTL time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Redis {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Redis{Rdb: rdb, TTL: ttl}
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.Rdb.Ping(ctx).Err()
}

// Get возвращает (результат, найден, ошибка). Промах: не ошибка.
func (c *Redis) Get(ctx context.Context, key string) (damage.AnalysisResult, bool, error) {
	s, err := c.Rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return damage.AnalysisResult{}, false, nil
	}
	if err != nil {
		return damage.AnalysisResult{}, false, err
	}
	var res damage.AnalysisResult
	if err := json.Unmarshal([]byte(s), &res); err != nil {
		// битая запись: считаем промахом
		return damage.AnalysisResult{}, false, nil
	}
	if res.Damages == nil {
		res.Damages = []damage.Damage{}
	}
	return res, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, res damage.AnalysisResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.Rdb.Set(ctx, key, b, c.TTL).Err()
}

func (c *Redis) Close() error { return c.Rdb.Close() }
