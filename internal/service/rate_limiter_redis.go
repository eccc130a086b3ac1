package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// slidingWindowScript guarda cada intento como miembro de un sorted set con su
// instante en ms; los que quedaron fuera de la ventana se descartan antes de contar.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) >= limit then
  return 0
end
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
return 1
`

type redisLimiterClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisRateLimiter comparte la ventana deslizante entre réplicas.
// Si Redis no responde deja pasar el intento.
type redisRateLimiter struct {
	logger *zap.Logger
	client redisLimiterClient
	window time.Duration
	max    int
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(logger *zap.Logger, client *redis.Client, prefix string, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	return newRedisRateLimiter(logger, client, prefix, window, max)
}

func newRedisRateLimiter(logger *zap.Logger, client redisLimiterClient, prefix string, window time.Duration, max int) *redisRateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRateLimiter{
		logger: logger,
		client: client,
		window: window,
		max:    max,
		prefix: prefix,
		now:    time.Now,
	}
}

func (l *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	allowed, err := l.client.Eval(ctx, slidingWindowScript, []string{l.prefix + key},
		l.now().UnixMilli(), l.window.Milliseconds(), l.max, uuid.NewString(),
	).Int()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing attempt", zap.String("key", l.prefix+key), zap.Error(err))
		return true
	}
	return allowed == 1
}

func (l *redisRateLimiter) Reset(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		l.logger.Warn("rate limiter reset failed", zap.String("key", l.prefix+key), zap.Error(err))
	}
}
