package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// TurnRateLimiter limita turnos por usuario.
type TurnRateLimiter interface {
	Allow(key string) bool
}

const redisTurnAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisTurnRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int64
	prefix string
}

func NewRedisTurnRateLimiter(client *redis.Client, window time.Duration, max int64) TurnRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisTurnRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "turn:rl:",
	}
}

// Allow es fail-open: si Redis falla, el turno pasa.
func (l *redisTurnRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisTurnAllowScript, []string{l.prefix + normalizedKey}, seconds).Int64()
	if err != nil {
		return true
	}
	return count <= l.max
}

// memoryTurnRateLimiter es un token bucket por clave; se usa sin Redis.
type memoryTurnRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewMemoryTurnRateLimiter(window time.Duration, max int64) TurnRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &memoryTurnRateLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    int(max),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *memoryTurnRateLimiter) Allow(key string) bool {
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	l.mu.Lock()
	lim, ok := l.limiters[normalizedKey]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[normalizedKey] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
