package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisTurnRateLimiterAllow(t *testing.T) {
	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisTurnRateLimiter
		if !l.Allow("u1") {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})

	t.Run("clave vacia rechazada", func(t *testing.T) {
		l := &redisTurnRateLimiter{client: &mockRedisEvaler{result: 1}, window: time.Minute, max: 3, prefix: "turn:rl:"}
		if l.Allow("  ") {
			t.Fatalf("expected empty key to be rejected")
		}
	})

	t.Run("dentro del maximo", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 3}
		l := &redisTurnRateLimiter{client: mock, window: 2 * time.Minute, max: 3, prefix: "turn:rl:"}
		if !l.Allow(" User-1 ") {
			t.Fatalf("expected allow when count <= max")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "turn:rl:user-1" {
			t.Fatalf("unexpected key, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
			t.Fatalf("expected window seconds=120, got %+v", mock.lastArgs)
		}
		if mock.lastScript != redisTurnAllowScript {
			t.Fatalf("expected script to match")
		}
	})

	t.Run("excede el maximo", func(t *testing.T) {
		l := &redisTurnRateLimiter{client: &mockRedisEvaler{result: 4}, window: time.Minute, max: 3, prefix: "turn:rl:"}
		if l.Allow("u1") {
			t.Fatalf("expected deny when count > max")
		}
	})

	t.Run("error de redis fail-open", func(t *testing.T) {
		l := &redisTurnRateLimiter{client: &mockRedisEvaler{err: errors.New("down")}, window: time.Minute, max: 1, prefix: "turn:rl:"}
		if !l.Allow("u1") {
			t.Fatalf("expected fail-open on redis error")
		}
	})
}

func TestMemoryTurnRateLimiter(t *testing.T) {
	l := NewMemoryTurnRateLimiter(time.Hour, 2)
	if !l.Allow("u1") || !l.Allow("U1") {
		t.Fatalf("expected burst of 2 allowed")
	}
	if l.Allow("u1") {
		t.Fatalf("expected third turn denied")
	}
	if !l.Allow("u2") {
		t.Fatalf("keys must be independent")
	}
	if l.Allow("") {
		t.Fatalf("expected empty key rejected")
	}
}
