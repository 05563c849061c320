package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"persona-mood/internal/domain"
	"persona-mood/internal/repository"
)

type fakeRedisKV struct {
	data    map[string]string
	lastTTL time.Duration
	lastDel []string
	err     error
}

func newFakeRedisKV() *fakeRedisKV {
	return &fakeRedisKV{data: make(map[string]string)}
}

func (f *fakeRedisKV) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedisKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.lastTTL = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedisKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.lastDel = keys
	for _, k := range keys {
		delete(f.data, k)
	}
	cmd.SetVal(int64(len(keys)))
	return cmd
}

// fakeMoodRepo implementa repository.MoodStateRepository en memoria.
type fakeMoodRepo struct {
	rows    map[string]domain.PersonaMoodState
	saveErr error
}

func (f *fakeMoodRepo) Get(_ context.Context, sessionID, personaID string) (domain.PersonaMoodState, error) {
	row, ok := f.rows[sessionID+"/"+personaID]
	if !ok {
		return domain.PersonaMoodState{}, repository.ErrNotFound
	}
	return row, nil
}

func (f *fakeMoodRepo) Save(_ context.Context, st domain.PersonaMoodState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.rows == nil {
		f.rows = make(map[string]domain.PersonaMoodState)
	}
	f.rows[st.SessionID+"/"+st.PersonaID] = st
	return nil
}

func (f *fakeMoodRepo) DeleteBySession(_ context.Context, sessionID string) error {
	for k, v := range f.rows {
		if v.SessionID == sessionID {
			delete(f.rows, k)
		}
	}
	return nil
}

func sampleMoodState() domain.MoodState {
	return domain.MoodState{
		CurrentMood:     domain.MoodAngry,
		Intensity:       0.8,
		Reason:          "missed deadline",
		TriggerKeywords: []string{"impossible"},
		PreviousMood:    domain.MoodFrustrated,
		History:         []domain.MoodLabel{domain.MoodFrustrated},
	}
}

func TestMemoryMoodStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMoodStateStore(50 * time.Millisecond)

	if _, found, err := store.Get(ctx, "s1", "marcus"); err != nil || found {
		t.Fatalf("expected empty store, got found=%v err=%v", found, err)
	}

	st := sampleMoodState()
	if err := store.Set(ctx, "s1", "Marcus", st); err != nil {
		t.Fatalf("set: %v", err)
	}
	st.History[0] = domain.MoodHostile

	got, found, err := store.Get(ctx, "s1", "marcus")
	if err != nil || !found {
		t.Fatalf("expected state, got found=%v err=%v", found, err)
	}
	if got.History[0] != domain.MoodFrustrated {
		t.Fatalf("store must keep its own copy, got %v", got.History)
	}

	time.Sleep(70 * time.Millisecond)
	if _, found, _ := store.Get(ctx, "s1", "marcus"); found {
		t.Fatalf("expected state expired")
	}

	_ = store.Set(ctx, "s2", "sarah", st)
	_ = store.DeleteSession(ctx, "s2", []string{"sarah"})
	if _, found, _ := store.Get(ctx, "s2", "sarah"); found {
		t.Fatalf("expected state deleted")
	}
}

func TestRedisMoodStateStore(t *testing.T) {
	ctx := context.Background()
	kv := newFakeRedisKV()
	store := newRedisMoodStateStore(kv, time.Hour)

	if _, found, err := store.Get(ctx, "s1", "marcus"); err != nil || found {
		t.Fatalf("redis.Nil must map to not found, got found=%v err=%v", found, err)
	}
	if err := store.Set(ctx, "s1", "marcus", sampleMoodState()); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := kv.data["mood:state:s1:marcus"]; !ok {
		t.Fatalf("unexpected keys %v", kv.data)
	}
	if kv.lastTTL != time.Hour {
		t.Fatalf("expected ttl 1h, got %s", kv.lastTTL)
	}

	got, found, err := store.Get(ctx, "s1", "MARCUS")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.CurrentMood != domain.MoodAngry || got.PreviousMood != domain.MoodFrustrated || got.Intensity != 0.8 {
		t.Fatalf("unexpected state %+v", got)
	}

	if err := store.DeleteSession(ctx, "s1", []string{"marcus", "sarah"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(kv.lastDel) != 2 {
		t.Fatalf("expected two keys deleted, got %v", kv.lastDel)
	}

	kv.err = errors.New("conn refused")
	if _, _, err := store.Get(ctx, "s1", "marcus"); err == nil {
		t.Fatalf("expected redis error")
	}
}

func TestLayeredMoodStateStore(t *testing.T) {
	ctx := context.Background()

	t.Run("lee del durable y llena el cache", func(t *testing.T) {
		cache := NewMemoryMoodStateStore(0)
		repo := &fakeMoodRepo{}
		durable := NewRepositoryMoodStateStore(repo)
		_ = durable.Set(ctx, "s1", "marcus", sampleMoodState())

		store := NewLayeredMoodStateStore(cache, durable, nil)
		got, found, err := store.Get(ctx, "s1", "marcus")
		if err != nil || !found || got.CurrentMood != domain.MoodAngry {
			t.Fatalf("expected durable hit, got %+v found=%v err=%v", got, found, err)
		}
		if _, found, _ := cache.Get(ctx, "s1", "marcus"); !found {
			t.Fatalf("expected cache filled")
		}
	})

	t.Run("cache caido no rompe", func(t *testing.T) {
		kv := newFakeRedisKV()
		kv.err = errors.New("down")
		repo := &fakeMoodRepo{}
		store := NewLayeredMoodStateStore(newRedisMoodStateStore(kv, 0), NewRepositoryMoodStateStore(repo), nil)

		if err := store.Set(ctx, "s1", "sarah", sampleMoodState()); err != nil {
			t.Fatalf("cache failure must not fail Set: %v", err)
		}
		if _, found, err := store.Get(ctx, "s1", "sarah"); err != nil || !found {
			t.Fatalf("expected durable read, found=%v err=%v", found, err)
		}
	})

	t.Run("error del durable se propaga", func(t *testing.T) {
		repo := &fakeMoodRepo{saveErr: errors.New("db down")}
		store := NewLayeredMoodStateStore(NewMemoryMoodStateStore(0), NewRepositoryMoodStateStore(repo), nil)
		if err := store.Set(ctx, "s1", "kai", sampleMoodState()); err == nil {
			t.Fatalf("expected durable error")
		}
	})

	t.Run("sin capas usa memoria", func(t *testing.T) {
		store := NewLayeredMoodStateStore(nil, nil, nil)
		if err := store.Set(ctx, "s1", "kai", sampleMoodState()); err != nil {
			t.Fatalf("set: %v", err)
		}
		if _, found, _ := store.Get(ctx, "s1", "kai"); !found {
			t.Fatalf("expected memory fallback")
		}
	})
}
