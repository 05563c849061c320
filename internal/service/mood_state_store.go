package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"persona-mood/internal/domain"
	"persona-mood/internal/repository"
)

// MoodStateStore guarda el MoodState vigente por (sesion, personaje).
// Get devuelve found=false cuando no hay estado, sin error.
type MoodStateStore interface {
	Get(ctx context.Context, sessionID, personaID string) (domain.MoodState, bool, error)
	Set(ctx context.Context, sessionID, personaID string, state domain.MoodState) error
	DeleteSession(ctx context.Context, sessionID string, personaIDs []string) error
}

func moodStateKey(sessionID, personaID string) string {
	return strings.TrimSpace(sessionID) + ":" + strings.ToLower(strings.TrimSpace(personaID))
}

type memoryMoodEntry struct {
	state   domain.MoodState
	expires time.Time
}

type memoryMoodStateStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryMoodEntry
}

// NewMemoryMoodStateStore crea un store en memoria. ttl <= 0 no expira.
func NewMemoryMoodStateStore(ttl time.Duration) MoodStateStore {
	return &memoryMoodStateStore{
		ttl:   ttl,
		items: make(map[string]memoryMoodEntry),
	}
}

func (s *memoryMoodStateStore) Get(_ context.Context, sessionID, personaID string) (domain.MoodState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := moodStateKey(sessionID, personaID)
	entry, ok := s.items[key]
	if !ok {
		return domain.MoodState{}, false, nil
	}
	if !entry.expires.IsZero() && time.Now().UTC().After(entry.expires) {
		delete(s.items, key)
		return domain.MoodState{}, false, nil
	}
	return cloneMoodState(entry.state), true, nil
}

func (s *memoryMoodStateStore) Set(_ context.Context, sessionID, personaID string, state domain.MoodState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryMoodEntry{state: cloneMoodState(state)}
	if s.ttl > 0 {
		entry.expires = time.Now().UTC().Add(s.ttl)
	}
	s.items[moodStateKey(sessionID, personaID)] = entry
	return nil
}

func (s *memoryMoodStateStore) DeleteSession(_ context.Context, sessionID string, personaIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range personaIDs {
		delete(s.items, moodStateKey(sessionID, p))
	}
	return nil
}

// redisKV es el subconjunto de *redis.Client que usa el store.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisMoodStateStore struct {
	client  redisKV
	ttl     time.Duration
	prefix  string
	timeout time.Duration
}

func NewRedisMoodStateStore(client *redis.Client, ttl time.Duration) MoodStateStore {
	if client == nil {
		return nil
	}
	return newRedisMoodStateStore(client, ttl)
}

func newRedisMoodStateStore(client redisKV, ttl time.Duration) *redisMoodStateStore {
	return &redisMoodStateStore{
		client:  client,
		ttl:     ttl,
		prefix:  "mood:state:",
		timeout: 500 * time.Millisecond,
	}
}

func (s *redisMoodStateStore) Get(ctx context.Context, sessionID, personaID string) (domain.MoodState, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.prefix+moodStateKey(sessionID, personaID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MoodState{}, false, nil
	}
	if err != nil {
		return domain.MoodState{}, false, err
	}
	var state domain.MoodState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.MoodState{}, false, err
	}
	return state, true, nil
}

func (s *redisMoodStateStore) Set(ctx context.Context, sessionID, personaID string, state domain.MoodState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+moodStateKey(sessionID, personaID), payload, s.ttl).Err()
}

func (s *redisMoodStateStore) DeleteSession(ctx context.Context, sessionID string, personaIDs []string) error {
	if len(personaIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(personaIDs))
	for _, p := range personaIDs {
		keys = append(keys, s.prefix+moodStateKey(sessionID, p))
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Del(ctx, keys...).Err()
}

// repositoryMoodStateStore adapta un MoodStateRepository (Postgres) al store.
type repositoryMoodStateStore struct {
	repo repository.MoodStateRepository
}

func NewRepositoryMoodStateStore(repo repository.MoodStateRepository) MoodStateStore {
	if repo == nil {
		return nil
	}
	return &repositoryMoodStateStore{repo: repo}
}

func (s *repositoryMoodStateStore) Get(ctx context.Context, sessionID, personaID string) (domain.MoodState, bool, error) {
	row, err := s.repo.Get(ctx, sessionID, strings.ToLower(strings.TrimSpace(personaID)))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.MoodState{}, false, nil
	}
	if err != nil {
		return domain.MoodState{}, false, err
	}
	return row.State, true, nil
}

func (s *repositoryMoodStateStore) Set(ctx context.Context, sessionID, personaID string, state domain.MoodState) error {
	return s.repo.Save(ctx, domain.PersonaMoodState{
		SessionID: sessionID,
		PersonaID: strings.ToLower(strings.TrimSpace(personaID)),
		State:     state,
		UpdatedAt: time.Now().UTC(),
	})
}

func (s *repositoryMoodStateStore) DeleteSession(ctx context.Context, sessionID string, _ []string) error {
	return s.repo.DeleteBySession(ctx, sessionID)
}

// LayeredMoodStateStore lee primero del cache y despues del durable.
// Escribe en el durable y luego en el cache; un error de cache solo se loguea.
type LayeredMoodStateStore struct {
	cache   MoodStateStore
	durable MoodStateStore
	logger  *zap.Logger
}

func NewLayeredMoodStateStore(cache, durable MoodStateStore, logger *zap.Logger) MoodStateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case cache == nil && durable == nil:
		return NewMemoryMoodStateStore(0)
	case cache == nil:
		return durable
	case durable == nil:
		return cache
	}
	return &LayeredMoodStateStore{cache: cache, durable: durable, logger: logger}
}

func (s *LayeredMoodStateStore) Get(ctx context.Context, sessionID, personaID string) (domain.MoodState, bool, error) {
	state, found, err := s.cache.Get(ctx, sessionID, personaID)
	if err != nil {
		s.logger.Warn("mood cache get failed", zap.String("session_id", sessionID), zap.String("persona_id", personaID), zap.Error(err))
	}
	if err == nil && found {
		return state, true, nil
	}

	state, found, err = s.durable.Get(ctx, sessionID, personaID)
	if err != nil || !found {
		return state, found, err
	}
	if cerr := s.cache.Set(ctx, sessionID, personaID, state); cerr != nil {
		s.logger.Warn("mood cache fill failed", zap.String("session_id", sessionID), zap.Error(cerr))
	}
	return state, true, nil
}

func (s *LayeredMoodStateStore) Set(ctx context.Context, sessionID, personaID string, state domain.MoodState) error {
	if err := s.durable.Set(ctx, sessionID, personaID, state); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, sessionID, personaID, state); err != nil {
		s.logger.Warn("mood cache set failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

func (s *LayeredMoodStateStore) DeleteSession(ctx context.Context, sessionID string, personaIDs []string) error {
	if err := s.cache.DeleteSession(ctx, sessionID, personaIDs); err != nil {
		s.logger.Warn("mood cache delete failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	return s.durable.DeleteSession(ctx, sessionID, personaIDs)
}

func cloneMoodState(s domain.MoodState) domain.MoodState {
	s.TriggerKeywords = append([]string{}, s.TriggerKeywords...)
	s.History = append([]domain.MoodLabel{}, s.History...)
	return s
}
