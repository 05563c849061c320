package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"persona-mood/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, id string) (domain.Session, error)
	Update(ctx context.Context, session domain.Session) error
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

func (r *PgSessionRepository) Create(ctx context.Context, session domain.Session) error {
	const query = `
		INSERT INTO practice_sessions (id, user_id, scenario_id, persona_ids, status, turn_count, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.ScenarioID,
		session.PersonaIDs,
		string(session.Status),
		session.TurnCount,
		session.CreatedAt,
		session.EndedAt,
	)
	return err
}

func (r *PgSessionRepository) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `
		SELECT id, user_id, scenario_id, persona_ids, status, turn_count, created_at, ended_at
		FROM practice_sessions
		WHERE id = $1
	`
	var session domain.Session
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.ScenarioID,
		&session.PersonaIDs,
		&status,
		&session.TurnCount,
		&session.CreatedAt,
		&session.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	session.Status = domain.SessionStatus(status)
	return session, err
}

func (r *PgSessionRepository) Update(ctx context.Context, session domain.Session) error {
	const query = `
		UPDATE practice_sessions
		SET status = $2, turn_count = $3, ended_at = $4
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		session.ID,
		string(session.Status),
		session.TurnCount,
		session.EndedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// MemorySessionRepository se usa cuando no hay DATABASE_URL.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]domain.Session)}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return cloneSession(s), nil
}

func (r *MemorySessionRepository) Update(ctx context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func cloneSession(s domain.Session) domain.Session {
	s.PersonaIDs = append([]string(nil), s.PersonaIDs...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	return s
}
