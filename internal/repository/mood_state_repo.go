package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"persona-mood/internal/domain"
)

// MoodStateRepository guarda el ultimo MoodState de cada personaje por sesion.
type MoodStateRepository interface {
	Get(ctx context.Context, sessionID, personaID string) (domain.PersonaMoodState, error)
	Save(ctx context.Context, state domain.PersonaMoodState) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

type PgMoodStateRepository struct {
	pool *pgxpool.Pool
}

func NewPgMoodStateRepository(pool *pgxpool.Pool) *PgMoodStateRepository {
	return &PgMoodStateRepository{pool: pool}
}

func (r *PgMoodStateRepository) Get(ctx context.Context, sessionID, personaID string) (domain.PersonaMoodState, error) {
	const query = `
		SELECT session_id, persona_id, current_mood, intensity, reason, trigger_keywords, previous_mood, mood_history, updated_at
		FROM persona_mood_states
		WHERE session_id = $1 AND persona_id = $2
	`
	var (
		out      domain.PersonaMoodState
		current  string
		previous string
		history  []string
	)
	err := r.pool.QueryRow(ctx, query, sessionID, personaID).Scan(
		&out.SessionID,
		&out.PersonaID,
		&current,
		&out.State.Intensity,
		&out.State.Reason,
		&out.State.TriggerKeywords,
		&previous,
		&history,
		&out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PersonaMoodState{}, fmt.Errorf("mood state %s/%s: %w", sessionID, personaID, ErrNotFound)
	}
	if err != nil {
		return domain.PersonaMoodState{}, err
	}

	out.State.CurrentMood = domain.MoodLabel(current)
	out.State.PreviousMood = domain.MoodLabel(previous)
	out.State.History = make([]domain.MoodLabel, 0, len(history))
	for _, h := range history {
		out.State.History = append(out.State.History, domain.MoodLabel(h))
	}
	if out.State.TriggerKeywords == nil {
		out.State.TriggerKeywords = []string{}
	}
	return out, nil
}

func (r *PgMoodStateRepository) Save(ctx context.Context, state domain.PersonaMoodState) error {
	const query = `
		INSERT INTO persona_mood_states (
			session_id, persona_id, current_mood, intensity, reason, trigger_keywords, previous_mood, mood_history, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, persona_id) DO UPDATE SET
			current_mood = EXCLUDED.current_mood,
			intensity = EXCLUDED.intensity,
			reason = EXCLUDED.reason,
			trigger_keywords = EXCLUDED.trigger_keywords,
			previous_mood = EXCLUDED.previous_mood,
			mood_history = EXCLUDED.mood_history,
			updated_at = EXCLUDED.updated_at
	`
	triggers := state.State.TriggerKeywords
	if triggers == nil {
		triggers = []string{}
	}
	history := make([]string, 0, len(state.State.History))
	for _, h := range state.State.History {
		history = append(history, string(h))
	}

	_, err := r.pool.Exec(ctx, query,
		state.SessionID,
		state.PersonaID,
		string(state.State.CurrentMood),
		state.State.Intensity,
		state.State.Reason,
		triggers,
		string(state.State.PreviousMood),
		history,
		state.UpdatedAt,
	)
	return err
}

func (r *PgMoodStateRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM persona_mood_states WHERE session_id = $1`
	_, err := r.pool.Exec(ctx, query, sessionID)
	return err
}
