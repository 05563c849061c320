package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"persona-mood/internal/config"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

// Schema crea las tablas que usan los repositorios Pg si no existen.
const Schema = `
CREATE TABLE IF NOT EXISTS practice_sessions (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	scenario_id TEXT NOT NULL,
	persona_ids TEXT[] NOT NULL,
	status      TEXT NOT NULL,
	turn_count  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES practice_sessions(id) ON DELETE CASCADE,
	persona_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id, persona_id, created_at);

CREATE TABLE IF NOT EXISTS persona_mood_states (
	session_id       TEXT NOT NULL REFERENCES practice_sessions(id) ON DELETE CASCADE,
	persona_id       TEXT NOT NULL,
	current_mood     TEXT NOT NULL,
	intensity        DOUBLE PRECISION NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	trigger_keywords TEXT[] NOT NULL DEFAULT '{}',
	previous_mood    TEXT NOT NULL DEFAULT '',
	mood_history     TEXT[] NOT NULL DEFAULT '{}',
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, persona_id)
);
`

// Migrate aplica Schema. Es idempotente.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
