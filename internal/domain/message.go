package domain

import "time"

const (
	RoleUser    = "user"
	RolePersona = "persona"
)

type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	PersonaID string    `json:"persona_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryTurn es un turno ya formateado para el prompt de inferencia.
type HistoryTurn struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}
