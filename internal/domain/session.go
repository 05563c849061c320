package domain

import "time"

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session es una practica en curso: un usuario, un escenario y sus personajes.
type Session struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	ScenarioID string        `json:"scenario_id"`
	PersonaIDs []string      `json:"persona_ids"`
	Status     SessionStatus `json:"status"`
	TurnCount  int           `json:"turn_count"`
	CreatedAt  time.Time     `json:"created_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
}

// HasPersona indica si el personaje forma parte de la sesion.
func (s Session) HasPersona(personaID string) bool {
	for _, p := range s.PersonaIDs {
		if p == personaID {
			return true
		}
	}
	return false
}

// PersonaMoodState es el MoodState persistido para un par (sesion, personaje).
type PersonaMoodState struct {
	SessionID string    `json:"session_id"`
	PersonaID string    `json:"persona_id"`
	State     MoodState `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}
