package domain

import "strings"

// Scenario es un ejercicio de practica con sus personajes y objetivos.
type Scenario struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	Description    string            `json:"description" yaml:"description"`
	Type           ScenarioType      `json:"scenario_type" yaml:"scenario_type"`
	PersonaIDs     []string          `json:"characters" yaml:"characters"`
	Objectives     []string          `json:"objectives" yaml:"objectives"`
	Context        string            `json:"context" yaml:"context"`
	Difficulty     string            `json:"difficulty" yaml:"difficulty"`
	CharacterRoles map[string]string `json:"character_roles,omitempty" yaml:"character_roles,omitempty"`
}

// RoleFor devuelve el rol del personaje dentro del escenario (puede ser vacio).
func (s Scenario) RoleFor(personaID string) string {
	if s.CharacterRoles == nil {
		return ""
	}
	return strings.TrimSpace(s.CharacterRoles[strings.ToLower(personaID)])
}

// Includes indica si el personaje participa del escenario.
func (s Scenario) Includes(personaID string) bool {
	id := strings.ToLower(strings.TrimSpace(personaID))
	for _, p := range s.PersonaIDs {
		if strings.ToLower(p) == id {
			return true
		}
	}
	return false
}

var conflictScenarioKeywords = []string{
	"harassment", "bullying", "abuse", "manipulation", "discrimination",
	"sabotage", "deadline", "unrealistic", "demanding", "confronting",
	"addiction", "denial", "ghosting", "cheating", "infidelity",
}

// IsConflictContext detecta escenarios de confrontacion a partir del texto de contexto.
func IsConflictContext(scenarioContext string) bool {
	l := strings.ToLower(scenarioContext)
	if strings.TrimSpace(l) == "" {
		return false
	}
	for _, k := range conflictScenarioKeywords {
		if strings.Contains(l, k) {
			return true
		}
	}
	return false
}
