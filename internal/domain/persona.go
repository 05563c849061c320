package domain

import "strings"

type ScenarioType string

const (
	ScenarioWorkplace ScenarioType = "workplace"
	ScenarioDating    ScenarioType = "dating"
	ScenarioFamily    ScenarioType = "family"
)

// BehaviorRule: SI el mood coincide, la intensidad alcanza el umbral y aparece
// algun trigger en el mensaje, ENTONCES se agregan Behaviors a las directivas.
type BehaviorRule struct {
	Mood               MoodLabel `json:"mood" yaml:"mood"`
	TriggerKeywords    []string  `json:"trigger_keywords" yaml:"trigger_keywords"`
	Behaviors          []string  `json:"behaviors" yaml:"behaviors"`
	IntensityThreshold float64   `json:"intensity_threshold" yaml:"intensity_threshold"`
}

// PersonaProfile es contenido de solo lectura compartido por todas las sesiones.
type PersonaProfile struct {
	ID                 string         `json:"id" yaml:"id"`
	Name               string         `json:"name" yaml:"name"`
	Biography          string         `json:"biography" yaml:"biography"`
	Traits             []string       `json:"personality_traits" yaml:"personality_traits"`
	CommunicationStyle string         `json:"communication_style" yaml:"communication_style"`
	Reference          string         `json:"reference,omitempty" yaml:"reference,omitempty"`
	ScenarioAffinity   []ScenarioType `json:"scenario_affinity,omitempty" yaml:"scenario_affinity,omitempty"`
	DefaultMood        MoodLabel      `json:"default_mood,omitempty" yaml:"default_mood,omitempty"`
	Rules              []BehaviorRule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

var aggressiveTraits = []string{
	"aggressive", "intimidating", "demanding", "confrontational", "bullying", "manipulative",
}

// IsNaturallyAggressive detecta rasgos agresivos declarados en el perfil.
func (p PersonaProfile) IsNaturallyAggressive() bool {
	for _, t := range p.Traits {
		tl := strings.ToLower(strings.TrimSpace(t))
		for _, a := range aggressiveTraits {
			if tl == a {
				return true
			}
		}
	}
	return false
}

// HasAffinity indica si el personaje esta pensado para ese tipo de escenario.
func (p PersonaProfile) HasAffinity(t ScenarioType) bool {
	for _, a := range p.ScenarioAffinity {
		if a == t {
			return true
		}
	}
	return false
}
