package domain

import (
	"math"
	"strings"
)

// MoodLabel es la categoria emocional de un personaje. El conjunto es cerrado.
type MoodLabel string

const (
	// Positivos
	MoodNeutral    MoodLabel = "neutral"
	MoodPleased    MoodLabel = "pleased"
	MoodEncouraged MoodLabel = "encouraged"
	MoodImpressed  MoodLabel = "impressed"
	MoodRespectful MoodLabel = "respectful"

	// Negativos - baja intensidad
	MoodSkeptical MoodLabel = "skeptical"
	MoodImpatient MoodLabel = "impatient"
	MoodAnnoyed   MoodLabel = "annoyed"

	// Negativos - intensidad media
	MoodFrustrated   MoodLabel = "frustrated"
	MoodDisappointed MoodLabel = "disappointed"
	MoodDismissive   MoodLabel = "dismissive"
	MoodDefensive    MoodLabel = "defensive"

	// Negativos - intensidad alta
	MoodAngry        MoodLabel = "angry"
	MoodHostile      MoodLabel = "hostile"
	MoodContemptuous MoodLabel = "contemptuous"

	// Estados especiales
	MoodManipulative MoodLabel = "manipulative"
	MoodCalculating  MoodLabel = "calculating"
)

var allMoodLabels = []MoodLabel{
	MoodNeutral, MoodPleased, MoodEncouraged, MoodImpressed, MoodRespectful,
	MoodSkeptical, MoodImpatient, MoodAnnoyed,
	MoodFrustrated, MoodDisappointed, MoodDismissive, MoodDefensive,
	MoodAngry, MoodHostile, MoodContemptuous,
	MoodManipulative, MoodCalculating,
}

var moodLabelSet = func() map[MoodLabel]struct{} {
	m := make(map[MoodLabel]struct{}, len(allMoodLabels))
	for _, l := range allMoodLabels {
		m[l] = struct{}{}
	}
	return m
}()

// AllMoodLabels devuelve una copia de todas las variantes en orden canonico.
func AllMoodLabels() []MoodLabel {
	out := make([]MoodLabel, len(allMoodLabels))
	copy(out, allMoodLabels)
	return out
}

// IsValid indica si la etiqueta pertenece al conjunto cerrado.
func (m MoodLabel) IsValid() bool {
	_, ok := moodLabelSet[m]
	return ok
}

func (m MoodLabel) String() string { return string(m) }

// ParseMoodLabel normaliza mayusculas, espacios y guiones ("Very-Angry" no existe, "ANGRY " si).
func ParseMoodLabel(s string) (MoodLabel, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.Trim(norm, `"'.,!`)
	norm = strings.ReplaceAll(norm, "-", "_")
	norm = strings.ReplaceAll(norm, " ", "_")
	l := MoodLabel(norm)
	if !l.IsValid() {
		return "", false
	}
	return l, true
}

// MoodHistoryLimit es la cantidad de moods previos que se conservan.
const MoodHistoryLimit = 5

// MoodState es el estado emocional de un personaje dentro de una sesion.
// Invariante: Intensity en [0,1] y CurrentMood valido.
type MoodState struct {
	CurrentMood     MoodLabel   `json:"current_mood"`
	Intensity       float64     `json:"intensity"`
	Reason          string      `json:"reason"`
	TriggerKeywords []string    `json:"trigger_keywords"`
	PreviousMood    MoodLabel   `json:"previous_mood,omitempty"`
	History         []MoodLabel `json:"mood_history"`
}

// Transition devuelve el estado siguiente a partir de un veredicto ya saneado.
// El receptor no se modifica; el historial se recorta a limit entradas.
func (s MoodState) Transition(v InferenceVerdict, limit int) MoodState {
	if limit <= 0 {
		limit = MoodHistoryLimit
	}
	history := make([]MoodLabel, 0, len(s.History)+1)
	history = append(history, s.History...)
	history = append(history, s.CurrentMood)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	triggers := make([]string, len(v.TriggerKeywords))
	copy(triggers, v.TriggerKeywords)

	return MoodState{
		CurrentMood:     v.Mood,
		Intensity:       ClampIntensity(v.Intensity),
		Reason:          v.Reason,
		TriggerKeywords: triggers,
		PreviousMood:    s.CurrentMood,
		History:         history,
	}
}

// Changed indica si el mood cambio respecto al turno anterior.
func (s MoodState) Changed() bool {
	return s.PreviousMood != "" && s.PreviousMood != s.CurrentMood
}

// ClampIntensity acota la intensidad a [0,1]. NaN se trata como 0.
func ClampIntensity(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Trajectory es la direccion del cambio emocional reportada por la inferencia.
type Trajectory string

const (
	TrajectoryEscalating   Trajectory = "escalating"
	TrajectoryDeescalating Trajectory = "de-escalating"
	TrajectoryConsistent   Trajectory = "consistent"
)

// ParseTrajectory tolera variantes como "de_escalating" o "deescalating".
func ParseTrajectory(s string) Trajectory {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "", " ", "").Replace(norm)
	switch norm {
	case "escalating", "escalate", "escalation":
		return TrajectoryEscalating
	case "deescalating", "deescalate", "deescalation":
		return TrajectoryDeescalating
	case "consistent", "stable", "steady":
		return TrajectoryConsistent
	default:
		return ""
	}
}

// InferenceVerdict es el resultado transitorio de una llamada de inferencia.
type InferenceVerdict struct {
	Mood            MoodLabel  `json:"mood"`
	Intensity       float64    `json:"intensity"`
	Reason          string     `json:"reason"`
	TriggerKeywords []string   `json:"trigger_keywords"`
	Trajectory      Trajectory `json:"trajectory,omitempty"`
}
