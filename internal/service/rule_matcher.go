package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"persona-mood/internal/domain"
)

// RuleMatcher evalua tablas de reglas contra el estado y el mensaje del usuario.
// Es puro: sin estado, sin I/O.
type RuleMatcher struct{}

// DefaultRuleMatcher permite uso directo sin instanciar.
var DefaultRuleMatcher = RuleMatcher{}

// Applies indica si la regla se activa: mismo mood, intensidad >= umbral y
// algun trigger contenido en el mensaje (sin distinguir mayusculas ni acentos).
func (RuleMatcher) Applies(rule domain.BehaviorRule, state domain.MoodState, utterance string) bool {
	if rule.Mood != state.CurrentMood {
		return false
	}
	if state.Intensity < rule.IntensityThreshold {
		return false
	}
	msg := normalize(utterance)
	for _, k := range rule.TriggerKeywords {
		k = normalize(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

// MatchRules devuelve las reglas que aplican, en el orden de la tabla.
func (m RuleMatcher) MatchRules(rules []domain.BehaviorRule, state domain.MoodState, utterance string) []domain.BehaviorRule {
	out := make([]domain.BehaviorRule, 0)
	for _, r := range rules {
		if m.Applies(r, state, utterance) {
			out = append(out, r)
		}
	}
	return out
}

// Match concatena los behaviors de las reglas que aplican. Sin deduplicar.
// Nunca devuelve nil.
func (m RuleMatcher) Match(rules []domain.BehaviorRule, state domain.MoodState, utterance string) []string {
	out := make([]string, 0)
	for _, r := range m.MatchRules(rules, state, utterance) {
		out = append(out, r.Behaviors...)
	}
	return out
}

// MatchedKeywords lista los triggers de la regla presentes en el mensaje.
func (RuleMatcher) MatchedKeywords(rule domain.BehaviorRule, utterance string) []string {
	msg := normalize(utterance)
	var out []string
	for _, k := range rule.TriggerKeywords {
		nk := normalize(strings.TrimSpace(k))
		if nk != "" && strings.Contains(msg, nk) {
			out = append(out, k)
		}
	}
	return out
}

var positiveMoods = map[domain.MoodLabel]struct{}{
	domain.MoodPleased:    {},
	domain.MoodEncouraged: {},
	domain.MoodImpressed:  {},
	domain.MoodRespectful: {},
}

var specialMoods = map[domain.MoodLabel]struct{}{
	domain.MoodManipulative: {},
	domain.MoodCalculating:  {},
}

// MoodPolarity convierte el mood en una etiqueta de sentimiento.
func (RuleMatcher) MoodPolarity(mood domain.MoodLabel) string {
	if mood == domain.MoodNeutral || mood == "" {
		return "Neutral"
	}
	if _, ok := positiveMoods[mood]; ok {
		return "Positive"
	}
	if _, ok := specialMoods[mood]; ok {
		return "Strategic"
	}
	return "Negative"
}

// normalize pasa a minusculas y descompone (NFD) para descartar acentos.
func normalize(s string) string {
	s = norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func containsAny(s string, list []string) bool {
	for _, x := range list {
		if strings.Contains(s, x) {
			return true
		}
	}
	return false
}
