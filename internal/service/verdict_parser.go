package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"persona-mood/internal/domain"
)

// ErrParseFailure indica que ninguna estrategia pudo recuperar un veredicto.
var ErrParseFailure = errors.New("verdict parse failure")

// Nombres de estrategia, en el orden en que se prueban.
const (
	StrategyBrace    = "brace"
	StrategyFlat     = "flat"
	StrategyDocument = "document"
	StrategyFields   = "fields"
)

const defaultVerdictIntensity = 0.5

// VerdictParser recupera un InferenceVerdict desde texto libre del modelo.
// No valida la etiqueta de mood; eso lo hace el motor de inferencia.
type VerdictParser struct {
	Logger *zap.Logger
}

// DefaultVerdictParser permite uso directo sin instanciar.
var DefaultVerdictParser = VerdictParser{}

type parseStrategy struct {
	name string
	fn   func(raw, cleaned string) (domain.InferenceVerdict, bool)
}

var verdictStrategies = []parseStrategy{
	{name: StrategyBrace, fn: parseBraceObject},
	{name: StrategyFlat, fn: parseFlatObjects},
	{name: StrategyDocument, fn: parseWholeDocument},
	{name: StrategyFields, fn: parseProseFields},
}

// Parse aplica las estrategias en orden y corta en el primer exito.
func (p VerdictParser) Parse(raw string) (domain.InferenceVerdict, error) {
	v, _, err := p.ParseWithStrategy(raw)
	return v, err
}

// ParseWithStrategy es Parse pero informa que estrategia tuvo exito.
func (p VerdictParser) ParseWithStrategy(raw string) (domain.InferenceVerdict, string, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if strings.TrimSpace(raw) == "" {
		return domain.InferenceVerdict{}, "", fmt.Errorf("%w: empty response", ErrParseFailure)
	}

	cleaned := cleanLLMJSONResponse(raw)
	for _, s := range verdictStrategies {
		v, ok := s.fn(raw, cleaned)
		logger.Debug("verdict parse attempt", zap.String("strategy", s.name), zap.Bool("ok", ok))
		if ok {
			return v, s.name, nil
		}
	}
	return domain.InferenceVerdict{}, "", fmt.Errorf("%w: no strategy matched", ErrParseFailure)
}

func parseBraceObject(raw, cleaned string) (domain.InferenceVerdict, bool) {
	obj := extractFirstJSONObject(cleaned)
	if obj == "" {
		obj = extractFirstJSONObject(raw)
	}
	if obj == "" {
		return domain.InferenceVerdict{}, false
	}
	return decodeJSONVerdict(obj)
}

func parseFlatObjects(raw, cleaned string) (domain.InferenceVerdict, bool) {
	for _, obj := range extractFlatJSONObjects(raw) {
		if v, ok := decodeJSONVerdict(obj); ok {
			return v, true
		}
	}
	if wrapped := wrapBareJSONPairs(cleaned); wrapped != "" {
		return decodeJSONVerdict(wrapped)
	}
	return domain.InferenceVerdict{}, false
}

// parseWholeDocument usa YAML, que acepta tanto JSON como `mood: angry`.
func parseWholeDocument(_, cleaned string) (domain.InferenceVerdict, bool) {
	if cleaned == "" {
		return domain.InferenceVerdict{}, false
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(cleaned), &m); err != nil || len(m) == 0 {
		return domain.InferenceVerdict{}, false
	}
	return verdictFromMap(m)
}

func decodeJSONVerdict(candidate string) (domain.InferenceVerdict, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(candidate), &m); err != nil {
		return domain.InferenceVerdict{}, false
	}
	return verdictFromMap(m)
}

var (
	moodKeys       = []string{"mood", "emotion", "current_mood", "new_mood"}
	intensityKeys  = []string{"intensity", "mood_intensity", "level"}
	reasonKeys     = []string{"reason", "rationale", "cause", "why", "explanation"}
	triggerKeys    = []string{"trigger_keywords", "triggers", "keywords", "trigger_words", "trigger"}
	trajectoryKeys = []string{"trajectory", "emotional_trajectory", "direction"}
)

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, "-", "_")
	return strings.ReplaceAll(k, " ", "_")
}

func lookupKey(m map[string]any, aliases []string) (any, bool) {
	normalized := make(map[string]any, len(m))
	for k, v := range m {
		normalized[normalizeKey(k)] = v
	}
	for _, a := range aliases {
		if v, ok := normalized[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// verdictFromMap exige un mood no vacio; el resto es opcional.
func verdictFromMap(m map[string]any) (domain.InferenceVerdict, bool) {
	rawMood, ok := lookupKey(m, moodKeys)
	if !ok {
		return domain.InferenceVerdict{}, false
	}
	mood := strings.ToLower(strings.TrimSpace(fmt.Sprint(rawMood)))
	if mood == "" {
		return domain.InferenceVerdict{}, false
	}
	if l, ok := domain.ParseMoodLabel(mood); ok {
		mood = string(l)
	}

	v := domain.InferenceVerdict{
		Mood:      domain.MoodLabel(mood),
		Intensity: defaultVerdictIntensity,
	}

	if raw, ok := lookupKey(m, intensityKeys); ok {
		if f, ok := toFloat(raw); ok {
			v.Intensity = f
		}
	}
	if raw, ok := lookupKey(m, reasonKeys); ok {
		v.Reason = strings.TrimSpace(fmt.Sprint(raw))
	}
	if raw, ok := lookupKey(m, triggerKeys); ok {
		v.TriggerKeywords = toStringList(raw)
	}
	if raw, ok := lookupKey(m, trajectoryKeys); ok {
		v.Trajectory = domain.ParseTrajectory(fmt.Sprint(raw))
	}
	return v, true
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toStringList(raw any) []string {
	switch t := raw.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return nil
	}
}

var (
	reFieldMood       = regexp.MustCompile(`(?i)\b(?:current[_ ]mood|mood|emotion)\b["']?\s*(?:[:=]|\bis\b)\s*["']?([A-Za-z_-]+)`)
	reFieldFeel       = regexp.MustCompile(`(?i)\bfeel(?:s|ing)?\s+(?:(?:very|quite|really|extremely|somewhat|a\s+bit|rather)\s+)?([A-Za-z_-]+)`)
	reFieldIntensity  = regexp.MustCompile(`(?i)\bintensity\b["']?\s*(?:[:=]|\bof\b|\bis\b)?\s*["']?([0-9]*\.?[0-9]+)`)
	reFieldReason     = regexp.MustCompile(`(?i)\b(?:reason|rationale|cause)\b["']?\s*[:=]\s*["']?([^"\n]+)`)
	reFieldTriggers   = regexp.MustCompile(`(?i)\btrigger(?:[_ ]?(?:keywords|words))?s?\b["']?\s*[:=]\s*(\[[^\]]*\]|[^\n]+)`)
	reFieldTrajectory = regexp.MustCompile(`(?i)\btrajectory\b["']?\s*[:=]\s*["']?([A-Za-z_ -]+)`)
)

// parseProseFields es el ultimo recurso: campos sueltos dentro de prosa.
// Solo tiene exito si encuentra una etiqueta de mood reconocible.
func parseProseFields(_, cleaned string) (domain.InferenceVerdict, bool) {
	mood, ok := findLabel(reFieldMood, cleaned)
	if !ok {
		mood, ok = findLabel(reFieldFeel, cleaned)
	}
	if !ok {
		return domain.InferenceVerdict{}, false
	}

	v := domain.InferenceVerdict{Mood: mood, Intensity: defaultVerdictIntensity}

	if m := reFieldIntensity.FindStringSubmatch(cleaned); len(m) == 2 {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			v.Intensity = f
		}
	}
	if m := reFieldReason.FindStringSubmatch(cleaned); len(m) == 2 {
		v.Reason = strings.TrimSpace(strings.TrimRight(m[1], `",}'`))
	}
	if m := reFieldTriggers.FindStringSubmatch(cleaned); len(m) == 2 {
		list := strings.TrimSpace(m[1])
		list = strings.TrimSuffix(strings.TrimPrefix(list, "["), "]")
		v.TriggerKeywords = splitTriggerKeywords([]string{list})
	}
	if m := reFieldTrajectory.FindStringSubmatch(cleaned); len(m) == 2 {
		v.Trajectory = domain.ParseTrajectory(m[1])
	}
	return v, true
}

func findLabel(re *regexp.Regexp, s string) (domain.MoodLabel, bool) {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if l, ok := domain.ParseMoodLabel(m[1]); ok {
			return l, true
		}
	}
	return "", false
}

// splitTriggerKeywords separa elementos delimitados por , ; | o saltos de linea
// y limpia comillas y espacios.
func splitTriggerKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		parts := strings.FieldsFunc(item, func(r rune) bool {
			return r == ',' || r == ';' || r == '|' || r == '\n' || r == '\r'
		})
		for _, p := range parts {
			p = strings.Trim(strings.TrimSpace(p), `"'`)
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
