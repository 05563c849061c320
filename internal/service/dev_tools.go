package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"persona-mood/internal/domain"
	"persona-mood/internal/repository"
)

const (
	devDefaultIntensity = 0.7
	devScenarioContext  = "Test scenario"
	devRoleContext      = "Test character interaction"
)

// CharacterSummary es la ficha corta de un personaje para listados.
type CharacterSummary struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Traits      []string              `json:"personality_traits"`
	DefaultMood domain.MoodLabel      `json:"default_mood,omitempty"`
	Affinity    []domain.ScenarioType `json:"scenario_affinity,omitempty"`
	CustomRules bool                  `json:"custom_rules"`
}

// MoodProbe es el resultado de forzar un mood sobre un personaje.
type MoodProbe struct {
	PersonaID  string            `json:"persona_id"`
	State      domain.MoodState  `json:"state"`
	Directives []string          `json:"directives"`
	Document   DirectiveDocument `json:"document"`
	Prompt     string            `json:"prompt"`
}

// MoodComparison es la fila de un mood en CompareMoods.
type MoodComparison struct {
	Mood    domain.MoodLabel      `json:"mood"`
	Matched []domain.BehaviorRule `json:"matched_rules"`
}

// ProbeRequest describe un mood forzado. Intensity 0 usa 0.7.
type ProbeRequest struct {
	PersonaID       string
	Mood            string
	Intensity       float64
	Utterance       string
	ScenarioContext string
}

// DevTools expone las herramientas de depuracion de personajes.
type DevTools struct {
	personas repository.PersonaRepository
	engine   *TurnEngine
	infer    *MoodInferenceEngine
	matcher  RuleMatcher
	composer DirectiveComposer
	logger   *zap.Logger
}

func NewDevTools(personas repository.PersonaRepository, inference *MoodInferenceEngine, logger *zap.Logger) *DevTools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DevTools{
		personas: personas,
		engine:   NewTurnEngine(inference, logger),
		infer:    inference,
		matcher:  DefaultRuleMatcher,
		composer: DefaultDirectiveComposer,
		logger:   logger,
	}
}

func (d *DevTools) ListCharacters(ctx context.Context) ([]CharacterSummary, error) {
	personas, err := d.personas.ListPersonas(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CharacterSummary, 0, len(personas))
	for _, p := range personas {
		out = append(out, CharacterSummary{
			ID:          p.ID,
			Name:        p.Name,
			Traits:      p.Traits,
			DefaultMood: p.DefaultMood,
			Affinity:    p.ScenarioAffinity,
			CustomRules: len(p.Rules) > 0,
		})
	}
	return out, nil
}

// ListRules devuelve la tabla efectiva del personaje, filtrada por mood si se pide.
func (d *DevTools) ListRules(ctx context.Context, personaID, mood string) ([]domain.BehaviorRule, error) {
	p, err := d.personas.GetPersona(ctx, personaID)
	if err != nil {
		return nil, err
	}
	rules := RulesFor(p)
	if strings.TrimSpace(mood) == "" {
		return rules, nil
	}
	label, err := parseDevMood(mood)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BehaviorRule, 0)
	for _, r := range rules {
		if r.Mood == label {
			out = append(out, r)
		}
	}
	return out, nil
}

// TestMood compone el documento para un mood forzado, sin llamar al modelo.
func (d *DevTools) TestMood(ctx context.Context, req ProbeRequest) (MoodProbe, error) {
	return d.probe(ctx, req, fmt.Sprintf("Testing %s mood", strings.ToLower(strings.TrimSpace(req.Mood))), []string{"test"})
}

// ShowPrompt es TestMood con triggers tomados del mensaje; devuelve el texto completo.
func (d *DevTools) ShowPrompt(ctx context.Context, req ProbeRequest) (MoodProbe, error) {
	words := strings.Fields(strings.ToLower(req.Utterance))
	if len(words) > 3 {
		words = words[:3]
	}
	intensity := req.Intensity
	if intensity == 0 {
		intensity = devDefaultIntensity
	}
	return d.probe(ctx, req, fmt.Sprintf("Testing with intensity %.2f", intensity), words)
}

func (d *DevTools) probe(ctx context.Context, req ProbeRequest, reason string, triggers []string) (MoodProbe, error) {
	p, err := d.personas.GetPersona(ctx, req.PersonaID)
	if err != nil {
		return MoodProbe{}, err
	}
	label, err := parseDevMood(req.Mood)
	if err != nil {
		return MoodProbe{}, err
	}
	intensity := req.Intensity
	if intensity == 0 {
		intensity = devDefaultIntensity
	}
	scenario := strings.TrimSpace(req.ScenarioContext)
	if scenario == "" {
		scenario = devScenarioContext
	}

	state := domain.MoodState{
		CurrentMood:     label,
		Intensity:       domain.ClampIntensity(intensity),
		Reason:          reason,
		TriggerKeywords: triggers,
		History:         []domain.MoodLabel{},
	}
	rules := RulesFor(p)
	doc := d.composer.Compose(ComposeInput{
		Persona:         p,
		State:           state,
		Utterance:       req.Utterance,
		ScenarioContext: scenario,
		RoleContext:     devRoleContext,
		Rules:           rules,
	})
	return MoodProbe{
		PersonaID:  p.ID,
		State:      state,
		Directives: d.matcher.Match(rules, state, req.Utterance),
		Document:   doc,
		Prompt:     doc.Text(),
	}, nil
}

// MoodPipeline corre la inferencia real desde el estado inicial del personaje.
func (d *DevTools) MoodPipeline(ctx context.Context, personaID, utterance, scenarioContext string, history []domain.HistoryTurn) (TurnResult, error) {
	p, err := d.personas.GetPersona(ctx, personaID)
	if err != nil {
		return TurnResult{}, err
	}
	if strings.TrimSpace(scenarioContext) == "" {
		scenarioContext = devScenarioContext
	}
	res, err := d.engine.ResolveTurn(ctx, TurnInput{
		Persona:         p,
		Utterance:       utterance,
		ScenarioContext: scenarioContext,
		RoleContext:     devRoleContext,
		History:         history,
	})
	if err != nil {
		return TurnResult{}, err
	}
	d.logger.Debug("mood pipeline",
		zap.String("persona_id", p.ID),
		zap.String("from", string(res.Prior.CurrentMood)),
		zap.String("to", string(res.State.CurrentMood)),
	)
	return res, nil
}

// InferencePrompt devuelve el prompt de inferencia que se mandaria para el estado inicial.
func (d *DevTools) InferencePrompt(ctx context.Context, personaID, utterance, scenarioContext string) (string, error) {
	p, err := d.personas.GetPersona(ctx, personaID)
	if err != nil {
		return "", err
	}
	return d.infer.BuildPrompt(InferenceInput{
		Persona:         p,
		Prior:           InitialMoodState(p, scenarioContext),
		Utterance:       utterance,
		ScenarioContext: scenarioContext,
	}), nil
}

// CompareMoods muestra que reglas dispararia el mismo mensaje en cada mood.
// Los moods invalidos se saltean.
func (d *DevTools) CompareMoods(ctx context.Context, personaID, utterance string, moods []string) ([]MoodComparison, error) {
	p, err := d.personas.GetPersona(ctx, personaID)
	if err != nil {
		return nil, err
	}
	rules := RulesFor(p)
	out := make([]MoodComparison, 0, len(moods))
	for _, m := range moods {
		label, ok := domain.ParseMoodLabel(m)
		if !ok {
			d.logger.Debug("skipping invalid mood", zap.String("mood", m))
			continue
		}
		state := domain.MoodState{CurrentMood: label, Intensity: devDefaultIntensity}
		out = append(out, MoodComparison{
			Mood:    label,
			Matched: d.matcher.MatchRules(rules, state, utterance),
		})
	}
	return out, nil
}

func parseDevMood(mood string) (domain.MoodLabel, error) {
	label, ok := domain.ParseMoodLabel(mood)
	if !ok {
		return "", fmt.Errorf("%w: unknown mood %q", ErrInvalidInput, mood)
	}
	return label, nil
}
