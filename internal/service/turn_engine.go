package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"persona-mood/internal/domain"
)

// TurnInput son las entradas congeladas de un turno para un personaje.
// Prior nil significa primer turno: se usa el estado inicial del personaje.
type TurnInput struct {
	Persona         domain.PersonaProfile
	Prior           *domain.MoodState
	Utterance       string
	ScenarioContext string
	RoleContext     string
	History         []domain.HistoryTurn
}

// TurnResult es el nuevo estado autoritativo mas el documento para el dialogo.
type TurnResult struct {
	PersonaID    string                  `json:"persona_id"`
	Prior        domain.MoodState        `json:"prior_state"`
	State        domain.MoodState        `json:"state"`
	Document     DirectiveDocument       `json:"document"`
	Verdict      domain.InferenceVerdict `json:"verdict"`
	Strategy     string                  `json:"strategy,omitempty"`
	Fallback     bool                    `json:"fallback"`
	MatchedRules []domain.BehaviorRule   `json:"matched_rules"`
	Directives   []string                `json:"directives"`
}

// TurnEngine orquesta inferencia -> reglas -> composicion. No guarda estado entre llamadas.
type TurnEngine struct {
	inference *MoodInferenceEngine
	matcher   RuleMatcher
	composer  DirectiveComposer
	logger    *zap.Logger
}

func NewTurnEngine(inference *MoodInferenceEngine, logger *zap.Logger) *TurnEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnEngine{
		inference: inference,
		matcher:   DefaultRuleMatcher,
		composer:  DefaultDirectiveComposer,
		logger:    logger,
	}
}

// ResolveTurn ejecuta un turno completo. Sin reintentos; ante error el estado previo sigue vigente.
func (e *TurnEngine) ResolveTurn(ctx context.Context, in TurnInput) (TurnResult, error) {
	prior := InitialMoodState(in.Persona, in.ScenarioContext)
	if in.Prior != nil {
		prior = *in.Prior
	}

	out, err := e.inference.InferDetailed(ctx, InferenceInput{
		Persona:         in.Persona,
		Prior:           prior,
		Utterance:       in.Utterance,
		ScenarioContext: in.ScenarioContext,
		History:         in.History,
	})
	if err != nil {
		return TurnResult{}, err
	}

	rules := RulesFor(in.Persona)
	matched := e.matcher.MatchRules(rules, out.State, in.Utterance)
	directives := e.matcher.Match(rules, out.State, in.Utterance)

	doc := e.composer.Compose(ComposeInput{
		Persona:         in.Persona,
		State:           out.State,
		Utterance:       in.Utterance,
		ScenarioContext: in.ScenarioContext,
		RoleContext:     in.RoleContext,
		Rules:           rules,
	})

	e.logger.Debug("turn resolved",
		zap.String("persona_id", in.Persona.ID),
		zap.String("mood", string(out.State.CurrentMood)),
		zap.Int("matched_rules", len(matched)),
	)

	return TurnResult{
		PersonaID:    in.Persona.ID,
		Prior:        prior,
		State:        out.State,
		Document:     doc,
		Verdict:      out.Verdict,
		Strategy:     out.Strategy,
		Fallback:     out.Fallback,
		MatchedRules: matched,
		Directives:   directives,
	}, nil
}

// BatchTurnResult es el resultado de un personaje dentro de ResolveTurns.
type BatchTurnResult struct {
	Result TurnResult
	Err    error
}

// ResolveTurns resuelve varios personajes en paralelo, una llamada de inferencia por cada uno.
// El orden de salida respeta el de entrada; los errores quedan por personaje.
func (e *TurnEngine) ResolveTurns(ctx context.Context, inputs []TurnInput) []BatchTurnResult {
	results := make([]BatchTurnResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for i := range inputs {
		i := i
		g.Go(func() error {
			res, err := e.ResolveTurn(gctx, inputs[i])
			results[i] = BatchTurnResult{Result: res, Err: err}
			if err != nil {
				e.logger.Warn("batch turn failed", zap.String("persona_id", inputs[i].Persona.ID), zap.Error(err))
			}
			// Un personaje que falla no cancela a los demas.
			return nil
		})
	}
	_ = g.Wait()

	return results
}
