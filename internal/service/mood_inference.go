package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"persona-mood/internal/domain"
	"persona-mood/internal/llm"
)

// FallbackReason marca los veredictos sustituidos cuando no se pudo leer la respuesta.
const FallbackReason = "inference unavailable"

const (
	defaultInferenceHistoryTurns = 6
	inferenceSystemPrompt        = "You are a psychological AI that analyzes character emotions. Respond only with valid JSON."
)

// InferenceConfig ajusta cuanto historial se usa y cuanto se conserva.
type InferenceConfig struct {
	HistoryLimit int
	HistoryTurns int
}

// InferenceInput es todo lo que la inferencia necesita para un turno.
type InferenceInput struct {
	Persona         domain.PersonaProfile
	Prior           domain.MoodState
	Utterance       string
	ScenarioContext string
	History         []domain.HistoryTurn
}

// InferenceOutcome expone el detalle del turno para depuracion.
type InferenceOutcome struct {
	State    domain.MoodState
	Verdict  domain.InferenceVerdict
	Strategy string
	Fallback bool
	Raw      string
}

// MoodInferenceEngine hace una llamada al modelo por turno y produce el MoodState siguiente.
type MoodInferenceEngine struct {
	llmClient llm.LLMClient
	parser    VerdictParser
	cfg       InferenceConfig
	logger    *zap.Logger
}

func NewMoodInferenceEngine(llmClient llm.LLMClient, cfg InferenceConfig, logger *zap.Logger) *MoodInferenceEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = domain.MoodHistoryLimit
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultInferenceHistoryTurns
	}
	return &MoodInferenceEngine{
		llmClient: llmClient,
		parser:    VerdictParser{Logger: logger},
		cfg:       cfg,
		logger:    logger,
	}
}

// Infer devuelve el nuevo estado. El estado previo nunca se modifica.
func (e *MoodInferenceEngine) Infer(ctx context.Context, in InferenceInput) (domain.MoodState, error) {
	out, err := e.InferDetailed(ctx, in)
	if err != nil {
		return domain.MoodState{}, err
	}
	return out.State, nil
}

// InferDetailed es Infer mas el veredicto, la estrategia y la respuesta cruda.
// Errores del backend se propagan envueltos en llm.ErrBackendUnavailable; una
// respuesta ilegible se reemplaza por el veredicto de fallback.
func (e *MoodInferenceEngine) InferDetailed(ctx context.Context, in InferenceInput) (InferenceOutcome, error) {
	if err := ctx.Err(); err != nil {
		return InferenceOutcome{}, err
	}

	prompt := e.BuildPrompt(in)
	raw, err := e.llmClient.Generate(ctx, prompt, llm.WithModel(llm.ModelFast), llm.WithSystem(inferenceSystemPrompt))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return InferenceOutcome{}, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return InferenceOutcome{}, err
		}
		e.logger.Warn("mood inference backend failed", zap.String("persona_id", in.Persona.ID), zap.Error(err))
		if errors.Is(err, llm.ErrBackendUnavailable) {
			return InferenceOutcome{}, fmt.Errorf("llm generate: %w", err)
		}
		return InferenceOutcome{}, fmt.Errorf("llm generate: %w: %w", llm.ErrBackendUnavailable, err)
	}

	verdict, strategy, perr := e.parser.ParseWithStrategy(raw)
	fallback := false
	if perr != nil {
		e.logger.Warn("mood verdict unparseable, using fallback",
			zap.String("persona_id", in.Persona.ID),
			zap.String("raw", truncateForLog(raw, 200)),
		)
		verdict = FallbackVerdict()
		fallback = true
	}
	verdict = SanitizeVerdict(verdict)

	next := in.Prior.Transition(verdict, e.cfg.HistoryLimit)
	e.logger.Info("mood updated",
		zap.String("persona_id", in.Persona.ID),
		zap.String("from", string(in.Prior.CurrentMood)),
		zap.String("to", string(next.CurrentMood)),
		zap.Float64("intensity", next.Intensity),
		zap.String("strategy", strategy),
		zap.Bool("fallback", fallback),
	)

	return InferenceOutcome{
		State:    next,
		Verdict:  verdict,
		Strategy: strategy,
		Fallback: fallback,
		Raw:      raw,
	}, nil
}

// FallbackVerdict es el veredicto determinista cuando ninguna estrategia funciona.
func FallbackVerdict() domain.InferenceVerdict {
	return domain.InferenceVerdict{
		Mood:            domain.MoodNeutral,
		Intensity:       0.5,
		Reason:          FallbackReason,
		TriggerKeywords: []string{},
	}
}

// SanitizeVerdict fuerza las invariantes: etiqueta valida, intensidad en [0,1]
// y triggers como lista de elementos individuales.
func SanitizeVerdict(v domain.InferenceVerdict) domain.InferenceVerdict {
	if l, ok := domain.ParseMoodLabel(string(v.Mood)); ok {
		v.Mood = l
	} else {
		v.Mood = domain.MoodNeutral
	}
	v.Intensity = domain.ClampIntensity(v.Intensity)
	v.Reason = strings.TrimSpace(v.Reason)
	v.TriggerKeywords = splitTriggerKeywords(v.TriggerKeywords)
	return v
}

// BuildPrompt arma el prompt de analisis. Es determinista.
func (e *MoodInferenceEngine) BuildPrompt(in InferenceInput) string {
	p := in.Persona
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are analyzing how %s would emotionally respond to what the user just said.\n\n", p.Name))

	sb.WriteString("=== CHARACTER PROFILE ===\n")
	sb.WriteString(fmt.Sprintf("- Name: %s\n", p.Name))
	sb.WriteString(fmt.Sprintf("- Personality: %s\n", strings.Join(firstN(p.Traits, 5), ", ")))
	sb.WriteString(fmt.Sprintf("- Communication Style: %s\n", p.CommunicationStyle))
	sb.WriteString(fmt.Sprintf("- Biography: %s\n", truncateRunes(p.Biography, 300)))
	sb.WriteString(fmt.Sprintf("- Current Mood: %s (intensity: %.2f)\n", in.Prior.CurrentMood, in.Prior.Intensity))
	if len(in.Prior.History) > 0 {
		trail := make([]string, 0, len(in.Prior.History)+1)
		for _, m := range in.Prior.History {
			trail = append(trail, string(m))
		}
		trail = append(trail, string(in.Prior.CurrentMood))
		sb.WriteString(fmt.Sprintf("- Mood trajectory so far: %s\n", strings.Join(trail, " -> ")))
	}
	sb.WriteString("\n")

	sb.WriteString("=== SCENARIO CONTEXT ===\n")
	ctx := strings.TrimSpace(in.ScenarioContext)
	if ctx == "" {
		ctx = defaultScenarioContext
	}
	sb.WriteString(truncateRunes(ctx, 400))
	sb.WriteString("\n\n")

	sb.WriteString("=== RECENT CONVERSATION ===\n")
	sb.WriteString(FormatHistory(lastN(in.History, e.cfg.HistoryTurns)))
	sb.WriteString("\n\n")

	sb.WriteString("=== USER'S LATEST MESSAGE ===\n")
	sb.WriteString(fmt.Sprintf("%q\n\n", in.Utterance))

	sb.WriteString(fmt.Sprintf("Based on %s's personality and what the user just said, determine:\n", p.Name))
	sb.WriteString(fmt.Sprintf("1. What MOOD would %s feel right now?\n", p.Name))
	sb.WriteString("2. How INTENSE is this emotion (0.0 to 1.0)?\n")
	sb.WriteString(fmt.Sprintf("3. WHY does %s feel this way?\n", p.Name))
	sb.WriteString("4. What KEYWORDS in the user's message triggered this mood?\n")
	sb.WriteString("5. What is the TRAJECTORY: is the user making things better (de-escalating), worse (escalating) or is it consistent?\n\n")

	labels := make([]string, 0, len(domain.AllMoodLabels()))
	for _, l := range domain.AllMoodLabels() {
		labels = append(labels, string(l))
	}
	sb.WriteString("Available moods: ")
	sb.WriteString(strings.Join(labels, ", "))
	sb.WriteString("\n\n")

	sb.WriteString("=== CHARACTER-SPECIFIC CONSIDERATIONS ===\n")
	sb.WriteString(fmt.Sprintf("- If %s has aggressive traits (demanding, intimidating, bullying), they escalate to anger QUICKLY\n", p.Name))
	sb.WriteString(fmt.Sprintf("- If %s has manipulative traits, they may feel calculating or manipulative when challenged\n", p.Name))
	sb.WriteString(fmt.Sprintf("- If %s has empathetic traits, they soften when users show vulnerability\n\n", p.Name))

	sb.WriteString("=== OUTPUT FORMAT (STRICT JSON) ===\n")
	sb.WriteString(`RESPOND ONLY WITH VALID JSON in this exact format:
{
  "mood": "one_of_the_available_moods",
  "intensity": 0.7,
  "reason": "Brief explanation of why they feel this way based on user's message",
  "trigger_keywords": ["keyword1", "keyword2"],
  "trajectory": "escalating | de-escalating | consistent"
}
`)
	return sb.String()
}

// FormatHistory renderiza los turnos como "SPEAKER: contenido", uno por linea.
func FormatHistory(turns []domain.HistoryTurn) string {
	if len(turns) == 0 {
		return "No prior conversation"
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = "UNKNOWN"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, strings.TrimSpace(t.Content)))
	}
	return strings.Join(lines, "\n")
}

func lastN(turns []domain.HistoryTurn, n int) []domain.HistoryTurn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
