package service

import (
	"strings"

	"persona-mood/internal/domain"
)

const initialMoodReason = "Initial state"

// DefaultBehaviorRules es la tabla que usa cualquier personaje sin reglas propias.
// Se devuelve una copia nueva en cada llamada.
func DefaultBehaviorRules() []domain.BehaviorRule {
	return []domain.BehaviorRule{
		{
			Mood:            domain.MoodAngry,
			TriggerKeywords: []string{"excuse", "can't", "impossible", "but", "however", "difficult"},
			Behaviors: []string{
				"Use CAPS to emphasize your anger and frustration",
				"Interrupt or dismiss their excuses immediately",
				"Threaten consequences (e.g., 'If you can't handle this...')",
				"Question their competence directly",
				"Be openly hostile and confrontational",
			},
			IntensityThreshold: 0.7,
		},
		{
			Mood:            domain.MoodAngry,
			TriggerKeywords: []string{"sorry", "apologize", "my fault"},
			Behaviors: []string{
				"Don't accept the apology immediately",
				"Point out the damage caused",
				"Stay angry but slightly less hostile",
				"Demand specific changes, not just words",
			},
			IntensityThreshold: 0.6,
		},
		{
			Mood:            domain.MoodFrustrated,
			TriggerKeywords: []string{"excuse", "reason", "because", "explain", "justify"},
			Behaviors: []string{
				"Use short, terse responses (5-15 words)",
				"Make pointed comments about time-wasting",
				"Show visible impatience in your tone",
				"Cut them off with 'I don't want to hear it'",
			},
			IntensityThreshold: 0.6,
		},
		{
			Mood:            domain.MoodFrustrated,
			TriggerKeywords: []string{"plan", "proposal", "solution", "alternative"},
			Behaviors: []string{
				"Show slight interest but remain skeptical",
				"Demand details and proof",
				"Don't soften completely - stay guarded",
				"Test their plan with hard questions",
			},
			IntensityThreshold: 0.5,
		},
		{
			Mood:            domain.MoodSkeptical,
			TriggerKeywords: []string{"promise", "guarantee", "definitely", "trust me"},
			Behaviors: []string{
				"Challenge their claims with specific questions",
				"Ask for evidence or proof",
				"Reference past failures or broken promises",
				"Make them work to convince you",
			},
			IntensityThreshold: 0.5,
		},
		{
			Mood:            domain.MoodSkeptical,
			TriggerKeywords: []string{"data", "proof", "evidence", "example", "specifically"},
			Behaviors: []string{
				"Acknowledge they're being concrete",
				"Still maintain some doubt",
				"Ask follow-up questions to verify",
				"Soften slightly if evidence is solid",
			},
			IntensityThreshold: 0.4,
		},
		{
			Mood:            domain.MoodImpatient,
			TriggerKeywords: []string{"need time", "more time", "wait", "later", "eventually"},
			Behaviors: []string{
				"Express urgency and time pressure",
				"Push for immediate action",
				"Show irritation at delays",
				"Demand specific timelines, not vague promises",
			},
			IntensityThreshold: 0.5,
		},
		{
			Mood:            domain.MoodImpressed,
			TriggerKeywords: []string{"solution", "plan", "analysis", "data", "strategy"},
			Behaviors: []string{
				"Acknowledge their competence (grudgingly if aggressive character)",
				"Show genuine interest in their proposal",
				"Ask constructive questions instead of attacking",
				"Still maintain your authority but be less hostile",
			},
			IntensityThreshold: 0.6,
		},
		{
			Mood:            domain.MoodDefensive,
			TriggerKeywords: []string{"wrong", "mistake", "fault", "blame", "should have"},
			Behaviors: []string{
				"Immediately justify your position",
				"Shift blame to external factors or others",
				"Get aggressive when feeling attacked",
				"Refuse to take responsibility initially",
			},
			IntensityThreshold: 0.5,
		},
		{
			Mood:            domain.MoodDismissive,
			TriggerKeywords: []string{"concern", "worried", "afraid", "feel", "think"},
			Behaviors: []string{
				"Minimize or trivialize their concerns",
				"Use condescending language",
				"Make it clear their opinion doesn't matter",
				"Focus on 'facts' to dismiss their feelings",
			},
			IntensityThreshold: 0.6,
		},
		{
			Mood:            domain.MoodPleased,
			TriggerKeywords: []string{"done", "completed", "finished", "success", "results"},
			Behaviors: []string{
				"Show approval (within character limits)",
				"Acknowledge good work",
				"Be more open to future collaboration",
				"Still maintain professional distance if aggressive character",
			},
			IntensityThreshold: 0.5,
		},
	}
}

// RulesFor devuelve la tabla efectiva del personaje: la propia o la default.
func RulesFor(p domain.PersonaProfile) []domain.BehaviorRule {
	if len(p.Rules) > 0 {
		return p.Rules
	}
	return DefaultBehaviorRules()
}

var (
	initialAggressiveTraits = []string{"aggressive", "intimidating", "demanding", "confrontational", "manipulative"}
	initialConflictKeywords = []string{"harassment", "bullying", "deadline", "unrealistic", "confronting"}
)

// InitialMoodLabel decide el mood de arranque. Un DefaultMood valido en el perfil gana;
// si no, rasgos agresivos + escenario conflictivo => impatient, solo rasgos => skeptical.
func InitialMoodLabel(p domain.PersonaProfile, scenarioContext string) domain.MoodLabel {
	if p.DefaultMood.IsValid() {
		return p.DefaultMood
	}

	aggressive := false
	for _, t := range p.Traits {
		tl := strings.ToLower(strings.TrimSpace(t))
		for _, a := range initialAggressiveTraits {
			if tl == a {
				aggressive = true
			}
		}
	}
	conflict := containsAny(strings.ToLower(scenarioContext), initialConflictKeywords)

	switch {
	case aggressive && conflict:
		return domain.MoodImpatient
	case aggressive:
		return domain.MoodSkeptical
	default:
		return domain.MoodNeutral
	}
}

// InitialMoodState arma el estado inicial de un personaje para una sesion nueva.
func InitialMoodState(p domain.PersonaProfile, scenarioContext string) domain.MoodState {
	return domain.MoodState{
		CurrentMood:     InitialMoodLabel(p, scenarioContext),
		Intensity:       0.5,
		Reason:          initialMoodReason,
		TriggerKeywords: []string{},
		History:         []domain.MoodLabel{},
	}
}
