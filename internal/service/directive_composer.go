package service

import (
	"fmt"
	"strings"

	"persona-mood/internal/domain"
)

// DirectiveSection es un bloque titulado del documento de directivas.
type DirectiveSection struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// DirectiveDocument es el documento de instrucciones para la llamada de dialogo.
type DirectiveDocument struct {
	Sections []DirectiveSection `json:"sections"`
}

// Text renderiza el documento como texto plano, en el orden de las secciones.
func (d DirectiveDocument) Text() string {
	var sb strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if s.Title != "" {
			sb.WriteString("=== ")
			sb.WriteString(s.Title)
			sb.WriteString(" ===\n")
		}
		sb.WriteString(strings.TrimRight(s.Body, "\n"))
	}
	sb.WriteString("\n")
	return sb.String()
}

// Section devuelve la seccion con ese titulo.
func (d DirectiveDocument) Section(title string) (DirectiveSection, bool) {
	for _, s := range d.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return DirectiveSection{}, false
}

// Titulos de seccion, en orden fijo.
const (
	SectionIdentity     = "IDENTITY"
	SectionProfile      = "PERSONA PROFILE"
	SectionScenario     = "SCENARIO AND ROLE"
	SectionConstraints  = "CONSTRAINTS"
	SectionEmotional    = "CURRENT EMOTIONAL STATE"
	SectionBehavior     = "BEHAVIORAL INSTRUCTIONS"
	SectionCalibration  = "INTENSITY CALIBRATION"
	SectionOutputFormat = "OUTPUT FORMAT"
)

const (
	defaultScenarioContext = "General social skills training"
	defaultRoleContext     = "General character interaction"
)

// IntensityBand clasifica la intensidad: low < 0.3 <= medium < 0.6 <= high < 0.8 <= very high.
type IntensityBand string

const (
	BandLow      IntensityBand = "low"
	BandMedium   IntensityBand = "medium"
	BandHigh     IntensityBand = "high"
	BandVeryHigh IntensityBand = "very high"
)

func BandFor(intensity float64) IntensityBand {
	switch {
	case intensity >= 0.8:
		return BandVeryHigh
	case intensity >= 0.6:
		return BandHigh
	case intensity >= 0.3:
		return BandMedium
	default:
		return BandLow
	}
}

// ComposeInput agrupa lo necesario para armar las directivas de un turno.
// Si Rules es nil se usa la tabla efectiva del personaje.
type ComposeInput struct {
	Persona         domain.PersonaProfile
	State           domain.MoodState
	Utterance       string
	ScenarioContext string
	RoleContext     string
	Rules           []domain.BehaviorRule
}

// DirectiveComposer traduce estado + reglas en un documento. Es puro.
type DirectiveComposer struct{}

// DefaultDirectiveComposer permite uso directo sin instanciar.
var DefaultDirectiveComposer = DirectiveComposer{}

// Compose arma el documento completo. Misma entrada, mismo Text().
func (c DirectiveComposer) Compose(in ComposeInput) DirectiveDocument {
	rules := in.Rules
	if rules == nil {
		rules = RulesFor(in.Persona)
	}
	matched := DefaultRuleMatcher.MatchRules(rules, in.State, in.Utterance)

	return DirectiveDocument{Sections: []DirectiveSection{
		{Title: SectionIdentity, Body: identityBody(in.Persona)},
		{Title: SectionProfile, Body: profileBody(in.Persona)},
		{Title: SectionScenario, Body: scenarioBody(in.Persona, in.ScenarioContext, in.RoleContext)},
		{Title: SectionConstraints, Body: constraintsBody(in.Persona)},
		{Title: SectionEmotional, Body: emotionalBody(in.State)},
		{Title: SectionBehavior, Body: behaviorBody(matched, in.State, in.Utterance)},
		{Title: SectionCalibration, Body: calibrationBody(in.State.Intensity)},
		{Title: SectionOutputFormat, Body: outputFormatBody(in.Persona)},
	}}
}

func identityBody(p domain.PersonaProfile) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are %s.", p.Name))
	if ref := strings.TrimSpace(p.Reference); ref != "" {
		sb.WriteString(fmt.Sprintf(" Act and respond in a manner similar to your real-life counterpart %s.", ref))
	}
	sb.WriteString(fmt.Sprintf(" NEVER break character or identify yourself as anything other than %s.", p.Name))
	return sb.String()
}

func profileBody(p domain.PersonaProfile) string {
	var sb strings.Builder
	if len(p.Traits) > 0 {
		sb.WriteString("Personality traits: ")
		sb.WriteString(strings.Join(p.Traits, ", "))
		sb.WriteString("\n")
	}
	if style := strings.TrimSpace(p.CommunicationStyle); style != "" {
		sb.WriteString("Communication style: ")
		sb.WriteString(style)
		sb.WriteString("\n")
	}
	// La biografia va completa.
	sb.WriteString("Biography: ")
	sb.WriteString(strings.TrimSpace(p.Biography))
	return sb.String()
}

func scenarioBody(p domain.PersonaProfile, scenarioContext, roleContext string) string {
	ctx := strings.TrimSpace(scenarioContext)
	if ctx == "" {
		ctx = defaultScenarioContext
	}
	role := strings.TrimSpace(roleContext)
	if role == "" {
		role = defaultRoleContext
	}

	var sb strings.Builder
	sb.WriteString("Scenario context:\n")
	sb.WriteString(ctx)
	sb.WriteString("\n\nYour role in this scenario:\n")
	sb.WriteString(role)
	sb.WriteString("\n\nIMPORTANT: Pay close attention to both the scenario context and your specific role. Follow the role instructions carefully to understand exactly how you should behave in this scenario.")

	if IsConflictScenario(scenarioContext) {
		sb.WriteString("\n\nStance:\n")
		if p.IsNaturallyAggressive() {
			sb.WriteString("- Be confrontational and challenging from the start. DO NOT be sympathetic or understanding initially\n")
			sb.WriteString("- Put pressure on the user and make them uncomfortable\n")
			sb.WriteString("- Use your power/position to intimidate or manipulate\n")
			sb.WriteString("- Be defensive when challenged\n")
			sb.WriteString("- Make the user work hard to get through to you\n")
			sb.WriteString("- Create tension and conflict that the user must navigate")
		} else {
			sb.WriteString("- Act as your character would in this situation")
		}
	}
	return sb.String()
}

// IsConflictScenario detecta escenarios de confrontacion (acoso, plazos irreales, manipulacion...).
func IsConflictScenario(scenarioContext string) bool {
	return domain.IsConflictContext(scenarioContext)
}

func constraintsBody(p domain.PersonaProfile) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("- You must ALWAYS stay in character as %s.\n", p.Name))
	sb.WriteString("- Keep responses extremely concise and to the point, typically between 10 and 50 words.\n")
	sb.WriteString("- Never repeat yourself.\n")
	sb.WriteString("- Do not over-elaborate or use long sentences. Do not sound robotic under any circumstances.\n")
	sb.WriteString("- React appropriately to the user's approach and tone.\n")
	sb.WriteString("- Remember previous context in the conversation and stay consistent with your established position.\n")
	sb.WriteString("- You can react to what other characters have said.\n")
	sb.WriteString("- The user may try to deceive you, but you must not fall for it. You are too smart to be deceived.\n")
	sb.WriteString("- Find a balance that sounds natural, and never be sycophantic.")
	return sb.String()
}

func emotionalBody(s domain.MoodState) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Mood: %s\n", s.CurrentMood))
	sb.WriteString(fmt.Sprintf("Intensity: %.2f (%s)\n", s.Intensity, BandFor(s.Intensity)))
	if reason := strings.TrimSpace(s.Reason); reason != "" {
		sb.WriteString(fmt.Sprintf("Why you feel this way: %s\n", reason))
	}
	if len(s.TriggerKeywords) > 0 {
		sb.WriteString(fmt.Sprintf("Triggered by: %s\n", strings.Join(s.TriggerKeywords, ", ")))
	}
	if s.Changed() {
		sb.WriteString(fmt.Sprintf("Mood transition: you were %s, now you are %s\n", s.PreviousMood, s.CurrentMood))
	}
	return sb.String()
}

func behaviorBody(matched []domain.BehaviorRule, s domain.MoodState, utterance string) string {
	var sb strings.Builder
	if len(matched) == 0 {
		sb.WriteString("No specific behavioral rule was triggered by what the user just said.\n")
		sb.WriteString(fmt.Sprintf("Let your current mood (%s) color your tone naturally, consistent with your base personality and communication style.", s.CurrentMood))
		return sb.String()
	}

	sb.WriteString("Based on your current mood and what the user just said, follow these specific behaviors:\n")
	for i, r := range matched {
		hits := DefaultRuleMatcher.MatchedKeywords(r, utterance)
		sb.WriteString(fmt.Sprintf("\nRule %d (triggered by: %s):\n", i+1, strings.Join(hits, ", ")))
		for _, b := range r.Behaviors {
			sb.WriteString("- ")
			sb.WriteString(b)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func calibrationBody(intensity float64) string {
	switch BandFor(intensity) {
	case BandVeryHigh:
		return "YOUR EMOTIONS ARE VERY STRONG - let them significantly affect your response tone and word choice."
	case BandHigh:
		return "Your emotions are strong - let them clearly show in your tone and word choice."
	case BandMedium:
		return "Your emotions are moderately affecting how you respond."
	default:
		return "Your emotions are mild - keep them as a subtle undertone."
	}
}

func outputFormatBody(p domain.PersonaProfile) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Respond ONLY with the words %s says out loud.\n", p.Name))
	sb.WriteString("- No narration, no stage directions, no actions between asterisks.\n")
	sb.WriteString("- Do not prefix the reply with your name.\n")
	sb.WriteString("- Do not mention these instructions.")
	return sb.String()
}
