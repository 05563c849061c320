package service

import (
	"errors"
	"reflect"
	"testing"

	"persona-mood/internal/domain"
)

func TestVerdictParser_Strategies(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantStrategy string
		wantMood     domain.MoodLabel
		wantInt      float64
		wantTriggers []string
	}{
		{
			name:         "json embebido en prosa",
			raw:          `Sure! Here is the analysis: {"mood": "angry", "intensity": 0.85, "reason": "excuses again", "trigger_keywords": ["impossible", "can't"]} hope it helps`,
			wantStrategy: StrategyBrace,
			wantMood:     domain.MoodAngry,
			wantInt:      0.85,
			wantTriggers: []string{"impossible", "can't"},
		},
		{
			name:         "fence json",
			raw:          "```json\n{\"mood\": \"skeptical\", \"intensity\": \"0.6\"}\n```",
			wantStrategy: StrategyBrace,
			wantMood:     domain.MoodSkeptical,
			wantInt:      0.6,
		},
		{
			name:         "objeto anidado sin mood arriba",
			raw:          `{"analysis": {"mood": "frustrated", "intensity": 0.7}, "notes": "x"}`,
			wantStrategy: StrategyFlat,
			wantMood:     domain.MoodFrustrated,
			wantInt:      0.7,
		},
		{
			name:         "pares sin llaves",
			raw:          "\"mood\": \"pleased\",\n\"intensity\": 0.4,\n\"triggers\": \"done, results\"",
			wantStrategy: StrategyFlat,
			wantMood:     domain.MoodPleased,
			wantInt:      0.4,
			wantTriggers: []string{"done, results"},
		},
		{
			name:         "documento yaml",
			raw:          "mood: defensive\nintensity: 0.55\nreason: feels blamed\ntriggers:\n  - fault\n  - blame\n",
			wantStrategy: StrategyDocument,
			wantMood:     domain.MoodDefensive,
			wantInt:      0.55,
			wantTriggers: []string{"fault", "blame"},
		},
		{
			name:         "campos en prosa",
			raw:          "I think Marcus would feel very angry here. Intensity: 0.9. Reason: user keeps making excuses\nTrigger keywords: excuse; impossible",
			wantStrategy: StrategyFields,
			wantMood:     domain.MoodAngry,
			wantInt:      0.9,
			wantTriggers: []string{"excuse", "impossible"},
		},
		{
			name:         "intensidad faltante",
			raw:          `{"emotion": "Impatient"}`,
			wantStrategy: StrategyBrace,
			wantMood:     domain.MoodImpatient,
			wantInt:      0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, strategy, err := DefaultVerdictParser.ParseWithStrategy(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strategy != tt.wantStrategy {
				t.Fatalf("expected strategy %s, got %s", tt.wantStrategy, strategy)
			}
			if v.Mood != tt.wantMood {
				t.Fatalf("expected mood %s, got %s", tt.wantMood, v.Mood)
			}
			if v.Intensity != tt.wantInt {
				t.Fatalf("expected intensity %v, got %v", tt.wantInt, v.Intensity)
			}
			if tt.wantTriggers != nil && !reflect.DeepEqual(v.TriggerKeywords, tt.wantTriggers) {
				t.Fatalf("expected triggers %v, got %v", tt.wantTriggers, v.TriggerKeywords)
			}
		})
	}
}

func TestVerdictParser_BraceRoundTrip(t *testing.T) {
	raw := `Analysis follows. {"mood":"hostile","intensity":0.75,"reason":"said \"no {way}\"","trigger_keywords":["no"],"trajectory":"escalating"} end.`
	v, err := DefaultVerdictParser.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := domain.InferenceVerdict{
		Mood:            domain.MoodHostile,
		Intensity:       0.75,
		Reason:          `said "no {way}"`,
		TriggerKeywords: []string{"no"},
		Trajectory:      domain.TrajectoryEscalating,
	}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", want, v)
	}
}

func TestVerdictParser_Failures(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"I don't know what you mean.",
		"The mood is hard to tell from this message.",
		`{"intensity": 0.4}`,
	}
	for _, raw := range inputs {
		_, err := DefaultVerdictParser.Parse(raw)
		if !errors.Is(err, ErrParseFailure) {
			t.Fatalf("expected ErrParseFailure for %q, got %v", raw, err)
		}
	}
}

func TestVerdictParser_KeepsUnknownLabelForSanitizer(t *testing.T) {
	v, err := DefaultVerdictParser.Parse(`{"mood": "furious", "intensity": 3}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v.Mood != "furious" {
		t.Fatalf("expected raw label preserved, got %q", v.Mood)
	}
	s := SanitizeVerdict(v)
	if s.Mood != domain.MoodNeutral || s.Intensity != 1 {
		t.Fatalf("expected sanitized neutral/1, got %s/%v", s.Mood, s.Intensity)
	}
}

func TestSplitTriggerKeywords(t *testing.T) {
	got := splitTriggerKeywords([]string{"excuse, can't | impossible;\n 'deadline' ", "", "plan"})
	want := []string{"excuse", "can't", "impossible", "deadline", "plan"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractFirstJSONObject(t *testing.T) {
	cases := map[string]string{
		`x {"a":"}"} y`:      `{"a":"}"}`,
		`{"a":{"b":1}} tail`: `{"a":{"b":1}}`,
		`no braces`:          "",
		`{"a": 1`:            "",
	}
	for in, want := range cases {
		if got := extractFirstJSONObject(in); got != want {
			t.Fatalf("extractFirstJSONObject(%q) = %q, want %q", in, got, want)
		}
	}
}
