package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"persona-mood/internal/domain"
)

func TestCatalogRepository_DefaultContent(t *testing.T) {
	repo, err := NewCatalogRepository("")
	if err != nil {
		t.Fatalf("NewCatalogRepository: %v", err)
	}
	ctx := context.Background()

	marcus, err := repo.GetPersona(ctx, "Marcus")
	if err != nil {
		t.Fatalf("GetPersona: %v", err)
	}
	if len(marcus.Rules) != 4 || marcus.Rules[0].Mood != domain.MoodAngry {
		t.Fatalf("expected Marcus custom rules, got %+v", marcus.Rules)
	}
	if marcus.DefaultMood != domain.MoodImpatient {
		t.Fatalf("expected impatient default mood, got %s", marcus.DefaultMood)
	}

	sarah, _ := repo.GetPersona(ctx, "sarah")
	if len(sarah.Rules) != 0 {
		t.Fatalf("sarah should fall back to default rules")
	}

	sc, err := repo.GetScenario(ctx, "workplace_deadline")
	if err != nil {
		t.Fatalf("GetScenario: %v", err)
	}
	if !sc.Includes("marcus") || sc.RoleFor("Marcus") == "" {
		t.Fatalf("expected marcus role in scenario, got %+v", sc)
	}
	for _, id := range sc.PersonaIDs {
		if _, err := repo.GetPersona(ctx, id); err != nil {
			t.Fatalf("scenario references unknown persona %s", id)
		}
	}

	if _, err := repo.GetPersona(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogRepository_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `
personas:
  - id: sarah
    name: Sarah
    biography: Overridden biography.
    default_mood: pleased
  - id: nova
    name: Nova
    biography: New persona.
    rules:
      - mood: hostile
        trigger_keywords: [liar]
        behaviors: [Raise the stakes]
        intensity_threshold: 0.4
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	repo, err := NewCatalogRepository(path)
	if err != nil {
		t.Fatalf("NewCatalogRepository: %v", err)
	}
	ctx := context.Background()

	sarah, _ := repo.GetPersona(ctx, "sarah")
	if sarah.Biography != "Overridden biography." || sarah.DefaultMood != domain.MoodPleased {
		t.Fatalf("expected override, got %+v", sarah)
	}
	nova, err := repo.GetPersona(ctx, "nova")
	if err != nil || len(nova.Rules) != 1 {
		t.Fatalf("expected new persona, got %+v err=%v", nova, err)
	}
	if _, err := repo.GetPersona(ctx, "marcus"); err != nil {
		t.Fatalf("defaults must survive override: %v", err)
	}
}

func TestCatalogRepository_RejectsInvalidMood(t *testing.T) {
	repo, err := NewCatalogRepository("")
	if err != nil {
		t.Fatalf("NewCatalogRepository: %v", err)
	}
	bad := []byte("personas:\n  - id: x\n    name: X\n    rules:\n      - mood: furious\n        trigger_keywords: [a]\n")
	if err := repo.Merge(bad); err == nil {
		t.Fatalf("expected validation error")
	}
}
