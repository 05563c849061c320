package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"persona-mood/internal/domain"
)

// ErrNotFound se devuelve cuando la entidad pedida no existe.
var ErrNotFound = errors.New("not found")

//go:embed catalog_default.yaml
var defaultCatalogYAML []byte

type PersonaRepository interface {
	GetPersona(ctx context.Context, id string) (domain.PersonaProfile, error)
	ListPersonas(ctx context.Context) ([]domain.PersonaProfile, error)
}

type ScenarioRepository interface {
	GetScenario(ctx context.Context, id string) (domain.Scenario, error)
	ListScenarios(ctx context.Context) ([]domain.Scenario, error)
}

type catalogFile struct {
	Personas  []domain.PersonaProfile `yaml:"personas"`
	Scenarios []domain.Scenario       `yaml:"scenarios"`
}

// CatalogRepository es el contenido de personajes y escenarios, de solo lectura.
type CatalogRepository struct {
	mu        sync.RWMutex
	personas  map[string]domain.PersonaProfile
	scenarios map[string]domain.Scenario
}

// NewCatalogRepository carga el catalogo embebido y, si path no es vacio,
// aplica encima el archivo YAML (mismo id reemplaza, id nuevo agrega).
func NewCatalogRepository(path string) (*CatalogRepository, error) {
	r := &CatalogRepository{
		personas:  make(map[string]domain.PersonaProfile),
		scenarios: make(map[string]domain.Scenario),
	}
	if err := r.Merge(defaultCatalogYAML); err != nil {
		return nil, fmt.Errorf("default catalog: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	if err := r.Merge(data); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return r, nil
}

// Merge decodifica un documento YAML de catalogo y lo agrega.
func (r *CatalogRepository) Merge(data []byte) error {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}

	for i, p := range f.Personas {
		if err := validatePersona(p); err != nil {
			return fmt.Errorf("persona #%d: %w", i, err)
		}
	}
	for i, s := range f.Scenarios {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("scenario #%d: missing id", i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range f.Personas {
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		r.personas[p.ID] = p
	}
	for _, s := range f.Scenarios {
		s.ID = strings.ToLower(strings.TrimSpace(s.ID))
		if s.CharacterRoles != nil {
			roles := make(map[string]string, len(s.CharacterRoles))
			for k, v := range s.CharacterRoles {
				roles[strings.ToLower(k)] = v
			}
			s.CharacterRoles = roles
		}
		r.scenarios[s.ID] = s
	}
	return nil
}

func validatePersona(p domain.PersonaProfile) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("missing id")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%s: missing name", p.ID)
	}
	if p.DefaultMood != "" && !p.DefaultMood.IsValid() {
		return fmt.Errorf("%s: invalid default_mood %q", p.ID, p.DefaultMood)
	}
	for i, rule := range p.Rules {
		if !rule.Mood.IsValid() {
			return fmt.Errorf("%s: rule #%d: invalid mood %q", p.ID, i, rule.Mood)
		}
		if rule.IntensityThreshold < 0 || rule.IntensityThreshold > 1 {
			return fmt.Errorf("%s: rule #%d: threshold out of range", p.ID, i)
		}
	}
	return nil
}

func (r *CatalogRepository) GetPersona(ctx context.Context, id string) (domain.PersonaProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return domain.PersonaProfile{}, fmt.Errorf("persona %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (r *CatalogRepository) ListPersonas(ctx context.Context) ([]domain.PersonaProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PersonaProfile, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CatalogRepository) GetScenario(ctx context.Context, id string) (domain.Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenarios[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return domain.Scenario{}, fmt.Errorf("scenario %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (r *CatalogRepository) ListScenarios(ctx context.Context) ([]domain.Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Scenario, 0, len(r.scenarios))
	for _, s := range r.scenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
