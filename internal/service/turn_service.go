package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"persona-mood/internal/domain"
	"persona-mood/internal/llm"
	"persona-mood/internal/repository"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrSessionEnded        = errors.New("session ended")
	ErrPersonaNotInSession = errors.New("persona not in session")
	ErrRateLimited         = errors.New("turn rate limit exceeded")
)

// SessionView es la foto de una sesion con el mood vigente de cada personaje.
type SessionView struct {
	Session  domain.Session              `json:"session"`
	Scenario domain.Scenario             `json:"scenario"`
	Moods    map[string]domain.MoodState `json:"moods"`
}

// TalkResult es la respuesta del personaje mas el detalle del turno.
type TalkResult struct {
	UserMessage domain.Message `json:"user_message"`
	Reply       domain.Message `json:"reply"`
	Turn        TurnResult     `json:"turn"`
}

// BroadcastReply es el resultado de un personaje en Broadcast. Error vacio = ok.
type BroadcastReply struct {
	PersonaID string          `json:"persona_id"`
	Reply     *domain.Message `json:"reply,omitempty"`
	Turn      *TurnResult     `json:"turn,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// TurnServiceDeps agrupa las dependencias de TurnService.
type TurnServiceDeps struct {
	Engine       *TurnEngine
	LLM          llm.LLMClient
	Personas     repository.PersonaRepository
	Scenarios    repository.ScenarioRepository
	Sessions     repository.SessionRepository
	Messages     repository.MessageRepository
	Moods        MoodStateStore
	Limiter      TurnRateLimiter
	HistoryTurns int
	Logger       *zap.Logger
}

// TurnService es el host de las sesiones de practica: carga el estado, corre el
// motor, genera la respuesta y solo entonces persiste mensajes y moods.
type TurnService struct {
	engine       *TurnEngine
	llmClient    llm.LLMClient
	personas     repository.PersonaRepository
	scenarios    repository.ScenarioRepository
	sessions     repository.SessionRepository
	messages     repository.MessageRepository
	moods        MoodStateStore
	limiter      TurnRateLimiter
	historyTurns int
	logger       *zap.Logger

	// un turno a la vez por sesion
	locks sync.Map
}

func NewTurnService(deps TurnServiceDeps) *TurnService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.HistoryTurns <= 0 {
		deps.HistoryTurns = defaultInferenceHistoryTurns
	}
	if deps.Moods == nil {
		deps.Moods = NewMemoryMoodStateStore(0)
	}
	return &TurnService{
		engine:       deps.Engine,
		llmClient:    deps.LLM,
		personas:     deps.Personas,
		scenarios:    deps.Scenarios,
		sessions:     deps.Sessions,
		messages:     deps.Messages,
		moods:        deps.Moods,
		limiter:      deps.Limiter,
		historyTurns: deps.HistoryTurns,
		logger:       deps.Logger,
	}
}

func (s *TurnService) sessionLock(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// StartSession abre una sesion para el escenario. Sin personaIDs se usan los del escenario.
func (s *TurnService) StartSession(ctx context.Context, userID, scenarioID string, personaIDs []string) (SessionView, error) {
	scenario, err := s.scenarios.GetScenario(ctx, scenarioID)
	if err != nil {
		return SessionView{}, fmt.Errorf("get scenario: %w", err)
	}

	ids := personaIDs
	if len(ids) == 0 {
		ids = scenario.PersonaIDs
	}
	if len(ids) == 0 {
		return SessionView{}, fmt.Errorf("%w: scenario %s has no personas", ErrInvalidInput, scenario.ID)
	}

	personas := make([]domain.PersonaProfile, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		p, err := s.personas.GetPersona(ctx, id)
		if err != nil {
			return SessionView{}, fmt.Errorf("get persona: %w", err)
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		personas = append(personas, p)
	}

	session := domain.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		ScenarioID: scenario.ID,
		Status:     domain.SessionActive,
		CreatedAt:  time.Now().UTC(),
	}
	for _, p := range personas {
		session.PersonaIDs = append(session.PersonaIDs, p.ID)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return SessionView{}, fmt.Errorf("create session: %w", err)
	}

	moods := make(map[string]domain.MoodState, len(personas))
	for _, p := range personas {
		st := InitialMoodState(p, scenario.Context)
		if err := s.moods.Set(ctx, session.ID, p.ID, st); err != nil {
			return SessionView{}, fmt.Errorf("store initial mood: %w", err)
		}
		moods[p.ID] = st
	}

	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("scenario_id", scenario.ID),
		zap.Strings("personas", session.PersonaIDs),
	)
	return SessionView{Session: session, Scenario: scenario, Moods: moods}, nil
}

// Talk resuelve un turno con un personaje y genera su respuesta.
// Si algo falla antes de tener la respuesta no se persiste nada.
func (s *TurnService) Talk(ctx context.Context, userID, sessionID, persona, utterance string) (TalkResult, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return TalkResult{}, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	if s.limiter != nil && !s.limiter.Allow(rateKey(userID, sessionID)) {
		return TalkResult{}, ErrRateLimited
	}

	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, scenario, err := s.activeSession(ctx, userID, sessionID)
	if err != nil {
		return TalkResult{}, err
	}
	profile, err := s.resolvePersona(ctx, session, persona)
	if err != nil {
		return TalkResult{}, err
	}

	in, err := s.turnInput(ctx, session, scenario, profile, utterance)
	if err != nil {
		return TalkResult{}, err
	}
	turn, err := s.engine.ResolveTurn(ctx, in)
	if err != nil {
		return TalkResult{}, fmt.Errorf("resolve turn: %w", err)
	}
	reply, err := s.generateReply(ctx, turn, utterance)
	if err != nil {
		return TalkResult{}, err
	}

	userMsg, replyMsg, err := s.persistTurn(ctx, session.ID, profile.ID, utterance, reply, turn.State)
	if err != nil {
		return TalkResult{}, err
	}
	session.TurnCount++
	if err := s.sessions.Update(ctx, session); err != nil {
		return TalkResult{}, fmt.Errorf("update session: %w", err)
	}

	return TalkResult{UserMessage: userMsg, Reply: replyMsg, Turn: turn}, nil
}

// Broadcast manda el mismo mensaje a todos los personajes de la sesion. Cada
// personaje se resuelve por separado; un fallo no afecta al resto.
func (s *TurnService) Broadcast(ctx context.Context, userID, sessionID, utterance string) ([]BroadcastReply, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	if s.limiter != nil && !s.limiter.Allow(rateKey(userID, sessionID)) {
		return nil, ErrRateLimited
	}

	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, scenario, err := s.activeSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	inputs := make([]TurnInput, 0, len(session.PersonaIDs))
	for _, id := range session.PersonaIDs {
		profile, err := s.personas.GetPersona(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get persona: %w", err)
		}
		in, err := s.turnInput(ctx, session, scenario, profile, utterance)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	resolved := s.engine.ResolveTurns(ctx, inputs)
	replies := make([]BroadcastReply, len(resolved))
	texts := make([]string, len(resolved))

	g, gctx := errgroup.WithContext(ctx)
	for i := range resolved {
		i := i
		replies[i].PersonaID = inputs[i].Persona.ID
		if resolved[i].Err != nil {
			replies[i].Error = resolved[i].Err.Error()
			continue
		}
		g.Go(func() error {
			text, err := s.generateReply(gctx, resolved[i].Result, utterance)
			if err != nil {
				replies[i].Error = err.Error()
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	_ = g.Wait()

	answered := 0
	for i := range replies {
		if replies[i].Error != "" {
			continue
		}
		turn := resolved[i].Result
		_, replyMsg, err := s.persistTurn(ctx, session.ID, turn.PersonaID, utterance, texts[i], turn.State)
		if err != nil {
			replies[i].Error = err.Error()
			continue
		}
		replies[i].Reply = &replyMsg
		replies[i].Turn = &turn
		answered++
	}

	if answered > 0 {
		session.TurnCount++
		if err := s.sessions.Update(ctx, session); err != nil {
			return replies, fmt.Errorf("update session: %w", err)
		}
	}
	return replies, nil
}

// Status devuelve la sesion y el mood vigente de cada personaje.
func (s *TurnService) Status(ctx context.Context, userID, sessionID string) (SessionView, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	scenario, err := s.scenarios.GetScenario(ctx, session.ScenarioID)
	if err != nil {
		return SessionView{}, fmt.Errorf("get scenario: %w", err)
	}
	moods, err := s.currentMoods(ctx, session)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{Session: session, Scenario: scenario, Moods: moods}, nil
}

// End cierra la sesion. Devuelve los moods finales y despues los descarta.
func (s *TurnService) End(ctx context.Context, userID, sessionID string) (SessionView, error) {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	view, err := s.Status(ctx, userID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if view.Session.Status == domain.SessionEnded {
		return SessionView{}, ErrSessionEnded
	}

	now := time.Now().UTC()
	view.Session.Status = domain.SessionEnded
	view.Session.EndedAt = &now
	if err := s.sessions.Update(ctx, view.Session); err != nil {
		return SessionView{}, fmt.Errorf("update session: %w", err)
	}
	if err := s.moods.DeleteSession(ctx, sessionID, view.Session.PersonaIDs); err != nil {
		s.logger.Warn("mood cleanup failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.locks.Delete(sessionID)

	s.logger.Info("session ended", zap.String("session_id", sessionID), zap.Int("turns", view.Session.TurnCount))
	return view, nil
}

func (s *TurnService) ownedSession(ctx context.Context, userID, sessionID string) (domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	// una sesion ajena se reporta como inexistente
	if session.UserID != userID {
		return domain.Session{}, fmt.Errorf("get session: session %s: %w", sessionID, repository.ErrNotFound)
	}
	return session, nil
}

func (s *TurnService) activeSession(ctx context.Context, userID, sessionID string) (domain.Session, domain.Scenario, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return domain.Session{}, domain.Scenario{}, err
	}
	if session.Status != domain.SessionActive {
		return domain.Session{}, domain.Scenario{}, ErrSessionEnded
	}
	scenario, err := s.scenarios.GetScenario(ctx, session.ScenarioID)
	if err != nil {
		return domain.Session{}, domain.Scenario{}, fmt.Errorf("get scenario: %w", err)
	}
	return session, scenario, nil
}

// resolvePersona acepta id o nombre, sin distinguir mayusculas.
func (s *TurnService) resolvePersona(ctx context.Context, session domain.Session, persona string) (domain.PersonaProfile, error) {
	key := strings.ToLower(strings.TrimSpace(persona))
	if key == "" {
		return domain.PersonaProfile{}, fmt.Errorf("%w: missing persona", ErrInvalidInput)
	}
	for _, id := range session.PersonaIDs {
		p, err := s.personas.GetPersona(ctx, id)
		if err != nil {
			return domain.PersonaProfile{}, fmt.Errorf("get persona: %w", err)
		}
		if p.ID == key || strings.ToLower(p.Name) == key {
			return p, nil
		}
	}
	return domain.PersonaProfile{}, fmt.Errorf("%w: %s", ErrPersonaNotInSession, persona)
}

func (s *TurnService) turnInput(ctx context.Context, session domain.Session, scenario domain.Scenario, p domain.PersonaProfile, utterance string) (TurnInput, error) {
	in := TurnInput{
		Persona:         p,
		Utterance:       utterance,
		ScenarioContext: scenario.Context,
		RoleContext:     scenario.RoleFor(p.ID),
	}

	prior, found, err := s.moods.Get(ctx, session.ID, p.ID)
	if err != nil {
		return TurnInput{}, fmt.Errorf("load mood: %w", err)
	}
	if found {
		in.Prior = &prior
	}

	msgs, err := s.messages.ListBySession(ctx, session.ID, p.ID, s.historyTurns)
	if err != nil {
		return TurnInput{}, fmt.Errorf("load history: %w", err)
	}
	in.History = historyFromMessages(msgs, p.Name)
	return in, nil
}

// generateReply pide la linea de dialogo con el documento como mensaje de sistema.
func (s *TurnService) generateReply(ctx context.Context, turn TurnResult, utterance string) (string, error) {
	reply, err := s.llmClient.Generate(ctx, utterance,
		llm.WithModel(llm.ModelQuality),
		llm.WithSystem(turn.Document.Text()),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, llm.ErrBackendUnavailable) {
			return "", fmt.Errorf("generate reply: %w", err)
		}
		return "", fmt.Errorf("generate reply: %w: %w", llm.ErrBackendUnavailable, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("generate reply: %w: empty reply", llm.ErrBackendUnavailable)
	}
	return reply, nil
}

func (s *TurnService) persistTurn(ctx context.Context, sessionID, personaID, utterance, reply string, state domain.MoodState) (domain.Message, domain.Message, error) {
	now := time.Now().UTC()
	userMsg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		PersonaID: personaID,
		Role:      domain.RoleUser,
		Content:   utterance,
		CreatedAt: now,
	}
	replyMsg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		PersonaID: personaID,
		Role:      domain.RolePersona,
		Content:   reply,
		CreatedAt: now.Add(time.Millisecond),
	}

	if err := s.messages.Create(ctx, userMsg); err != nil {
		return domain.Message{}, domain.Message{}, fmt.Errorf("persist user message: %w", err)
	}
	if err := s.messages.Create(ctx, replyMsg); err != nil {
		return domain.Message{}, domain.Message{}, fmt.Errorf("persist reply: %w", err)
	}
	if err := s.moods.Set(ctx, sessionID, personaID, state); err != nil {
		return domain.Message{}, domain.Message{}, fmt.Errorf("store mood: %w", err)
	}
	return userMsg, replyMsg, nil
}

func (s *TurnService) currentMoods(ctx context.Context, session domain.Session) (map[string]domain.MoodState, error) {
	moods := make(map[string]domain.MoodState, len(session.PersonaIDs))
	for _, id := range session.PersonaIDs {
		st, found, err := s.moods.Get(ctx, session.ID, id)
		if err != nil {
			return nil, fmt.Errorf("load mood: %w", err)
		}
		if found {
			moods[id] = st
		}
	}
	return moods, nil
}

func historyFromMessages(msgs []domain.Message, personaName string) []domain.HistoryTurn {
	turns := make([]domain.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		speaker := "USER"
		if m.Role == domain.RolePersona {
			speaker = strings.ToUpper(personaName)
		}
		turns = append(turns, domain.HistoryTurn{Speaker: speaker, Content: m.Content})
	}
	return turns
}

func rateKey(userID, sessionID string) string {
	if strings.TrimSpace(userID) != "" {
		return userID
	}
	return "session:" + sessionID
}
