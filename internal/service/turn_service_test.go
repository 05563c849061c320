package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"persona-mood/internal/domain"
	"persona-mood/internal/llm"
	"persona-mood/internal/repository"
)

const angryVerdictJSON = `{"mood": "angry", "intensity": 0.85, "reason": "user says it is impossible", "trigger_keywords": ["impossible"]}`

type turnServiceFixture struct {
	svc      *TurnService
	client   *llm.MockClient
	messages *repository.MemoryMessageRepository
	sessions *repository.MemorySessionRepository
	moods    MoodStateStore
}

func newTurnServiceFixture(t *testing.T, handler func(prompt string, o llm.CallOptions) (string, error), limiter TurnRateLimiter) turnServiceFixture {
	t.Helper()
	catalog, err := repository.NewCatalogRepository("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	client := &llm.MockClient{Handler: handler}
	f := turnServiceFixture{
		client:   client,
		messages: repository.NewMemoryMessageRepository(),
		sessions: repository.NewMemorySessionRepository(),
		moods:    NewMemoryMoodStateStore(0),
	}
	f.svc = NewTurnService(TurnServiceDeps{
		Engine:    NewTurnEngine(NewMoodInferenceEngine(client, InferenceConfig{}, nil), nil),
		LLM:       client,
		Personas:  catalog,
		Scenarios: catalog,
		Sessions:  f.sessions,
		Messages:  f.messages,
		Moods:     f.moods,
		Limiter:   limiter,
	})
	return f
}

func angryMarcusHandler(prompt string, o llm.CallOptions) (string, error) {
	if o.Model == llm.ModelFast {
		return angryVerdictJSON, nil
	}
	return "THAT'S YOUR PROBLEM.", nil
}

func TestTurnService_StartSession(t *testing.T) {
	f := newTurnServiceFixture(t, angryMarcusHandler, nil)
	ctx := context.Background()

	view, err := f.svc.StartSession(ctx, "u1", "workplace_deadline", nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if len(view.Session.PersonaIDs) != 3 || view.Session.Status != domain.SessionActive {
		t.Fatalf("unexpected session %+v", view.Session)
	}
	if view.Moods["marcus"].CurrentMood != domain.MoodImpatient {
		t.Fatalf("expected marcus impatient, got %+v", view.Moods["marcus"])
	}
	if view.Moods["sarah"].CurrentMood != domain.MoodNeutral {
		t.Fatalf("expected sarah neutral, got %+v", view.Moods["sarah"])
	}
	if len(f.client.Calls()) != 0 {
		t.Fatalf("starting a session must not call the model")
	}

	if _, err := f.svc.StartSession(ctx, "u1", "nope", nil); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown scenario, got %v", err)
	}
	if _, err := f.svc.StartSession(ctx, "u1", "workplace_deadline", []string{"ghost"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown persona, got %v", err)
	}
}

func TestTurnService_TalkUpdatesMoodAndPersists(t *testing.T) {
	f := newTurnServiceFixture(t, angryMarcusHandler, nil)
	ctx := context.Background()
	view, _ := f.svc.StartSession(ctx, "u1", "workplace_deadline", nil)
	sid := view.Session.ID

	res, err := f.svc.Talk(ctx, "u1", sid, "Marcus", "That's impossible, I can't do it in one week")
	if err != nil {
		t.Fatalf("Talk: %v", err)
	}
	if res.Reply.Content != "THAT'S YOUR PROBLEM." || res.Reply.Role != domain.RolePersona {
		t.Fatalf("unexpected reply %+v", res.Reply)
	}
	if res.Turn.State.CurrentMood != domain.MoodAngry || res.Turn.State.PreviousMood != domain.MoodImpatient {
		t.Fatalf("unexpected state %+v", res.Turn.State)
	}

	calls := f.client.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected inference + dialogue calls, got %d", len(calls))
	}
	if calls[0].Options.Model != llm.ModelFast || calls[1].Options.Model != llm.ModelQuality {
		t.Fatalf("unexpected model hints %+v / %+v", calls[0].Options, calls[1].Options)
	}
	if !strings.Contains(calls[1].Options.System, "RAISE YOUR VOICE") {
		t.Fatalf("dialogue system prompt must carry the matched behaviors")
	}
	if calls[1].Prompt != "That's impossible, I can't do it in one week" {
		t.Fatalf("dialogue prompt must be the utterance, got %q", calls[1].Prompt)
	}

	status, err := f.svc.Status(ctx, "u1", sid)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Moods["marcus"].CurrentMood != domain.MoodAngry || status.Session.TurnCount != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	msgs, _ := f.messages.ListBySession(ctx, sid, "marcus", 0)
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser {
		t.Fatalf("expected user + persona messages, got %+v", msgs)
	}

	// el segundo turno ve el historial y el mood anterior
	if _, err := f.svc.Talk(ctx, "u1", sid, "marcus", "Here is my plan"); err != nil {
		t.Fatalf("second Talk: %v", err)
	}
	second := f.client.Calls()[2].Prompt
	if !strings.Contains(second, "MARCUS: THAT'S YOUR PROBLEM.") || !strings.Contains(second, "Current Mood: angry") {
		t.Fatalf("second inference prompt missing history or prior mood:\n%s", second)
	}
}

func TestTurnService_ReplyFailureKeepsPriorState(t *testing.T) {
	handler := func(prompt string, o llm.CallOptions) (string, error) {
		if o.Model == llm.ModelFast {
			return angryVerdictJSON, nil
		}
		return "", errors.New("503 from provider")
	}
	f := newTurnServiceFixture(t, handler, nil)
	ctx := context.Background()
	view, _ := f.svc.StartSession(ctx, "u1", "workplace_deadline", nil)
	sid := view.Session.ID

	_, err := f.svc.Talk(ctx, "u1", sid, "marcus", "impossible")
	if !errors.Is(err, llm.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	st, found, _ := f.moods.Get(ctx, sid, "marcus")
	if !found || st.CurrentMood != domain.MoodImpatient {
		t.Fatalf("prior state must survive a failed turn, got %+v", st)
	}
	msgs, _ := f.messages.ListBySession(ctx, sid, "marcus", 0)
	if len(msgs) != 0 {
		t.Fatalf("nothing must be persisted, got %d messages", len(msgs))
	}
	sess, _ := f.sessions.GetByID(ctx, sid)
	if sess.TurnCount != 0 {
		t.Fatalf("turn count must not advance, got %d", sess.TurnCount)
	}
}

func TestTurnService_TalkErrors(t *testing.T) {
	f := newTurnServiceFixture(t, angryMarcusHandler, nil)
	ctx := context.Background()
	view, _ := f.svc.StartSession(ctx, "u1", "workplace_deadline", nil)
	sid := view.Session.ID

	tests := []struct {
		name      string
		user      string
		persona   string
		utterance string
		want      error
	}{
		{"mensaje vacio", "u1", "marcus", "   ", ErrInvalidInput},
		{"personaje fuera de la sesion", "u1", "patricia", "hi", ErrPersonaNotInSession},
		{"sesion ajena", "u2", "marcus", "hi", repository.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Talk(ctx, tt.user, sid, tt.persona, tt.utterance); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(f.client.Calls()) != 0 {
		t.Fatalf("rejected turns must not call the model")
	}
}

func TestTurnService_RateLimited(t *testing.T) {
	f := newTurnServiceFixture(t, angryMarcusHandler, NewMemoryTurnRateLimiter(time.Hour, 1))
	ctx := context.Background()
	view, _ := f.svc.StartSession(ctx, "u1", "workplace_deadline", nil)

	if _, err := f.svc.Talk(ctx, "u1", view.Session.ID, "sarah", "hello"); err != nil {
		t.Fatalf("first Talk: %v", err)
	}
	if _, err := f.svc.Talk(ctx, "u1", view.Session.ID, "sarah", "hello again"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestTurnService_BroadcastIsolatesFailures(t *testing.T) {
	handler := func(prompt string, o llm.CallOptions) (string, error) {
		if o.Model == llm.ModelFast {
			if strings.HasPrefix(prompt, "You are analyzing how Kai ") {
				return "", errors.New("timeout")
			}
			return `{"mood": "skeptical", "intensity": 0.6, "reason": "vague", "trigger_keywords": ["maybe"]}`, nil
		}
		return "Prove it.", nil
	}
	f := newTurnServiceFixture(t, handler, nil)
	ctx := context.Background()
	view, _ := f.svc.StartSession(ctx, "u1", "workplace_deadline", nil)
	sid := view.Session.ID

	replies, err := f.svc.Broadcast(ctx, "u1", sid, "Maybe we can push the deadline")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(replies) != 3 {
		t.Fatalf("expected one reply per persona, got %d", len(replies))
	}
	for _, r := range replies {
		switch r.PersonaID {
		case "kai":
			if r.Error == "" || r.Reply != nil {
				t.Fatalf("kai should fail alone, got %+v", r)
			}
		default:
			if r.Error != "" || r.Reply == nil || r.Turn.State.CurrentMood != domain.MoodSkeptical {
				t.Fatalf("unexpected reply for %s: %+v", r.PersonaID, r)
			}
		}
	}

	status, _ := f.svc.Status(ctx, "u1", sid)
	if status.Session.TurnCount != 1 {
		t.Fatalf("expected one turn, got %d", status.Session.TurnCount)
	}
	if status.Moods["kai"].CurrentMood == domain.MoodSkeptical {
		t.Fatalf("kai mood must not change after a failed turn")
	}
}

func TestTurnService_End(t *testing.T) {
	f := newTurnServiceFixture(t, angryMarcusHandler, nil)
	ctx := context.Background()
	view, _ := f.svc.StartSession(ctx, "u1", "family_boundaries", nil)
	sid := view.Session.ID

	ended, err := f.svc.End(ctx, "u1", sid)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Session.Status != domain.SessionEnded || ended.Session.EndedAt == nil {
		t.Fatalf("unexpected ended session %+v", ended.Session)
	}
	if ended.Moods["patricia"].CurrentMood != domain.MoodDefensive {
		t.Fatalf("expected final moods in the summary, got %+v", ended.Moods)
	}

	if _, err := f.svc.Talk(ctx, "u1", sid, "patricia", "hi mom"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
	if _, err := f.svc.End(ctx, "u1", sid); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded on second End, got %v", err)
	}
}
