package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mood/internal/llm"
	"persona-mood/internal/repository"
	"persona-mood/internal/service"
)

func setupRouter(t *testing.T, client *llm.MockClient, secret string) (*gin.Engine, *service.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := repository.NewCatalogRepository("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	inference := service.NewMoodInferenceEngine(client, service.InferenceConfig{}, zap.NewNop())
	turns := service.NewTurnService(service.TurnServiceDeps{
		Engine:    service.NewTurnEngine(inference, zap.NewNop()),
		LLM:       client,
		Personas:  catalog,
		Scenarios: catalog,
		Sessions:  repository.NewMemorySessionRepository(),
		Messages:  repository.NewMemoryMessageRepository(),
		Moods:     service.NewMemoryMoodStateStore(0),
	})
	tools := service.NewDevTools(catalog, inference, zap.NewNop())
	tokens := service.NewTokenService(secret, time.Hour)

	r := NewRouter(
		zap.NewNop(),
		tokens,
		NewAuthHandler(zap.NewNop(), tokens),
		NewSessionHandler(zap.NewNop(), turns),
		NewPersonaHandler(zap.NewNop(), catalog, tools),
		true,
	)
	return r, tokens
}

func performRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func marcusHandler(prompt string, o llm.CallOptions) (string, error) {
	if o.Model == llm.ModelFast {
		return `{"mood": "angry", "intensity": 0.9, "reason": "excuses", "trigger_keywords": ["impossible"]}`, nil
	}
	return "I don't WANT TO HEAR IT.", nil
}

func TestRouter_SessionLifecycle(t *testing.T) {
	r, tokens := setupRouter(t, &llm.MockClient{Handler: marcusHandler}, "secret")
	token, _, _ := tokens.Issue("u1")

	rec := performRequest(r, http.MethodPost, "/sessions", token, map[string]any{"scenario_id": "workplace_deadline"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created service.SessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sid := created.Session.ID

	rec = performRequest(r, http.MethodPost, "/sessions/"+sid+"/turns", token, map[string]any{
		"persona": "marcus",
		"message": "That's impossible",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var talk service.TalkResult
	if err := json.Unmarshal(rec.Body.Bytes(), &talk); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if talk.Reply.Content != "I don't WANT TO HEAR IT." || talk.Turn.State.CurrentMood != "angry" {
		t.Fatalf("unexpected talk result %+v", talk)
	}

	// otro usuario no ve la sesion
	other, _, _ := tokens.Issue("u2")
	if rec := performRequest(r, http.MethodGet, "/sessions/"+sid, other, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session, got %d", rec.Code)
	}

	if rec := performRequest(r, http.MethodDelete, "/sessions/"+sid, token, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on end, got %d", rec.Code)
	}
	rec = performRequest(r, http.MethodPost, "/sessions/"+sid+"/turns", token, map[string]any{"persona": "marcus", "message": "hello?"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 after end, got %d", rec.Code)
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	failing := &llm.MockClient{Err: errors.New("connection reset")}
	r, _ := setupRouter(t, failing, "")

	rec := performRequest(r, http.MethodPost, "/sessions", "", map[string]any{"scenario_id": "workplace_deadline"})
	var created service.SessionView
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	tests := []struct {
		name string
		path string
		body map[string]any
		want int
	}{
		{"backend caido", "/sessions/" + created.Session.ID + "/turns", map[string]any{"persona": "sarah", "message": "hi"}, http.StatusBadGateway},
		{"personaje ajeno", "/sessions/" + created.Session.ID + "/turns", map[string]any{"persona": "robert", "message": "hi"}, http.StatusBadRequest},
		{"sesion inexistente", "/sessions/missing/turns", map[string]any{"persona": "sarah", "message": "hi"}, http.StatusNotFound},
		{"body invalido", "/sessions/" + created.Session.ID + "/turns", map[string]any{"persona": "sarah"}, http.StatusBadRequest},
		{"escenario inexistente", "/sessions", map[string]any{"scenario_id": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := performRequest(r, http.MethodPost, tt.path, "", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRouter_CatalogAndDebug(t *testing.T) {
	r, _ := setupRouter(t, &llm.MockClient{Handler: marcusHandler}, "")

	rec := performRequest(r, http.MethodGet, "/personas/marcus/rules?mood=angry", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "RAISE YOUR VOICE") {
		t.Fatalf("unexpected rules response %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(r, http.MethodGet, "/scenarios?type=family", "", nil)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "workplace_deadline") {
		t.Fatalf("expected only family scenarios, got %s", rec.Body.String())
	}

	rec = performRequest(r, http.MethodPost, "/debug/prompt", "", map[string]any{
		"persona_id": "marcus",
		"mood":       "angry",
		"intensity":  0.9,
		"message":    "that's impossible",
	})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "CURRENT EMOTIONAL STATE") {
		t.Fatalf("unexpected debug prompt %d: %s", rec.Code, rec.Body.String())
	}

	rec = performRequest(r, http.MethodPost, "/debug/prompt", "", map[string]any{"persona_id": "marcus", "mood": "furious"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid mood, got %d", rec.Code)
	}

	rec = performRequest(r, http.MethodPost, "/auth/token", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with auth disabled, got %d", rec.Code)
	}
}
