package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mood/internal/repository"
	"persona-mood/internal/service"
)

// PersonaHandler expone el catalogo y las herramientas de depuracion.
type PersonaHandler struct {
	logger    *zap.Logger
	scenarios repository.ScenarioRepository
	tools     *service.DevTools
}

func NewPersonaHandler(logger *zap.Logger, scenarios repository.ScenarioRepository, tools *service.DevTools) *PersonaHandler {
	return &PersonaHandler{logger: logger, scenarios: scenarios, tools: tools}
}

// ListPersonas maneja GET /personas.
func (h *PersonaHandler) ListPersonas(c *gin.Context) {
	chars, err := h.tools.ListCharacters(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "list personas failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"personas": chars})
}

// ListRules maneja GET /personas/:id/rules?mood=angry.
func (h *PersonaHandler) ListRules(c *gin.Context) {
	rules, err := h.tools.ListRules(c.Request.Context(), c.Param("id"), c.Query("mood"))
	if err != nil {
		writeError(c, h.logger, "list rules failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"persona_id": strings.ToLower(c.Param("id")), "rules": rules})
}

// ListScenarios maneja GET /scenarios?type=workplace.
func (h *PersonaHandler) ListScenarios(c *gin.Context) {
	all, err := h.scenarios.ListScenarios(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "list scenarios failed", err)
		return
	}
	kind := strings.ToLower(strings.TrimSpace(c.Query("type")))
	if kind == "" {
		c.JSON(http.StatusOK, gin.H{"scenarios": all})
		return
	}
	filtered := all[:0]
	for _, s := range all {
		if string(s.Type) == kind {
			filtered = append(filtered, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": filtered})
}

// GetScenario maneja GET /scenarios/:id.
func (h *PersonaHandler) GetScenario(c *gin.Context) {
	s, err := h.scenarios.GetScenario(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get scenario failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenario": s})
}

type probeRequest struct {
	PersonaID       string  `json:"persona_id" binding:"required"`
	Mood            string  `json:"mood" binding:"required"`
	Intensity       float64 `json:"intensity"`
	Message         string  `json:"message"`
	ScenarioContext string  `json:"scenario_context"`
}

// DebugPrompt maneja POST /debug/prompt: documento completo para un mood forzado.
func (h *PersonaHandler) DebugPrompt(c *gin.Context) {
	var req probeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid debug prompt request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	probe, err := h.tools.ShowPrompt(c.Request.Context(), service.ProbeRequest{
		PersonaID:       req.PersonaID,
		Mood:            req.Mood,
		Intensity:       req.Intensity,
		Utterance:       req.Message,
		ScenarioContext: req.ScenarioContext,
	})
	if err != nil {
		writeError(c, h.logger, "debug prompt failed", err)
		return
	}
	c.JSON(http.StatusOK, probe)
}

// DebugPipeline maneja POST /debug/pipeline: inferencia real desde el estado inicial.
func (h *PersonaHandler) DebugPipeline(c *gin.Context) {
	var req struct {
		PersonaID       string `json:"persona_id" binding:"required"`
		Message         string `json:"message" binding:"required"`
		ScenarioContext string `json:"scenario_context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid debug pipeline request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.tools.MoodPipeline(c.Request.Context(), req.PersonaID, req.Message, req.ScenarioContext, nil)
	if err != nil {
		writeError(c, h.logger, "debug pipeline failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CompareMoods maneja POST /debug/compare.
func (h *PersonaHandler) CompareMoods(c *gin.Context) {
	var req struct {
		PersonaID string   `json:"persona_id" binding:"required"`
		Message   string   `json:"message" binding:"required"`
		Moods     []string `json:"moods" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid compare request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rows, err := h.tools.CompareMoods(c.Request.Context(), req.PersonaID, req.Message, req.Moods)
	if err != nil {
		writeError(c, h.logger, "compare moods failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comparison": rows})
}
