package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mood/internal/service"
)

// SessionHandler expone las sesiones de practica y sus turnos.
type SessionHandler struct {
	logger *zap.Logger
	turns  *service.TurnService
}

func NewSessionHandler(logger *zap.Logger, turns *service.TurnService) *SessionHandler {
	return &SessionHandler{logger: logger, turns: turns}
}

// CreateSession maneja POST /sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req struct {
		ScenarioID string   `json:"scenario_id" binding:"required"`
		PersonaIDs []string `json:"persona_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	view, err := h.turns.StartSession(c.Request.Context(), userID(c), req.ScenarioID, req.PersonaIDs)
	if err != nil {
		writeError(c, h.logger, "start session failed", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GetSession maneja GET /sessions/:id.
func (h *SessionHandler) GetSession(c *gin.Context) {
	view, err := h.turns.Status(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "session status failed", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// EndSession maneja DELETE /sessions/:id.
func (h *SessionHandler) EndSession(c *gin.Context) {
	view, err := h.turns.End(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "end session failed", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PostTurn maneja POST /sessions/:id/turns.
func (h *SessionHandler) PostTurn(c *gin.Context) {
	var req struct {
		Persona string `json:"persona" binding:"required"`
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid turn request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.turns.Talk(c.Request.Context(), userID(c), c.Param("id"), req.Persona, req.Message)
	if err != nil {
		writeError(c, h.logger, "turn failed", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Broadcast maneja POST /sessions/:id/broadcast.
func (h *SessionHandler) Broadcast(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid broadcast request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	replies, err := h.turns.Broadcast(c.Request.Context(), userID(c), c.Param("id"), req.Message)
	if err != nil {
		writeError(c, h.logger, "broadcast failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replies": replies})
}
