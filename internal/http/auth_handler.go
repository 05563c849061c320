package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mood/internal/service"
)

// AuthHandler emite tokens de practica. No hay cuentas: el token identifica al dueño de las sesiones.
type AuthHandler struct {
	logger *zap.Logger
	tokens *service.TokenService
}

func NewAuthHandler(logger *zap.Logger, tokens *service.TokenService) *AuthHandler {
	return &AuthHandler{logger: logger, tokens: tokens}
}

// IssueToken maneja POST /auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	if !h.tokens.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "auth disabled"})
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	// body opcional
	_ = c.ShouldBindJSON(&req)

	token, claims, err := h.tokens.Issue(req.UserID)
	if err != nil {
		h.logger.Error("issue token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token": token,
		"user_id":      claims.UserID,
		"expires_at":   claims.ExpiresAt.Time,
	})
}
