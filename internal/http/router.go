package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-mood/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	tokens *service.TokenService,
	authH *AuthHandler,
	sessionH *SessionHandler,
	personaH *PersonaHandler,
	debug bool,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.POST("/auth/token", authH.IssueToken)

	r.GET("/personas", personaH.ListPersonas)
	r.GET("/personas/:id/rules", personaH.ListRules)
	r.GET("/scenarios", personaH.ListScenarios)
	r.GET("/scenarios/:id", personaH.GetScenario)

	sessions := r.Group("/sessions", JWTAuthMiddleware(tokens))
	sessions.POST("", sessionH.CreateSession)
	sessions.GET("/:id", sessionH.GetSession)
	sessions.DELETE("/:id", sessionH.EndSession)
	sessions.POST("/:id/turns", sessionH.PostTurn)
	sessions.POST("/:id/broadcast", sessionH.Broadcast)

	dbg := r.Group("/debug")
	dbg.POST("/prompt", personaH.DebugPrompt)
	dbg.POST("/compare", personaH.CompareMoods)
	// la pipeline llama al modelo; solo en modo debug
	if debug {
		dbg.POST("/pipeline", personaH.DebugPipeline)
	}

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
