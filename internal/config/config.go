package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	LLMAPIKey        string        `env:"LLM_API_KEY,required"`
	LLMBaseURL       string        `env:"LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	LLMModelFast     string        `env:"LLM_MODEL_FAST" envDefault:"llama-3.1-8b-instant"`
	LLMModelQuality  string        `env:"LLM_MODEL_QUALITY" envDefault:"llama-3.3-70b-versatile"`
	LLMTemperature   float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxTokens     int           `env:"LLM_MAX_TOKENS" envDefault:"500"`
	LLMRatePerSecond float64       `env:"LLM_RATE_PER_SECOND" envDefault:"5"`
	LLMTimeout       time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	TurnRateWindow time.Duration `env:"TURN_RATE_WINDOW" envDefault:"1m"`
	TurnRateMax    int64         `env:"TURN_RATE_MAX" envDefault:"30"`

	JWTSecret string `env:"JWT_SECRET"`

	CatalogPath           string `env:"CATALOG_PATH"`
	MoodHistoryLimit      int    `env:"MOOD_HISTORY_LIMIT" envDefault:"5"`
	InferenceHistoryTurns int    `env:"INFERENCE_HISTORY_TURNS" envDefault:"6"`
	DebugMode             bool   `env:"DEBUG_MODE" envDefault:"false"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HasDatabase indica si hay Postgres configurado; sin él se usan stores en memoria.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}
