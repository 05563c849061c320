package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrBackendUnavailable indica que el proveedor de completions no respondio de forma util.
var ErrBackendUnavailable = errors.New("llm backend unavailable")

// ModelHint selecciona entre el modelo rapido (inferencia) y el de calidad (dialogo).
type ModelHint string

const (
	ModelFast    ModelHint = "fast"
	ModelQuality ModelHint = "quality"
)

// CallOptions son los parametros opcionales de una llamada.
type CallOptions struct {
	Model  ModelHint
	System string
}

type Option func(*CallOptions)

func WithModel(m ModelHint) Option {
	return func(o *CallOptions) { o.Model = m }
}

// WithSystem agrega un mensaje de sistema antes del prompt de usuario.
func WithSystem(system string) Option {
	return func(o *CallOptions) { o.System = system }
}

// ApplyOptions resuelve las opciones con sus valores por defecto.
func ApplyOptions(opts ...Option) CallOptions {
	o := CallOptions{Model: ModelFast}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// LLMClient define la interfaz para generar respuestas con un LLM.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// HTTPClientConfig agrupa los parametros del cliente OpenAI-compatible.
type HTTPClientConfig struct {
	BaseURL       string
	APIKey        string
	ModelFast     string
	ModelQuality  string
	Temperature   float64
	MaxTokens     int
	RatePerSecond float64
	Timeout       time.Duration
}

// HTTPClient implementa LLMClient usando la API de OpenAI-compatible.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	models      map[ModelHint]string
	temperature float64
	maxTokens   int
	client      *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewHTTPClient construye un cliente HTTP apuntando a la API de chat completions.
func NewHTTPClient(cfg HTTPClientConfig, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	quality := cfg.ModelQuality
	if quality == "" {
		quality = cfg.ModelFast
	}

	// Sin tasa configurada no se limita.
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
		models:      map[ModelHint]string{ModelFast: cfg.ModelFast, ModelQuality: quality},
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}
}

func (c *HTTPClient) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := ApplyOptions(opts...)

	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: rate limiter: %v", ErrBackendUnavailable, err)
	}

	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(o.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: o.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := chatRequest{
		Model:       c.models[o.Model],
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: do request: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrBackendUnavailable, err)
	}

	c.logger.Debug("llm call finished",
		zap.String("model", reqBody.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		c.logger.Warn("llm error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(respBody), 500)),
		)
		return "", fmt.Errorf("%w: status=%d", ErrBackendUnavailable, resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", ErrBackendUnavailable, err)
	}

	if cr.Error != nil {
		return "", fmt.Errorf("%w: api error: %s", ErrBackendUnavailable, cr.Error.Message)
	}

	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty response", ErrBackendUnavailable)
	}

	return cr.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
