package llm

import (
	"context"
	"sync"
)

// Call registra una invocacion recibida por MockClient.
type Call struct {
	Prompt  string
	Options CallOptions
}

// MockClient permite tests sin llamar a un LLM real.
// Si Responses tiene elementos se consumen en orden; luego se usa Response.
// Handler, si esta definido, tiene prioridad sobre todo lo demas.
type MockClient struct {
	Response  string
	Responses []string
	Err       error
	Handler   func(prompt string, opts CallOptions) (string, error)

	mu    sync.Mutex
	calls []Call
}

func (m *MockClient) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	o := ApplyOptions(opts...)

	m.mu.Lock()
	m.calls = append(m.calls, Call{Prompt: prompt, Options: o})
	handler := m.Handler
	var scripted string
	hasScripted := false
	if handler == nil && len(m.Responses) > 0 {
		scripted = m.Responses[0]
		m.Responses = m.Responses[1:]
		hasScripted = true
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(prompt, o)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if hasScripted {
		return scripted, nil
	}
	return m.Response, nil
}

// Calls devuelve una copia de las invocaciones recibidas.
func (m *MockClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
