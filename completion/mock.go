package completion

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockBackend is a lightweight in-memory Backend useful for tests. Canned
// responses are keyed by the last message's text; a scripted error queue is
// consumed before canned responses, letting tests drive the retry policy.
type MockBackend struct {
	mu        sync.Mutex
	responses map[string]string
	errQueue  []error
	prompts   []Prompt
}

// NewMockBackend constructs an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{responses: make(map[string]string)}
}

// AddResponse registers a deterministic canned completion for an input text.
func (m *MockBackend) AddResponse(input, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[input] = response
}

// FailWith queues errors returned by subsequent Complete calls, in order,
// before any canned response is served.
func (m *MockBackend) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errQueue = append(m.errQueue, errs...)
}

// Complete implements Backend. The prompt is recorded before the context
// check: the caller made the attempt, so call counts must reflect it even
// when the context is already cancelled.
func (m *MockBackend) Complete(ctx context.Context, prompt Prompt, opts Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(m.errQueue) > 0 {
		err := m.errQueue[0]
		m.errQueue = m.errQueue[1:]
		return "", err
	}
	input := lastMessageText(prompt)
	if resp, ok := m.responses[input]; ok {
		return resp, nil
	}
	for key, resp := range m.responses {
		if key != "" && strings.Contains(input, key) {
			return resp, nil
		}
	}
	return fmt.Sprintf("Mock response to: %s", input), nil
}

// Info implements Backend.
func (m *MockBackend) Info() Info { return Info{Provider: "mock"} }

// Calls returns how many Complete calls were made.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of all prompts seen, in call order.
func (m *MockBackend) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Prompt, len(m.prompts))
	copy(out, m.prompts)
	return out
}

func lastMessageText(p Prompt) string {
	if len(p.Messages) == 0 {
		return ""
	}
	return p.Messages[len(p.Messages)-1].Text
}
