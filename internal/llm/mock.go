// ABOUTME: Mock LLM client for tests and local runs without provider credentials.
// ABOUTME: Returns canned responses and can be scripted to fail.

package llm

import (
	"context"
	"errors"
	"sync"
)

// MockClient is a scriptable in-memory Client implementation
type MockClient struct {
	mu        sync.Mutex
	Response  string
	FailWith  error
	Calls     []string
	available bool
}

// NewMockClient returns an always-available mock client
func NewMockClient() *MockClient {
	return &MockClient{
		Response:  "Mock LLM response for testing purposes.",
		available: true,
	}
}

func (m *MockClient) Name() string {
	return "mock"
}

func (m *MockClient) Available() bool {
	return m.available
}

// SetAvailable toggles the availability the client reports
func (m *MockClient) SetAvailable(v bool) {
	m.available = v
}

func (m *MockClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, prompt)
	if !m.available {
		return "", &Error{Provider: m.Name(), Err: ErrUnavailable}
	}
	if m.FailWith != nil {
		return "", &Error{Provider: m.Name(), Err: m.FailWith}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return "", &Error{Provider: m.Name(), Err: err}
	}
	return m.Response, nil
}
