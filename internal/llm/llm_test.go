// ABOUTME: Unit tests for LLM provider selection, caching, and the mock client.
// ABOUTME: Verifies fallback chains and TTL cache hit behavior.

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestNewClientProviderSelection(t *testing.T) {
	logger := testLogger()

	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantNil  bool
	}{
		{
			name:     "groq primary",
			cfg:      Config{Provider: "groq", GroqAPIKey: "gk"},
			wantName: "groq",
		},
		{
			name:     "gemini primary",
			cfg:      Config{Provider: "gemini", GeminiAPIKey: "gm"},
			wantName: "gemini",
		},
		{
			name:     "groq missing key falls back to gemini",
			cfg:      Config{Provider: "groq", GeminiAPIKey: "gm"},
			wantName: "gemini",
		},
		{
			name:     "gemini missing key falls back to groq",
			cfg:      Config{Provider: "gemini", GroqAPIKey: "gk"},
			wantName: "groq",
		},
		{
			name:     "mock provider",
			cfg:      Config{Provider: "mock"},
			wantName: "mock",
		},
		{
			name:    "nothing configured",
			cfg:     Config{Provider: "groq"},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.cfg, logger)
			if tt.wantNil {
				if client != nil {
					t.Fatalf("expected nil client, got %s", client.Name())
				}
				return
			}
			if client == nil {
				t.Fatal("expected a client, got nil")
			}
			if client.Name() != tt.wantName {
				t.Errorf("provider = %s, want %s", client.Name(), tt.wantName)
			}
			if !client.Available() {
				t.Error("configured client should be available")
			}
		})
	}
}

type countingClient struct {
	calls int
	text  string
	err   error
}

func (c *countingClient) Name() string    { return "counting" }
func (c *countingClient) Available() bool { return true }
func (c *countingClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.text, nil
}

func TestCachingClientMemoizes(t *testing.T) {
	inner := &countingClient{text: "answer"}
	client := newCachingClient(inner, testLogger())

	ctx := context.Background()
	opts := Options{Temperature: 0.5, MaxTokens: 100}

	for i := 0; i < 3; i++ {
		got, err := client.Generate(ctx, "same prompt", opts)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if got != "answer" {
			t.Errorf("got %q, want %q", got, "answer")
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner client called %d times, want 1", inner.calls)
	}

	// Different options miss the cache
	if _, err := client.Generate(ctx, "same prompt", Options{Temperature: 0.9, MaxTokens: 100}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner client called %d times, want 2", inner.calls)
	}
}

func TestCachingClientDoesNotCacheErrors(t *testing.T) {
	inner := &countingClient{err: errors.New("boom")}
	client := newCachingClient(inner, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := client.Generate(context.Background(), "p", Options{}); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("errors must not be cached, inner called %d times", inner.calls)
	}
}

func TestCacheCleanupDropsExpired(t *testing.T) {
	inner := &countingClient{text: "x"}
	c := &cachingClient{
		inner:  inner,
		cache:  map[string]*cacheEntry{"old": {Text: "x", ExpiresAt: time.Now().Add(-time.Minute)}},
		ttl:    time.Minute,
		logger: testLogger(),
	}

	c.cleanup()

	if len(c.cache) != 0 {
		t.Errorf("expired entry should be removed, %d remain", len(c.cache))
	}
}

func TestMockClientUnavailable(t *testing.T) {
	mock := NewMockClient()
	mock.SetAvailable(false)

	_, err := mock.Generate(context.Background(), "p", Options{})
	if err == nil {
		t.Fatal("expected error from unavailable mock")
	}

	var llmErr *Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Error("error should unwrap to ErrUnavailable")
	}
}
