// ABOUTME: Tests for the narration notifier in disabled and enabled modes.
// ABOUTME: Uses an httptest server to stand in for the TTS API.

package voice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jfeddern/ScanRelay/internal/llm"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestDisabledNotifierStillReturnsEvents(t *testing.T) {
	n := NewNotifier("", "", nil, testLogger())
	if n.Enabled() {
		t.Fatal("notifier without credentials should be disabled")
	}

	ev := n.Greeting(context.Background(), "scan-1", "https://app.example.com")
	if ev.EventType != types.VoiceGreeting {
		t.Errorf("event type = %s, want greeting", ev.EventType)
	}
	if ev.ScanID != "scan-1" || ev.Message == "" {
		t.Errorf("event incomplete: %+v", ev)
	}
}

func TestEnabledNotifierCallsAPI(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("key-123", "voice-abc", nil, testLogger())
	n.baseURL = srv.URL

	ev := n.Finding(context.Background(), "scan-1", types.Finding{
		Title:    "Hardcoded AWS key",
		Severity: types.SeverityCritical,
	})

	if gotPath != "/text-to-speech/voice-abc" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "key-123" {
		t.Errorf("api key header = %s", gotKey)
	}
	if ev.EventType != types.VoiceFinding {
		t.Errorf("event type = %s", ev.EventType)
	}
	if ev.Metadata["severity"] != "critical" {
		t.Errorf("metadata = %+v", ev.Metadata)
	}
}

func TestFindingNarrationUsesLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := llm.NewMockClient()
	client.Response = "Heads up: there is a critical SQL injection in the login form."

	n := NewNotifier("key", "voice", client, testLogger())
	n.baseURL = srv.URL

	ev := n.Finding(context.Background(), "scan-1", types.Finding{
		Title:       "SQL injection",
		Severity:    types.SeverityCritical,
		Description: "user input flows into a query",
	})
	if ev.Message != client.Response {
		t.Errorf("message = %q, want the conversational phrasing", ev.Message)
	}
	if len(client.Calls) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(client.Calls))
	}
	if !strings.Contains(client.Calls[0], "SQL injection") {
		t.Errorf("prompt missing finding context: %q", client.Calls[0])
	}
}

func TestNarrationFallsBackToTemplateOnLLMError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := llm.NewMockClient()
	client.FailWith = errors.New("quota exhausted")

	n := NewNotifier("key", "voice", client, testLogger())
	n.baseURL = srv.URL

	ev := n.Finding(context.Background(), "scan-1", types.Finding{
		Title:    "Hardcoded AWS key",
		Severity: types.SeverityCritical,
	})
	if ev.Message != "critical severity finding: Hardcoded AWS key." {
		t.Errorf("message = %q, want the template fallback", ev.Message)
	}
}

func TestDisabledNotifierNeverCallsLLM(t *testing.T) {
	client := llm.NewMockClient()

	n := NewNotifier("", "", client, testLogger())
	ev := n.Finding(context.Background(), "scan-1", types.Finding{
		Title:    "Open redirect",
		Severity: types.SeverityHigh,
	})
	if len(client.Calls) != 0 {
		t.Errorf("disabled notifier made %d llm calls", len(client.Calls))
	}
	if ev.Message == "" {
		t.Error("event message should still be templated")
	}
}

func TestAPIFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewNotifier("key", "voice", nil, testLogger())
	n.baseURL = srv.URL

	ev := n.Completion(context.Background(), "scan-1", 7)
	if ev.EventType != types.VoiceCompletion {
		t.Errorf("event should still be produced on API failure: %+v", ev)
	}
	if ev.Metadata["finding_count"] != 7 {
		t.Errorf("finding_count = %v", ev.Metadata["finding_count"])
	}
}
