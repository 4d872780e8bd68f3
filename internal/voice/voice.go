// ABOUTME: Optional spoken narration of scan milestones via a TTS HTTP API.
// ABOUTME: Narration failures are logged and swallowed; scans never depend on it.

package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jfeddern/ScanRelay/internal/llm"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.elevenlabs.io/v1"

const (
	phraseTemperature = 0.6
	phraseMaxTokens   = 80
)

// Notifier narrates scan events. With no API key or voice id configured it is
// disabled and every method degrades to returning the event unspoken. An LLM
// client, when provided, rewords finding and thought narration conversationally.
type Notifier struct {
	apiKey  string
	voiceID string
	baseURL string
	httpc   *http.Client
	llm     llm.Client
	logger  *logrus.Logger
}

// NewNotifier creates a narration notifier. Empty credentials disable it.
// The LLM client may be nil; narration then uses template phrasing.
func NewNotifier(apiKey, voiceID string, client llm.Client, logger *logrus.Logger) *Notifier {
	return &Notifier{
		apiKey:  apiKey,
		voiceID: voiceID,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		llm:     client,
		logger:  logger,
	}
}

// Enabled reports whether narration is configured
func (n *Notifier) Enabled() bool {
	return n.apiKey != "" && n.voiceID != ""
}

// Greeting narrates the start of a scan
func (n *Notifier) Greeting(ctx context.Context, scanID, target string) types.VoiceEvent {
	msg := fmt.Sprintf("Starting security scan of %s. Agents are standing by.", target)
	return n.emit(ctx, scanID, types.VoiceGreeting, msg, nil)
}

// AgentStart narrates an agent beginning its work
func (n *Notifier) AgentStart(ctx context.Context, scanID string, agent types.AgentName) types.VoiceEvent {
	msg := fmt.Sprintf("The %s agent is starting.", agent)
	return n.emit(ctx, scanID, types.VoiceAgentStart, msg, map[string]any{"agent": string(agent)})
}

// Thought narrates an agent's reasoning step
func (n *Notifier) Thought(ctx context.Context, scanID string, thought types.AgentThought) types.VoiceEvent {
	prompt := fmt.Sprintf("Rephrase this security agent's reasoning as one short spoken sentence: %s", thought.Thought)
	msg := n.phrase(ctx, prompt, thought.Thought)
	return n.emit(ctx, scanID, types.VoiceThinking, msg, map[string]any{"agent": string(thought.Agent)})
}

// Finding narrates a significant finding
func (n *Notifier) Finding(ctx context.Context, scanID string, finding types.Finding) types.VoiceEvent {
	fallback := fmt.Sprintf("%s severity finding: %s.", finding.Severity, finding.Title)
	prompt := fmt.Sprintf("In one short spoken sentence, explain this %s severity security finding to a developer: %s. %s",
		finding.Severity, finding.Title, finding.Description)
	msg := n.phrase(ctx, prompt, fallback)
	return n.emit(ctx, scanID, types.VoiceFinding, msg, map[string]any{
		"severity": string(finding.Severity),
		"agent":    string(finding.SourceAgent),
	})
}

// Completion narrates the end of a scan
func (n *Notifier) Completion(ctx context.Context, scanID string, findingCount int) types.VoiceEvent {
	msg := fmt.Sprintf("Scan complete with %d findings. The full report is ready.", findingCount)
	return n.emit(ctx, scanID, types.VoiceCompletion, msg, map[string]any{"finding_count": findingCount})
}

// phrase rewords narration text conversationally. Only enabled notifiers
// spend LLM calls on narration; the caching client upstream deduplicates
// repeated prompts. Any failure falls back to the template text.
func (n *Notifier) phrase(ctx context.Context, prompt, fallback string) string {
	if !n.Enabled() || n.llm == nil || !n.llm.Available() {
		return fallback
	}
	text, err := n.llm.Generate(ctx, prompt, llm.Options{Temperature: phraseTemperature, MaxTokens: phraseMaxTokens})
	if err != nil {
		n.logger.WithError(err).WithField("component", "voice").Debug("Conversational phrasing failed, using template")
		return fallback
	}
	if text = strings.TrimSpace(text); text != "" {
		return text
	}
	return fallback
}

func (n *Notifier) emit(ctx context.Context, scanID string, eventType types.VoiceEventType, message string, metadata map[string]any) types.VoiceEvent {
	event := types.VoiceEvent{
		ScanID:    scanID,
		EventType: eventType,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	if !n.Enabled() {
		return event
	}
	if err := n.speak(ctx, message); err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"component":  "voice",
			"scan_id":    scanID,
			"event_type": eventType,
		}).Warn("Narration failed")
	}
	return event
}

func (n *Notifier) speak(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_turbo_v2",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", n.baseURL, n.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", n.apiKey)

	resp, err := n.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Audio payload is discarded; playback happens client-side off the
	// websocket voice events
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<22)); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts api error (%d)", resp.StatusCode)
	}
	return nil
}
