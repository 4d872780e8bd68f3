// ABOUTME: Groq chat-completions client over the OpenAI-compatible REST API.
// ABOUTME: Retries transient failures with bounded exponential backoff.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient talks to the Groq chat-completions endpoint
type GroqClient struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client
	logger  *logrus.Logger
}

// NewGroqClient creates a Groq client for the given model
func NewGroqClient(apiKey, model string, logger *logrus.Logger) *GroqClient {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: groqBaseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *GroqClient) Name() string {
	return "groq"
}

func (c *GroqClient) Available() bool {
	return c.apiKey != ""
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
}

// Generate produces a completion, retrying up to two more times on failure
func (c *GroqClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if !c.Available() {
		return "", &Error{Provider: c.Name(), Err: ErrUnavailable}
	}
	opts = defaultOptions(opts)

	body, err := json.Marshal(groqRequest{
		Model:       c.model,
		Messages:    []groqMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", &Error{Provider: c.Name(), Err: err}
	}

	var content string
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err = backoff.Retry(func() error {
		var callErr error
		content, callErr = c.call(ctx, body)
		if callErr != nil {
			c.logger.WithError(callErr).WithField("component", "llm").Debug("Groq call failed, may retry")
		}
		return callErr
	}, policy)
	if err != nil {
		return "", &Error{Provider: c.Name(), Err: err}
	}
	return content, nil
}

func (c *GroqClient) call(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("groq api error (%d): %s", resp.StatusCode, string(payload))
	}

	var parsed groqResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode groq response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from groq api")
	}
	return parsed.Choices[0].Message.Content, nil
}
