// ABOUTME: LLM client abstraction used by the reasoning agents.
// ABOUTME: Defines the Generate contract, generation options, and the shared error type.

package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates no provider is configured for the requested operation
var ErrUnavailable = errors.New("llm client not available")

// Error wraps any provider failure so callers can degrade uniformly
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options tune a single generation call
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Client abstracts one LLM provider. Reasoning steps treat any error as a
// signal to degrade, never as a hard failure.
type Client interface {
	// Generate produces a text completion for the prompt.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	// Available reports whether the client is configured to serve requests.
	Available() bool
	// Name identifies the provider for logging.
	Name() string
}

func defaultOptions(opts Options) Options {
	if opts.Temperature <= 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return opts
}
