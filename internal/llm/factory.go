// ABOUTME: Factory for selecting the LLM provider with fallback support.
// ABOUTME: Centralizes provider instantiation; returns nil when nothing is configured.

package llm

import (
	"github.com/sirupsen/logrus"
)

// Config holds provider selection and credentials
type Config struct {
	Provider     string // "groq", "gemini", or "mock"
	Model        string
	GroqAPIKey   string
	GeminiAPIKey string
}

// NewClient creates the configured client, falling back to any provider with
// credentials when the preferred one has none. Returns nil when no provider
// is usable; callers treat a nil client as degraded mode.
func NewClient(cfg Config, logger *logrus.Logger) Client {
	log := logger.WithField("component", "llm")

	switch cfg.Provider {
	case "groq":
		if cfg.GroqAPIKey != "" {
			log.Info("Using Groq as primary LLM provider")
			return newCachingClient(NewGroqClient(cfg.GroqAPIKey, cfg.Model, logger), logger)
		}
		log.Warn("Groq selected but API key not configured, trying fallback")
	case "gemini":
		if cfg.GeminiAPIKey != "" {
			log.Info("Using Gemini as primary LLM provider")
			return newCachingClient(NewGeminiClient(cfg.GeminiAPIKey, cfg.Model, logger), logger)
		}
		log.Warn("Gemini selected but API key not configured, trying fallback")
	case "mock":
		log.Info("Using mock LLM client")
		return NewMockClient()
	}

	// Fallback chain: groq first, then gemini
	if cfg.GroqAPIKey != "" && cfg.Provider != "groq" {
		log.Info("Using Groq as fallback LLM provider")
		return newCachingClient(NewGroqClient(cfg.GroqAPIKey, cfg.Model, logger), logger)
	}
	if cfg.GeminiAPIKey != "" && cfg.Provider != "gemini" {
		log.Info("Using Gemini as fallback LLM provider")
		return newCachingClient(NewGeminiClient(cfg.GeminiAPIKey, cfg.Model, logger), logger)
	}

	log.WithField("requested", cfg.Provider).Warn("No LLM provider available - reasoning features disabled")
	return nil
}
