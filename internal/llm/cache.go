// ABOUTME: In-memory caching decorator for LLM completions to reduce provider API calls.
// ABOUTME: Uses TTL-based expiration keyed by a prompt hash.

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type cacheEntry struct {
	Text      string
	ExpiresAt time.Time
}

// cachingClient wraps a Client and memoizes completions. Reasoning prompts
// repeat across scans of the same target, so a short TTL meaningfully cuts
// provider spend without staleness risk.
type cachingClient struct {
	inner  Client
	mutex  sync.RWMutex
	cache  map[string]*cacheEntry
	ttl    time.Duration
	logger *logrus.Logger
}

func newCachingClient(inner Client, logger *logrus.Logger) Client {
	c := &cachingClient{
		inner:  inner,
		cache:  make(map[string]*cacheEntry),
		ttl:    30 * time.Minute,
		logger: logger,
	}

	go c.startCleanup()

	return c
}

func (c *cachingClient) Name() string {
	return c.inner.Name()
}

func (c *cachingClient) Available() bool {
	return c.inner.Available()
}

func (c *cachingClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	key := cacheKey(prompt, opts)

	c.mutex.RLock()
	entry, exists := c.cache[key]
	c.mutex.RUnlock()
	if exists && time.Now().Before(entry.ExpiresAt) {
		c.logger.WithField("component", "llm_cache").Debug("Cache hit")
		return entry.Text, nil
	}

	text, err := c.inner.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}

	c.mutex.Lock()
	c.cache[key] = &cacheEntry{Text: text, ExpiresAt: time.Now().Add(c.ttl)}
	c.mutex.Unlock()

	return text, nil
}

func (c *cachingClient) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *cachingClient) cleanup() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	expiredCount := 0
	for key, entry := range c.cache {
		if now.After(entry.ExpiresAt) {
			delete(c.cache, key)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		c.logger.WithFields(logrus.Fields{
			"expired_entries":   expiredCount,
			"remaining_entries": len(c.cache),
		}).Debug("LLM cache cleanup completed")
	}
}

func cacheKey(prompt string, opts Options) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%.2f|%d|%s", opts.Temperature, opts.MaxTokens, prompt)))
	return hex.EncodeToString(sum[:])
}
