package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Ensure Client implements the embedding, generation and monitoring ports
var (
	_ driven.EmbeddingService  = (*Client)(nil)
	_ driven.AnswerGenerator   = (*Client)(nil)
	_ driven.CredentialMonitor = (*Client)(nil)
)

const (
	DefaultDimensions  = 768
	DefaultCallTimeout = 30 * time.Second
)

// ClientConfig configures the rotating client.
type ClientConfig struct {
	// Provider performs the remote calls. Ignored when Keys is empty.
	Provider driven.ProviderClient

	// Keys are tried in order
	Keys []string

	Dimensions     int
	RecoveryWindow time.Duration
	CallTimeout    time.Duration
	Logger         *slog.Logger
}

// Client rotates across API keys on quota errors. With no keys it serves
// deterministic mock output so the pipeline stays usable offline.
type Client struct {
	provider driven.ProviderClient
	pool     *KeyPool
	mock     *MockProvider
	dims     int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewClient creates a client. Provider may be nil only when no keys are set.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		provider: cfg.Provider,
		pool:     NewKeyPool(cfg.Keys, cfg.RecoveryWindow),
		dims:     cfg.Dimensions,
		timeout:  cfg.CallTimeout,
		logger:   cfg.Logger,
	}
	if c.pool.Len() == 0 {
		c.mock = NewMockProvider(cfg.Dimensions)
		c.logger.Warn("no AI API keys configured, using mock provider")
		return c, nil
	}
	if c.provider == nil {
		return nil, fmt.Errorf("%w: provider required when API keys are set", domain.ErrInvalidProvider)
	}
	c.logger.Info("AI key pool loaded", "provider", c.provider.Name(), "keys", c.pool.Len())
	return c, nil
}

// IsMock reports whether the client is running without credentials.
func (c *Client) IsMock() bool {
	return c.mock != nil
}

// Pool exposes the key pool for status reporting.
func (c *Client) Pool() *KeyPool {
	return c.pool
}

// Embed returns a vector of Dimensions() floats, or nil when every key is
// exhausted or the provider fails.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.mock != nil {
		v, _ := c.mock.EmbedWithKey(ctx, "", text)
		return v
	}

	tried := make(map[int]bool)
	for {
		idx, key, ok := c.pool.acquire(tried)
		if !ok {
			c.logger.Warn("embedding skipped, all API keys exhausted",
				"keys", c.pool.Len(), "retry_in", c.pool.SoonestRecovery())
			return nil
		}
		tried[idx] = true

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		vec, err := c.provider.EmbedWithKey(callCtx, key, text)
		cancel()

		if errors.Is(err, domain.ErrQuotaExhausted) {
			c.pool.MarkExhausted(idx)
			c.logger.Warn("API key quota exhausted", "key_index", idx+1, "op", "embed")
			continue
		}
		if err != nil {
			c.logger.Error("embedding failed", "key_index", idx+1, "error", err)
			return nil
		}
		return c.fit(vec)
	}
}

// fit truncates long vectors and rejects short ones.
func (c *Client) fit(vec []float32) []float32 {
	switch {
	case len(vec) == c.dims:
		return vec
	case len(vec) > c.dims:
		return vec[:c.dims]
	default:
		c.logger.Error("embedding has too few dimensions", "got", len(vec), "want", c.dims)
		return nil
	}
}

// Generate runs prompt through the first usable key. Total exhaustion
// returns domain.ErrAllCredentialsExhausted.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.mock != nil {
		return c.mock.GenerateWithKey(ctx, "", prompt)
	}

	tried := make(map[int]bool)
	for {
		idx, key, ok := c.pool.acquire(tried)
		if !ok {
			return "", fmt.Errorf("%w: %d keys, soonest recovery in %s",
				domain.ErrAllCredentialsExhausted, c.pool.Len(), c.pool.SoonestRecovery().Round(time.Second))
		}
		tried[idx] = true

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		out, err := c.provider.GenerateWithKey(callCtx, key, prompt)
		cancel()

		if errors.Is(err, domain.ErrQuotaExhausted) {
			c.pool.MarkExhausted(idx)
			c.logger.Warn("API key quota exhausted", "key_index", idx+1, "op", "generate")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("generate: %w", err)
		}
		return out, nil
	}
}

// Status reports every slot plus aggregate counts.
func (c *Client) Status() domain.CredentialPoolStatus {
	name := "mock"
	if c.provider != nil && c.mock == nil {
		name = c.provider.Name()
	}
	return domain.NewCredentialPoolStatus(name, c.pool.Status())
}

func (c *Client) Dimensions() int {
	return c.dims
}

func (c *Client) Model() string {
	if c.mock != nil {
		return c.mock.EmbeddingModel()
	}
	return c.provider.EmbeddingModel()
}
