package ai

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Supported provider names
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Settings selects and configures the AI provider
type Settings struct {
	Provider        string
	EmbeddingModel  string
	GenerationModel string
	BaseURL         string
	Dimensions      int
	Keys            []string
	RecoveryWindow  time.Duration
	CallTimeout     time.Duration
}

// Factory creates AI clients based on configuration
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new AI client factory
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateProvider returns the remote API client for settings.Provider.
// An empty provider name selects Gemini.
func (f *Factory) CreateProvider(settings Settings) (driven.ProviderClient, error) {
	switch strings.ToLower(settings.Provider) {
	case "", ProviderGemini:
		return NewGeminiProvider(settings.EmbeddingModel, settings.GenerationModel, settings.BaseURL, settings.Dimensions), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(settings.EmbeddingModel, settings.GenerationModel, settings.BaseURL, settings.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}

// CreateClient builds the rotating client. With no keys the provider is
// not contacted and the client runs in mock mode.
func (f *Factory) CreateClient(settings Settings) (*Client, error) {
	cfg := ClientConfig{
		Keys:           settings.Keys,
		Dimensions:     settings.Dimensions,
		RecoveryWindow: settings.RecoveryWindow,
		CallTimeout:    settings.CallTimeout,
		Logger:         f.logger,
	}
	if NewKeyPool(settings.Keys, 0).Len() > 0 {
		provider, err := f.CreateProvider(settings)
		if err != nil {
			return nil, err
		}
		cfg.Provider = provider
	}
	return NewClient(cfg)
}
