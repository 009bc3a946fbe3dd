package runtime

import (
	"sync"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// AIClient is the combined surface of the rotating model client.
type AIClient interface {
	driven.EmbeddingService
	driven.AnswerGenerator
	driven.CredentialMonitor
}

// Services holds the AI collaborators shared by ingestion workers and the
// retrieval path. The client can be swapped when keys are reloaded.
// Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	// Config tracks capability flags
	config *domain.RuntimeConfig

	embeddingService driven.EmbeddingService
	answerGenerator  driven.AnswerGenerator
	monitor          driven.CredentialMonitor
}

// NewServices creates a new Services registry
func NewServices(config *domain.RuntimeConfig) *Services {
	return &Services{
		config: config,
	}
}

// Config returns the runtime configuration
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// EmbeddingService returns the current embedding service (may be nil)
func (s *Services) EmbeddingService() driven.EmbeddingService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embeddingService
}

// AnswerGenerator returns the current generator (may be nil)
func (s *Services) AnswerGenerator() driven.AnswerGenerator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answerGenerator
}

// CredentialMonitor returns the key pool monitor (may be nil)
func (s *Services) CredentialMonitor() driven.CredentialMonitor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.monitor
}

// SetEmbeddingService updates the embedding service.
func (s *Services) SetEmbeddingService(svc driven.EmbeddingService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingService = svc
}

// SetAnswerGenerator updates the answer generator.
func (s *Services) SetAnswerGenerator(gen driven.AnswerGenerator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerGenerator = gen
}

// SetCredentialMonitor updates the monitor and the mock flag it reports.
func (s *Services) SetCredentialMonitor(m driven.CredentialMonitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor = m
	s.config.SetMockProvider(m != nil && m.Status().Mock)
}

// SetAIClient installs one client for all three roles.
func (s *Services) SetAIClient(c AIClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c == nil {
		s.embeddingService, s.answerGenerator, s.monitor = nil, nil, nil
		s.config.SetMockProvider(false)
		return
	}
	s.embeddingService = c
	s.answerGenerator = c
	s.monitor = c
	s.config.SetMockProvider(c.Status().Mock)
}

// CredentialStatus reports the pool state, or an empty status when no
// client is configured.
func (s *Services) CredentialStatus() domain.CredentialPoolStatus {
	m := s.CredentialMonitor()
	if m == nil {
		return domain.CredentialPoolStatus{}
	}
	return m.Status()
}
