package driven

import (
	"context"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// AnswerGenerator turns a grounded prompt into tutoring text.
// Total credential exhaustion surfaces as domain.ErrAllCredentialsExhausted.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CredentialMonitor reports the state of the API key pool
type CredentialMonitor interface {
	Status() domain.CredentialPoolStatus
}
