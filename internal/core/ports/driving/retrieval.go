package driving

import (
	"context"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// RetrievalService answers queries against the embedded content
type RetrievalService interface {
	// Search embeds the query and returns the nearest chunks with citation labels.
	// An unavailable query vector yields an empty result, not an error.
	Search(ctx context.Context, query string, filter domain.SearchFilter, opts domain.SearchOptions) (*domain.SearchResponse, error)

	// Answer grounds a generated answer in the search results for the question
	Answer(ctx context.Context, req domain.AskRequest) (*domain.Answer, error)

	// Stats reports embedding coverage for a class, or all content when classID is empty
	Stats(ctx context.Context, classID string) (*domain.EmbeddingStats, error)

	// CredentialStatus reports the provider key pool
	CredentialStatus(ctx context.Context) domain.CredentialPoolStatus
}
