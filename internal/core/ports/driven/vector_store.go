package driven

import (
	"context"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// VectorStore persists chunks with their vectors and serves cosine-distance search.
type VectorStore interface {
	// Upsert inserts one chunk in its own transaction.
	// Failure rolls back only this row and returns a *domain.StoreWriteError.
	Upsert(ctx context.Context, chunk *domain.Chunk) error

	// UpsertBatch writes chunks in one short transaction, isolating each row
	// behind a savepoint. Returns the number written; row failures are joined
	// *domain.StoreWriteErrors and do not abort the rest of the batch. Any
	// other error means the transaction failed and nothing was written.
	UpsertBatch(ctx context.Context, chunks []*domain.Chunk) (int, error)

	// Search returns chunks ordered by ascending cosine distance to vector,
	// at most opts.TopK, none further than opts.Floor().
	// Chunks without a vector are never returned.
	Search(ctx context.Context, vector []float32, filter domain.SearchFilter, opts domain.SearchOptions) ([]*domain.SearchResult, error)

	// Delete removes matching chunks and returns the count.
	// The filter must set at least one field.
	Delete(ctx context.Context, filter domain.ChunkFilter) (int, error)

	// Count returns the number of chunks matching filter
	Count(ctx context.Context, filter domain.ChunkFilter) (int, error)

	// BuildIndex creates the ANN index, dropping it first when replace is set
	BuildIndex(ctx context.Context, replace bool) error

	// Stats reports coverage for a class, or the whole store when classID is empty
	Stats(ctx context.Context, classID string) (*domain.EmbeddingStats, error)

	// ListMissingEmbeddings returns up to limit chunks stored without a vector
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error)

	// SetEmbedding attaches a vector to an existing chunk
	SetEmbedding(ctx context.Context, chunkID string, vector []float32) error

	// Ping checks the store is reachable
	Ping(ctx context.Context) error
}
