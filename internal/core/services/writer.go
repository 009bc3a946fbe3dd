package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// DefaultBatchSize is how many chunks are written per transaction.
const DefaultBatchSize = 20

// chunkWriter buffers chunks and flushes them in short batches.
// Row-level store failures are counted and do not stop the run; a failed
// transaction does.
type chunkWriter struct {
	store   driven.VectorStore
	size    int
	pending []*domain.Chunk
	logger  *slog.Logger

	// onFlush runs after each successful flush (optional)
	onFlush func(ctx context.Context)

	written       int
	writeFailures int
	missing       int
}

func newChunkWriter(store driven.VectorStore, size int, logger *slog.Logger) *chunkWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &chunkWriter{
		store:   store,
		size:    size,
		pending: make([]*domain.Chunk, 0, size),
		logger:  logger,
	}
}

// add queues a chunk and flushes when the batch is full.
func (w *chunkWriter) add(ctx context.Context, c *domain.Chunk) error {
	w.pending = append(w.pending, c)
	if len(w.pending) >= w.size {
		return w.flush(ctx)
	}
	return nil
}

// flush writes buffered chunks. Per-row failures (StoreWriteError) are
// logged and counted; any other error means the batch as a whole failed
// and is returned.
func (w *chunkWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	batch := w.pending
	w.pending = make([]*domain.Chunk, 0, w.size)

	n, err := w.store.UpsertBatch(ctx, batch)
	failed := map[string]bool{}
	if err != nil {
		rowErrs := rowWriteErrors(err)
		if len(rowErrs) == 0 {
			return fmt.Errorf("flush batch: %w", err)
		}
		for _, re := range rowErrs {
			failed[re.ChunkID] = true
		}
		w.writeFailures += len(batch) - n
		w.logger.Warn("chunk rows failed to write", "failed", len(batch)-n, "written", n, "error", err)
	}
	w.written += n
	for _, c := range batch {
		if !failed[c.ID] && !c.HasEmbedding() {
			w.missing++
		}
	}
	if w.onFlush != nil {
		w.onFlush(ctx)
	}
	return nil
}

// rowWriteErrors collects the StoreWriteErrors in err, looking through
// joined errors. It returns nil if any part of err is something else.
func rowWriteErrors(err error) []*domain.StoreWriteError {
	var parts []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		parts = joined.Unwrap()
	} else {
		parts = []error{err}
	}
	out := make([]*domain.StoreWriteError, 0, len(parts))
	for _, p := range parts {
		var re *domain.StoreWriteError
		if !errors.As(p, &re) {
			return nil
		}
		out = append(out, re)
	}
	return out
}
