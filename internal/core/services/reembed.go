package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
	"github.com/tamgam-edu/diya-core/internal/runtime"
)

// Re-embedding pass defaults
const (
	ReembedLockName        = "reembed"
	DefaultReembedBatch    = 50
	DefaultReembedMaxBatch = 20
	DefaultReembedLockTTL  = 15 * time.Minute
)

// ReembedResult summarises one re-embedding pass.
type ReembedResult struct {
	Scanned  int `json:"scanned"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
	Batches  int `json:"batches"`
}

// Reembedder fills vectors for chunks that were stored without one.
type Reembedder struct {
	vectors  driven.VectorStore
	services *runtime.Services
	lock     driven.DistributedLock
	logger   *slog.Logger

	batchSize  int
	maxBatches int
	lockTTL    time.Duration
}

// ReembedderConfig holds dependencies for Reembedder.
type ReembedderConfig struct {
	Vectors    driven.VectorStore
	Services   *runtime.Services
	Lock       driven.DistributedLock // Optional: one pass at a time across instances
	Logger     *slog.Logger
	BatchSize  int // Chunks per listing (default: 50)
	MaxBatches int // Upper bound per pass (default: 20)
	LockTTL    time.Duration
}

// NewReembedder creates a re-embedding pass runner.
func NewReembedder(cfg ReembedderConfig) *Reembedder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reembedder{
		vectors:    cfg.Vectors,
		services:   cfg.Services,
		lock:       cfg.Lock,
		logger:     logger,
		batchSize:  cfg.BatchSize,
		maxBatches: cfg.MaxBatches,
		lockTTL:    cfg.LockTTL,
	}
	if r.batchSize <= 0 {
		r.batchSize = DefaultReembedBatch
	}
	if r.maxBatches <= 0 {
		r.maxBatches = DefaultReembedMaxBatch
	}
	if r.lockTTL <= 0 {
		r.lockTTL = DefaultReembedLockTTL
	}
	return r
}

// Run embeds missing vectors batch by batch. It stops when nothing is
// missing, when a batch makes no progress, or after the batch limit.
// Another instance holding the lock yields ErrIngestionInProgress.
func (r *Reembedder) Run(ctx context.Context) (ReembedResult, error) {
	var res ReembedResult

	var embedder driven.EmbeddingService
	if r.services != nil {
		embedder = r.services.EmbeddingService()
	}
	if embedder == nil {
		return res, fmt.Errorf("%w: embedding service not configured", domain.ErrServiceUnavailable)
	}

	if r.lock != nil {
		acquired, err := r.lock.Acquire(ctx, ReembedLockName, r.lockTTL)
		if err != nil {
			return res, fmt.Errorf("failed to acquire reembed lock: %w", err)
		}
		if !acquired {
			return res, domain.ErrIngestionInProgress
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx), ReembedLockName); err != nil {
				r.logger.Warn("failed to release reembed lock", "error", err)
			}
		}()
	}

	for res.Batches < r.maxBatches {
		chunks, err := r.vectors.ListMissingEmbeddings(ctx, r.batchSize)
		if err != nil {
			return res, fmt.Errorf("failed to list chunks without vectors: %w", err)
		}
		if len(chunks) == 0 {
			break
		}
		res.Batches++

		progress := 0
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Scanned++
			vec := embedder.Embed(ctx, c.Text)
			if vec == nil {
				res.Failed++
				continue
			}
			if err := r.vectors.SetEmbedding(ctx, c.ID, vec); err != nil {
				r.logger.Warn("failed to store vector", "chunk_id", c.ID, "error", err)
				res.Failed++
				continue
			}
			res.Embedded++
			progress++
		}

		if r.lock != nil {
			if err := r.lock.Extend(ctx, ReembedLockName, r.lockTTL); err != nil {
				r.logger.Warn("failed to extend reembed lock", "error", err)
			}
		}
		if progress == 0 {
			r.logger.Info("no vectors obtained in batch, ending pass", "batch", res.Batches)
			break
		}
	}

	r.logger.Info("re-embedding pass finished",
		"scanned", res.Scanned,
		"embedded", res.Embedded,
		"failed", res.Failed,
		"batches", res.Batches,
	)
	return res, nil
}
