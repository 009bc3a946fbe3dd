package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IngestionJobStore = (*JobStore)(nil)

const (
	jobPrefix       = "diya:job:"
	jobSourcePrefix = "diya:job:source:"

	// DefaultJobTTL bounds how long finished job records are kept
	DefaultJobTTL = 7 * 24 * time.Hour
)

// JobStore implements driven.IngestionJobStore using Redis.
// Jobs expire after the TTL; the per-source index points at the newest job.
type JobStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJobStore creates a Redis-backed JobStore. ttl <= 0 uses DefaultJobTTL.
func NewJobStore(client *redis.Client, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &JobStore{client: client, ttl: ttl}
}

// Save stores the job and, for new jobs, repoints the source index
func (s *JobStore) Save(ctx context.Context, job *domain.IngestionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, jobPrefix+job.ID, data, s.ttl)
	if job.SourceKey != "" {
		// the index tracks creation order, so only a newer job may claim it
		pipe.ZAdd(ctx, jobSourcePrefix+job.SourceKey, redis.Z{
			Score:  float64(job.CreatedAt.UnixNano()),
			Member: job.ID,
		})
		pipe.Expire(ctx, jobSourcePrefix+job.SourceKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID
func (s *JobStore) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	data, err := s.client.Get(ctx, jobPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job domain.IngestionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// LatestForSource returns the newest job still retained for a source
func (s *JobStore) LatestForSource(ctx context.Context, sourceKey string) (*domain.IngestionJob, error) {
	ids, err := s.client.ZRevRange(ctx, jobSourcePrefix+sourceKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job index: %w", err)
	}

	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			// expired body; prune the index entry
			s.client.ZRem(ctx, jobSourcePrefix+sourceKey, id)
			continue
		}
		return job, err
	}
	return nil, domain.ErrNotFound
}
