package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates work across instances: one ingestion per source,
// one catalog run and one re-embedding pass at a time.
type DistributedLock interface {
	// Acquire attempts to take a named lock for ttl.
	// Returns false when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release gives up a named lock. Safe to call if the lock has expired.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock.
	// PostgreSQL advisory locks have no TTL and treat this as a no-op.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
