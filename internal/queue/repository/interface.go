package repository

import (
	"context"
	"errors"
	"time"

	"inboxpilot-backend/internal/queue/domain"
)

// ErrQueueNotFound means a caller referenced a queue that was never
// registered. This is a producer/configuration bug and must not be retried.
var ErrQueueNotFound = errors.New("queue not found")

// Store is the durable queue primitive. Visibility timeout is the only
// mutual-exclusion mechanism, so all job effects must be idempotent.
type Store interface {
	Enqueue(ctx context.Context, queue string, payload []byte, delay time.Duration) (string, error)
	EnqueueBatch(ctx context.Context, queue string, payloads [][]byte, delay time.Duration) ([]string, error)
	// Dequeue leases up to maxN jobs: they stay invisible to other consumers
	// for visibility, and read_count is bumped on every lease.
	Dequeue(ctx context.Context, queue string, visibility time.Duration, maxN int) ([]domain.QueueJob, error)
	Delete(ctx context.Context, queue, jobID string) error
	// Archive moves the job into the archive partition instead of deleting it.
	Archive(ctx context.Context, queue, jobID string, contextPayload []byte) error
	Purge(ctx context.Context, queue string) (int64, error)
	Depth(ctx context.Context, queue string) (int64, error)
}
