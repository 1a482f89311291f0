package repository

import (
	"context"
	"fmt"
	"time"

	"inboxpilot-backend/internal/queue/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type queueStore struct {
	db     *gorm.DB
	queues map[string]struct{}
}

// NewStore creates a Postgres-backed queue store. Only the registered queue
// names are usable; anything else surfaces ErrQueueNotFound.
func NewStore(db *gorm.DB, queues ...string) Store {
	known := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		known[q] = struct{}{}
	}
	return &queueStore{db: db, queues: known}
}

func (s *queueStore) check(queue string) error {
	if _, ok := s.queues[queue]; !ok {
		return fmt.Errorf("%w: %q", ErrQueueNotFound, queue)
	}
	return nil
}

func (s *queueStore) Enqueue(ctx context.Context, queue string, payload []byte, delay time.Duration) (string, error) {
	ids, err := s.EnqueueBatch(ctx, queue, [][]byte{payload}, delay)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *queueStore) EnqueueBatch(ctx context.Context, queue string, payloads [][]byte, delay time.Duration) ([]string, error) {
	if err := s.check(queue); err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	jobs := make([]domain.QueueJob, len(payloads))
	ids := make([]string, len(payloads))
	for i, p := range payloads {
		id := uuid.New().String()
		ids[i] = id
		jobs[i] = domain.QueueJob{
			ID:         id,
			Queue:      queue,
			Payload:    p,
			EnqueuedAt: now,
			VisibleAt:  now.Add(delay),
			ReadCount:  0,
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(jobs, 200).Error; err != nil {
		return nil, fmt.Errorf("enqueue batch on %s: %w", queue, err)
	}
	return ids, nil
}

// Dequeue leases jobs with FOR UPDATE SKIP LOCKED so concurrent workers never
// lease the same row twice inside one visibility window.
func (s *queueStore) Dequeue(ctx context.Context, queue string, visibility time.Duration, maxN int) ([]domain.QueueJob, error) {
	if err := s.check(queue); err != nil {
		return nil, err
	}
	if maxN <= 0 {
		maxN = 1
	}

	now := time.Now().UTC()
	inner := sq.Select("id").
		From("queue_jobs").
		Where(sq.Eq{"queue": queue}).
		Where(sq.LtOrEq{"visible_at": now}).
		OrderBy("enqueued_at ASC").
		Limit(uint64(maxN)).
		Suffix("FOR UPDATE SKIP LOCKED")
	innerSQL, innerArgs, err := inner.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build dequeue select: %w", err)
	}

	update := sq.Update("queue_jobs").
		Set("visible_at", now.Add(visibility)).
		Set("read_count", sq.Expr("read_count + 1")).
		Set("updated_at", now).
		Where(sq.Expr("id IN ("+innerSQL+")", innerArgs...)).
		Suffix("RETURNING id, queue, payload, enqueued_at, visible_at, read_count, created_at, updated_at")
	query, args, err := update.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build dequeue update: %w", err)
	}

	var jobs []domain.QueueJob
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&jobs).Error; err != nil {
		return nil, fmt.Errorf("dequeue from %s: %w", queue, err)
	}
	return jobs, nil
}

func (s *queueStore) Delete(ctx context.Context, queue, jobID string) error {
	if err := s.check(queue); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("queue = ? AND id = ?", queue, jobID).
		Delete(&domain.QueueJob{}).Error
}

func (s *queueStore) Archive(ctx context.Context, queue, jobID string, contextPayload []byte) error {
	if err := s.check(queue); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.QueueJob
		if err := tx.Where("queue = ? AND id = ?", queue, jobID).First(&job).Error; err != nil {
			return fmt.Errorf("archive lookup on %s: %w", queue, err)
		}
		archived := domain.ArchivedJob{
			ID:          job.ID,
			OriginQueue: job.Queue,
			Payload:     job.Payload,
			ReadCount:   job.ReadCount,
			Context:     contextPayload,
			EnqueuedAt:  job.EnqueuedAt,
			ArchivedAt:  time.Now().UTC(),
		}
		if err := tx.Create(&archived).Error; err != nil {
			return err
		}
		return tx.Delete(&job).Error
	})
}

func (s *queueStore) Purge(ctx context.Context, queue string) (int64, error) {
	if err := s.check(queue); err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("queue = ?", queue).Delete(&domain.QueueJob{})
	return res.RowsAffected, res.Error
}

func (s *queueStore) Depth(ctx context.Context, queue string) (int64, error) {
	if err := s.check(queue); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.QueueJob{}).Where("queue = ?", queue).Count(&count).Error
	return count, err
}
