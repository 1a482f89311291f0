package usecase

import (
	"context"
	"time"

	"inboxpilot-backend/pkg/logger"
)

// Scheduler submits fire-and-forget continuations. Callers must not assume
// ordering or completion before their own return.
type Scheduler interface {
	Schedule(name string, delay time.Duration, fn func(ctx context.Context))
}

// BackgroundScheduler runs continuations on goroutines with a hard timeout,
// mirroring the short-lived invocation model of the deploy target.
type BackgroundScheduler struct {
	timeout time.Duration
}

func NewBackgroundScheduler(timeout time.Duration) *BackgroundScheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &BackgroundScheduler{timeout: timeout}
}

func (s *BackgroundScheduler) Schedule(name string, delay time.Duration, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"continuation": name,
					"panic":        r,
				}).Error("background continuation panicked")
			}
		}()

		if delay > 0 {
			time.Sleep(delay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		fn(ctx)
	}()
}
