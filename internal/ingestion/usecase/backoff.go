package usecase

import (
	"math/rand"
	"time"
)

// ThrottleBackoff computes the resume delay after the nth consecutive
// throttling response: base * 2^(attempt-1), capped at max, plus up to one
// base of jitter so parallel workspaces do not resume in lockstep.
func ThrottleBackoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}

	jitter := time.Duration(rand.Int63n(int64(base)))
	return delay + jitter
}
