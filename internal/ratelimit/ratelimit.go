// Package ratelimit spaces out scrape-task launches so concurrent browser
// sessions don't hit the target site in a burst.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter enforces a minimum, jittered gap between actions.
type Limiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func New(minDelay, maxDelay time.Duration) *Limiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Limiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// Wait blocks until the jittered gap since the previous action has elapsed,
// or the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.lastAction)
	delay := l.delay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	l.lastAction = time.Now()
	return nil
}

func (l *Limiter) delay() time.Duration {
	if l.minDelay == l.maxDelay {
		return l.minDelay
	}
	return l.minDelay + time.Duration(rand.Int63n(int64(l.maxDelay-l.minDelay)))
}
