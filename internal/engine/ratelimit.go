package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultTokenBytes is how many bytes one token pays for.
const defaultTokenBytes = 64 * 1024

// ioLimiter throttles file reads to a byte rate with a token bucket.
// Each token covers tokenBytes; up to one second of tokens may burst.
type ioLimiter struct {
	tokens     chan struct{}
	tokenBytes int64
	done       chan struct{}
	closeOnce  sync.Once
}

func newIOLimiter(bytesPerSecond int64, tokenBytes int64) *ioLimiter {
	if tokenBytes <= 0 {
		tokenBytes = defaultTokenBytes
	}

	perSecond := int(bytesPerSecond / tokenBytes)
	if perSecond <= 0 {
		perSecond = 1
	}
	refill := max(time.Second/time.Duration(perSecond), time.Microsecond)
	burst := min(max(perSecond, 10), 1000)

	l := &ioLimiter{
		tokens:     make(chan struct{}, burst),
		tokenBytes: tokenBytes,
		done:       make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}
	go l.refill(refill)
	return l
}

func (l *ioLimiter) refill(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			select {
			case l.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// wait blocks until n bytes may be read.
func (l *ioLimiter) wait(ctx context.Context, n int64) error {
	need := max(n/l.tokenBytes, 1)
	for i := int64(0); i < need; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter wait: %w", ctx.Err())
		case <-l.done:
			return context.Canceled
		case <-l.tokens:
		}
	}
	return nil
}

func (l *ioLimiter) close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}
