package app

import (
	"context"
	"path/filepath"
	"sync"
)

// MergeLimiter caps how many left-list merges run at once and never lets two
// merges write the same destination file concurrently.
type MergeLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	busy     map[string]struct{}
	notify   chan struct{}
}

func NewMergeLimiter(limit int) *MergeLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &MergeLimiter{limit: limit, busy: map[string]struct{}{}, notify: make(chan struct{})}
}

func (l *MergeLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Acquire waits for a free slot and for destination to be idle. The returned
// func releases both and is safe to call more than once.
func (l *MergeLimiter) Acquire(ctx context.Context, destination string) (func(), error) {
	key := destinationKey(destination)
	for {
		l.mu.Lock()
		_, taken := l.busy[key]
		if l.inFlight < l.limit && !taken {
			l.inFlight++
			l.busy[key] = struct{}{}
			l.mu.Unlock()
			var once sync.Once
			return func() { once.Do(func() { l.release(key) }) }, nil
		}
		ch := l.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

func (l *MergeLimiter) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	delete(l.busy, key)
	// wake every waiter, they re-check
	close(l.notify)
	l.notify = make(chan struct{})
}

func destinationKey(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
