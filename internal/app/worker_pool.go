package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scriptducks/hashes-gui/internal/ports"
)

type poolWorker struct {
	id     int
	cancel context.CancelFunc
	done   chan struct{}
}

// WorkerPool runs a resizable set of task workers. Shrinking cancels the
// newest workers; a canceled worker finishes its current task first.
type WorkerPool struct {
	parent context.Context

	logger zerolog.Logger
	repo   ports.TaskRepository
	bus    ports.EventBus
	opts   WorkerOptions

	mu      sync.Mutex
	workers []poolWorker
	stopped []poolWorker
	nextID  int
}

func NewWorkerPool(parent context.Context, logger zerolog.Logger, repo ports.TaskRepository, bus ports.EventBus, opts WorkerOptions) *WorkerPool {
	if parent == nil {
		parent = context.Background()
	}
	return &WorkerPool{parent: parent, logger: logger, repo: repo, bus: bus, opts: opts}
}

func (p *WorkerPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// SetCount grows or shrinks the pool to n workers, at least one.
func (p *WorkerPool) SetCount(n int) {
	if n <= 0 {
		n = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.workers) < n {
		p.nextID++
		ctx, cancel := context.WithCancel(p.parent)
		pw := poolWorker{id: p.nextID, cancel: cancel, done: make(chan struct{})}
		p.workers = append(p.workers, pw)

		w := NewWorker(p.logger.With().Int("worker", pw.id).Logger(), p.repo, p.bus, p.opts)
		go func() {
			defer close(pw.done)
			w.Run(ctx)
		}()
	}

	if len(p.workers) > n {
		for _, pw := range p.workers[n:] {
			pw.cancel()
			p.stopped = append(p.stopped, pw)
		}
		p.workers = p.workers[:n]
		p.logger.Debug().Int("workers", n).Msg("worker pool shrunk")
	}
}

// Shutdown stops every worker and waits for them until ctx is done. Workers
// still busy at the deadline stay tracked, a later Close waits for them.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	all := append(p.stopped, p.workers...)
	p.workers = nil
	p.stopped = nil
	p.mu.Unlock()

	for _, pw := range all {
		pw.cancel()
	}
	for i, pw := range all {
		select {
		case <-pw.done:
		case <-ctx.Done():
			p.logger.Warn().Int("worker", pw.id).Msg("worker still busy at shutdown")
			p.mu.Lock()
			p.stopped = append(p.stopped, all[i:]...)
			p.mu.Unlock()
			return ctx.Err()
		}
	}
	return nil
}

// Close is Shutdown without a deadline.
func (p *WorkerPool) Close() {
	_ = p.Shutdown(context.Background())
}
