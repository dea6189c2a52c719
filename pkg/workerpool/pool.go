// Package workerpool bounds how many enrichment and rendering jobs run at once
// across all sessions.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrPoolStopped is returned for work submitted after Stop
var ErrPoolStopped = errors.New("worker pool stopped")

// Pool runs jobs with at most size of them in flight
type Pool struct {
	sem     *semaphore.Weighted
	size    int
	logger  *zap.Logger
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a pool with size slots
func New(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		logger: logger,
	}
}

// Size returns the number of slots
func (p *Pool) Size() int {
	return p.size
}

// Do waits for a free slot and runs fn in the caller's goroutine
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.wg.Done()
	return p.run(ctx, fn)
}

// Stop rejects new work and waits for running jobs or ctx expiry
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.stopped = true
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("🛑 Stopping worker pool...")
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.logger != nil {
			p.logger.Info("✅ Worker pool stopped")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for worker pool: %w", ctx.Err())
	}
}

func (p *Pool) enter() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.wg.Add(1)
	return nil
}

func (p *Pool) run(ctx context.Context, fn func(context.Context) error) (err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker slot: %w", err)
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	return fn(ctx)
}
