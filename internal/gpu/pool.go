// SPDX-License-Identifier: MIT

// Package gpu provides bounded-concurrency admission for GPU-using
// detectors. The pool is the only shared mutable contention point in the
// pipeline.
package gpu

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	poolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eyes",
		Name:      "gpu_pool_permits_in_use",
		Help:      "Currently held GPU pool permits",
	})

	poolWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eyes",
		Name:      "gpu_pool_waiters",
		Help:      "Goroutines waiting for a GPU pool permit",
	})

	poolWaitTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eyes",
		Name:      "gpu_pool_wait_seconds",
		Help:      "Time spent waiting for a GPU pool permit",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
	})
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("gpu pool closed")

// ReleaseFunc returns a permit to the pool. Safe to call more than once;
// only the first call releases.
type ReleaseFunc func()

// Pool admits at most its capacity of concurrent holders. Admission is
// strictly FIFO: a waiter never overtakes an earlier one. Cancellation of a
// waiting acquirer removes it from the queue without consuming a permit.
type Pool struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  *list.List // of chan struct{}
	closed   bool
	logger   zerolog.Logger
}

// NewPool creates a pool with the given capacity.
func NewPool(capacity int, logger zerolog.Logger) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		capacity: capacity,
		waiters:  list.New(),
		logger:   logger,
	}
}

// Capacity returns the configured permit count.
func (p *Pool) Capacity() int { return p.capacity }

// Available returns the number of free permits.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - p.inUse
}

// Acquire blocks until a permit is granted or ctx is done. On success the
// returned ReleaseFunc must be called on every exit path; pairing it with
// defer guarantees release even on panic.
func (p *Pool) Acquire(ctx context.Context) (ReleaseFunc, error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.inUse < p.capacity && p.waiters.Len() == 0 {
		p.inUse++
		poolInUse.Set(float64(p.inUse))
		p.mu.Unlock()
		poolWaitTime.Observe(time.Since(start).Seconds())
		return p.releaseOnce(), nil
	}

	grant := make(chan struct{})
	elem := p.waiters.PushBack(grant)
	poolWaiters.Set(float64(p.waiters.Len()))
	p.mu.Unlock()

	select {
	case <-grant:
		poolWaitTime.Observe(time.Since(start).Seconds())
		return p.releaseOnce(), nil
	case <-ctx.Done():
		p.mu.Lock()
		// The grant may have raced with cancellation; if the permit was
		// already handed to us, pass it on instead of leaking it.
		select {
		case <-grant:
			p.grantNextLocked()
		default:
			p.waiters.Remove(elem)
			poolWaiters.Set(float64(p.waiters.Len()))
		}
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Run acquires a permit, runs fn, and releases on all exit paths.
func (p *Pool) Run(ctx context.Context, fn func(context.Context) error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (p *Pool) releaseOnce() ReleaseFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.grantNextLocked()
		})
	}
}

// grantNextLocked hands the freed permit to the oldest waiter, or returns it
// to the pool. Callers hold p.mu with a permit accounted in inUse.
func (p *Pool) grantNextLocked() {
	if front := p.waiters.Front(); front != nil {
		p.waiters.Remove(front)
		poolWaiters.Set(float64(p.waiters.Len()))
		close(front.Value.(chan struct{}))
		return
	}
	p.inUse--
	poolInUse.Set(float64(p.inUse))
}

// Close rejects future acquisitions. Waiters currently queued are granted as
// permits free up so in-flight work drains normally.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.logger.Debug().Int("capacity", p.capacity).Msg("gpu pool closed")
	}
}
