// SPDX-License-Identifier: MIT

package gpu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, p.Available())

	release()
	require.Equal(t, 1, p.Available())

	// Releasing twice must not mint a second permit.
	release()
	require.Equal(t, 1, p.Available())
}

func TestPoolFIFOOrder(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	const waiters = 5
	order := make([]int, 0, waiters)
	var mu sync.Mutex
	var wg sync.WaitGroup
	ready := make(chan struct{}, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ready <- struct{}{}
			// Stagger entry so queue order matches id order.
			release, err := p.Acquire(context.Background())
			require.NoError(t, err)
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			release()
		}(i)
		<-ready
		// Give the goroutine time to enqueue before starting the next.
		require.Eventually(t, func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return p.waiters.Len() == i+1
		}, time.Second, time.Millisecond)
	}

	first()
	wg.Wait()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPoolCancelledWaiter(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Close()

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.waiters.Len() == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// The cancelled waiter must not have consumed the permit.
	release()
	require.Equal(t, 1, p.Available())
}

func TestPoolRunReleasesOnError(t *testing.T) {
	p := NewPool(2, zerolog.Nop())
	defer p.Close()

	err := p.Run(context.Background(), func(context.Context) error {
		require.Equal(t, 1, p.Available())
		return context.DeadlineExceeded
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 2, p.Available())
}

func TestPoolClosedRejects(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	p.Close()
	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}
