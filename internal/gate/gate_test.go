package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int{
		"":     1,
		"abc":  1,
		"0":    1,
		"-3":   1,
		"4":    4,
		" 12 ": 12,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseSize(in), "input %q", in)
	}
	assert.Equal(t, 1, New(0).Size())
}

func TestGateBoundsConcurrency(t *testing.T) {
	const size, tasks = 3, 24
	g := New(size)

	var (
		inside, peak, done atomic.Int64
		wg                 sync.WaitGroup
	)
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Run(context.Background(), func(context.Context) error {
				n := inside.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				done.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(size))
	assert.Equal(t, int64(tasks), done.Load())
	assert.Equal(t, 0, g.InFlight())
}

func TestGateReleasesOnPanic(t *testing.T) {
	g := New(1)
	func() {
		defer func() { _ = recover() }()
		_ = g.Run(context.Background(), func(context.Context) error { panic("boom") })
	}()
	assert.Equal(t, 0, g.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Acquire(ctx))
	g.Release()
}

func TestGateAcquireHonoursContext(t *testing.T) {
	g := New(1)
	require.NoError(t, g.Acquire(context.Background()))
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InFlight())
}
