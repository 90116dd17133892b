package ratelimit

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// backends returns every Backend implementation driven by clock.
func backends(t *testing.T, clock *fakeClock) map[string]Backend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return map[string]Backend{
		"memory": NewMemory(clock.Now),
		"redis":  NewRedis(client, clock.Now, time.Hour),
	}
}

func TestFixedWindowBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	for name, b := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				ok, err := b.Allow(ctx, "actor-"+name, "createLobby", 3, 300*time.Second)
				require.NoError(t, err)
				assert.True(t, ok, "call %d should be allowed", i)
			}
			ok, err := b.Allow(ctx, "actor-"+name, "createLobby", 3, 300*time.Second)
			require.NoError(t, err)
			assert.False(t, ok, "4th call in the window must be denied")

			// A different action has its own window.
			ok, err = b.Allow(ctx, "actor-"+name, "joinLobby", 3, 300*time.Second)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestWindowResetsAfterElapsing(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	for name, b := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			actor := "reset-" + name
			for i := 0; i < 3; i++ {
				ok, err := b.Allow(ctx, actor, "createLobby", 3, 300*time.Second)
				require.NoError(t, err)
				require.True(t, ok)
			}
			ok, err := b.Allow(ctx, actor, "createLobby", 3, 300*time.Second)
			require.NoError(t, err)
			require.False(t, ok)

			clock.Advance(300 * time.Second)
			ok, err = b.Allow(ctx, actor, "createLobby", 3, 300*time.Second)
			require.NoError(t, err)
			assert.True(t, ok, "first call after the window resets the counter")

			// Excess from the old window does not carry over.
			ok, err = b.Allow(ctx, actor, "createLobby", 3, 300*time.Second)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestAllowIsAtomicUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	for name, b := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			var allowed atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := b.Allow(ctx, "burst-"+name, "stage", 10, time.Minute)
					assert.NoError(t, err)
					if ok {
						allowed.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(10), allowed.Load())
		})
	}
}

func TestDebounceBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	for name, b := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			actor := "deb-" + name
			skip, err := b.ShouldDebounce(ctx, actor, "p1", "life", 50*time.Millisecond)
			require.NoError(t, err)
			assert.False(t, skip, "first update is never debounced")

			clock.Advance(10 * time.Millisecond)
			skip, err = b.ShouldDebounce(ctx, actor, "p1", "life", 50*time.Millisecond)
			require.NoError(t, err)
			assert.True(t, skip, "10ms later is too soon")

			clock.Advance(50 * time.Millisecond)
			skip, err = b.ShouldDebounce(ctx, actor, "p1", "life", 50*time.Millisecond)
			require.NoError(t, err)
			assert.False(t, skip, "60ms after the accepted update is allowed")

			skip, err = b.ShouldDebounce(ctx, actor, "p1", "infectToApply", 50*time.Millisecond)
			require.NoError(t, err)
			assert.False(t, skip, "fields are debounced independently")
		})
	}
}

func TestSweepRemovesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	for name, b := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Allow(ctx, "sweep-a-"+name, "x", 1, time.Minute)
			require.NoError(t, err)
			_, err = b.Allow(ctx, "sweep-b-"+name, "x", 1, time.Hour)
			require.NoError(t, err)

			n, err := b.Sweep(ctx, 100)
			require.NoError(t, err)
			assert.Equal(t, 0, n, "live windows are kept")

			clock.Advance(2 * time.Minute)
			n, err = b.Sweep(ctx, 100)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

type brokenBackend struct{}

var errDown = errors.New("connection refused")

func (brokenBackend) Allow(context.Context, string, string, int, time.Duration) (bool, error) {
	return false, errDown
}

func (brokenBackend) ShouldDebounce(context.Context, string, string, string, time.Duration) (bool, error) {
	return false, errDown
}

func (brokenBackend) Sweep(context.Context, int) (int, error) {
	return 0, errDown
}

func TestFallbackDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clock := newFakeClock()
	f := NewFallback(brokenBackend{}, NewMemory(clock.Now), logger)

	for i := 0; i < 2; i++ {
		ok, err := f.Allow(ctx, "a", "x", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := f.Allow(ctx, "a", "x", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "in-memory limiter still enforces the quota")

	skip, err := f.ShouldDebounce(ctx, "a", "p", "life", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestFallbackSweepReportsBackendFailure(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clock := newFakeClock()
	f := NewFallback(brokenBackend{}, NewMemory(clock.Now), logger)

	_, err := f.Allow(ctx, "a", "x", 2, time.Minute)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	n, err := f.Sweep(ctx, 100)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 1, n, "in-memory records are still swept")
}

func TestFallbackHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := NewFallback(brokenBackend{}, nil, logger)

	_, err := f.Allow(ctx, "a", "x", 2, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyAllow(t *testing.T) {
	m := NewMemory(newFakeClock().Now)
	ctx := context.Background()
	for i := 0; i < CreateLobby.Max; i++ {
		ok, err := CreateLobby.Allow(ctx, m, "owner")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := CreateLobby.Allow(ctx, m, "owner")
	require.NoError(t, err)
	assert.False(t, ok)
}
