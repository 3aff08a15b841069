package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMemoryTryHoldRespectsCapacity(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)
	require.NoError(t, l.Open(ctx, 1, 3))

	g1, err := l.TryHold(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, g1.Seats)

	_, err = l.TryHold(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrDenied)

	g2, err := l.TryHold(ctx, 1, 1)
	require.NoError(t, err)

	c, err := l.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 3, Sold: 0, Held: 3}, c)
	assert.Equal(t, 0, c.Available())

	require.NoError(t, l.Commit(ctx, g1))
	require.NoError(t, l.Release(ctx, g2))
	c, _ = l.Snapshot(ctx, 1)
	assert.Equal(t, Counts{Total: 3, Sold: 2, Held: 0}, c)
	assert.Equal(t, 1, c.Unsold())
}

func TestMemoryGrantConsumedOnce(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)
	require.NoError(t, l.Open(ctx, 7, 2))
	g, err := l.TryHold(ctx, 7, 2)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, g))
	assert.ErrorIs(t, l.Release(ctx, g), ErrGrantConsumed)
	assert.ErrorIs(t, l.Commit(ctx, g), ErrGrantConsumed)

	c, _ := l.Snapshot(ctx, 7)
	assert.Equal(t, 0, c.Held)
	assert.Equal(t, 0, c.Sold)
}

func TestMemoryUnknownEvent(t *testing.T) {
	l := NewMemory(nil)
	_, err := l.TryHold(context.Background(), 99, 1)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestMemoryResize(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)
	require.NoError(t, l.Open(ctx, 1, 2))
	_, err := l.TryHold(ctx, 1, 2)
	require.NoError(t, err)

	assert.ErrorIs(t, l.Resize(ctx, 1, 1), ErrCapacityBelowUsage)
	require.NoError(t, l.Resize(ctx, 1, 4))
	_, err = l.TryHold(ctx, 1, 2)
	assert.NoError(t, err)
}

func TestMemoryReleaseOutstanding(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)
	require.NoError(t, l.Open(ctx, 1, 5))
	require.NoError(t, l.Open(ctx, 2, 5))
	g, _ := l.TryHold(ctx, 1, 2)
	_, _ = l.TryHold(ctx, 2, 3)
	require.NoError(t, l.Commit(ctx, g))

	n, err := l.ReleaseOutstanding(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	c1, _ := l.Snapshot(ctx, 1)
	c2, _ := l.Snapshot(ctx, 2)
	assert.Equal(t, 2, c1.Sold)
	assert.Equal(t, 0, c2.Held)
}

func TestMemoryConcurrentHoldsNeverOversell(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)
	require.NoError(t, l.Open(ctx, 1, 50))

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.TryHold(ctx, 1, 1); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 50, granted.Load())
	c, _ := l.Snapshot(ctx, 1)
	assert.Equal(t, 50, c.Held)
}

// Random interleavings of hold, commit and release keep the counters
// inside capacity and consistent with the outstanding grants.
func TestMemorySeatConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		total := rapid.IntRange(0, 20).Draw(t, "total")
		l := NewMemory(nil)
		if err := l.Open(ctx, 1, total); err != nil {
			t.Fatalf("open: %v", err)
		}
		var outstanding []Grant
		sold := 0
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0, 1:
				n := rapid.IntRange(1, 5).Draw(t, "seats")
				g, err := l.TryHold(ctx, 1, n)
				if err == nil {
					outstanding = append(outstanding, g)
				}
			case 2:
				if len(outstanding) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(outstanding)-1).Draw(t, "commit")
				if err := l.Commit(ctx, outstanding[idx]); err != nil {
					t.Fatalf("commit: %v", err)
				}
				sold += outstanding[idx].Seats
				outstanding = append(outstanding[:idx], outstanding[idx+1:]...)
			case 3:
				if len(outstanding) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(outstanding)-1).Draw(t, "release")
				if err := l.Release(ctx, outstanding[idx]); err != nil {
					t.Fatalf("release: %v", err)
				}
				outstanding = append(outstanding[:idx], outstanding[idx+1:]...)
			}
			c, err := l.Snapshot(ctx, 1)
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if c.Sold+c.Held > c.Total || c.Sold < 0 || c.Held < 0 {
				t.Fatalf("invariant broken: %+v", c)
			}
			held := 0
			for _, g := range outstanding {
				held += g.Seats
			}
			if c.Held != held || c.Sold != sold {
				t.Fatalf("counters %+v disagree with grants held=%d sold=%d", c, held, sold)
			}
		}
	})
}
