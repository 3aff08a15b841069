package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(nil, time.Hour)

	c, snap, found, err := s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, snap)
	require.NoError(t, s.Finish(ctx, c, []byte(`{"ok":true}`)))
	assert.ErrorIs(t, s.Finish(ctx, c, []byte("again")), ErrNotClaimed)

	_, snap, found, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"ok":true}`, string(snap))
}

func TestMemoryWaitersObserveOwnerResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(nil, time.Hour)
	c, _, found, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)

	const waiters = 8
	results := make([]string, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, snap, found, err := s.Begin(ctx, "k")
			if err == nil && found {
				results[i] = string(snap)
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Finish(ctx, c, []byte("result")))
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "result", r)
	}
}

func TestMemoryAbortHandsKeyToNextCaller(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(nil, time.Hour)
	first, _, _, err := s.Begin(ctx, "k")
	require.NoError(t, err)

	got := make(chan Claim, 1)
	go func() {
		c, _, found, err := s.Begin(ctx, "k")
		if err == nil && !found {
			got <- c
		}
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Abort(ctx, first))

	select {
	case second := <-got:
		assert.NotEqual(t, first.Token, second.Token)
		assert.ErrorIs(t, s.Abort(ctx, first), ErrNotClaimed, "the old claim must not release the new owner")
		assert.NoError(t, s.Abort(ctx, second))
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
	assert.ErrorIs(t, s.Abort(ctx, Claim{Key: "missing"}), ErrNotClaimed)
}

func TestMemoryBeginHonoursContext(t *testing.T) {
	s := NewMemory(nil, time.Hour)
	_, _, _, err := s.Begin(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, _, err = s.Begin(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryPurgeAfterRetention(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewMemory(clock, time.Hour)
	c, _, _, _ := s.Begin(ctx, "old")
	require.NoError(t, s.Finish(ctx, c, []byte("x")))
	_, _, _, _ = s.Begin(ctx, "inflight")

	clock.Advance(2 * time.Hour)
	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, found, err := s.Begin(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found)
}
