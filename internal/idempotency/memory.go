package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is a process-local Store.
type Memory struct {
	mu        sync.Mutex
	records   map[string]*record
	clock     clockwork.Clock
	retention time.Duration
}

type record struct {
	token     string
	snapshot  []byte
	createdAt time.Time
	pending   bool
	done      chan struct{}
}

// NewMemory returns a Memory store keeping results for retention.  A nil
// clock means the wall clock.
func NewMemory(clock clockwork.Clock, retention time.Duration) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{records: make(map[string]*record), clock: clock, retention: retention}
}

func (m *Memory) Begin(ctx context.Context, key string) (Claim, []byte, bool, error) {
	for {
		m.mu.Lock()
		rec, ok := m.records[key]
		if !ok || (!rec.pending && m.stale(rec)) {
			c := Claim{Key: key, Token: newToken()}
			m.records[key] = &record{token: c.Token, pending: true, done: make(chan struct{}), createdAt: m.clock.Now()}
			m.mu.Unlock()
			return c, nil, false, nil
		}
		if !rec.pending {
			snap := rec.snapshot
			m.mu.Unlock()
			return Claim{}, snap, true, nil
		}
		done := rec.done
		m.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return Claim{}, nil, false, ctx.Err()
		}
	}
}

func (m *Memory) Finish(_ context.Context, c Claim, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.owned(c)
	if !ok {
		return ErrNotClaimed
	}
	rec.snapshot = append([]byte(nil), snapshot...)
	rec.createdAt = m.clock.Now()
	rec.pending = false
	close(rec.done)
	return nil
}

func (m *Memory) Abort(_ context.Context, c Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.owned(c)
	if !ok {
		return ErrNotClaimed
	}
	delete(m.records, c.Key)
	close(rec.done)
	return nil
}

func (m *Memory) Purge(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, rec := range m.records {
		if !rec.pending && m.stale(rec) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) owned(c Claim) (*record, bool) {
	rec, ok := m.records[c.Key]
	if !ok || !rec.pending || rec.token != c.Token {
		return nil, false
	}
	return rec, true
}

func (m *Memory) stale(rec *record) bool {
	return !m.clock.Now().Before(rec.createdAt.Add(m.retention))
}
