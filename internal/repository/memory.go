package repository

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/iliyamo/fair-ticketing/internal/model"
)

// MemEventRepo is an in-process replacement for EventRepo used when
// STORAGE_DRIVER=memory and in tests.
type MemEventRepo struct {
    mu     sync.RWMutex
    nextID int64
    events map[int64]model.Event
}

// NewMemEventRepo returns an empty MemEventRepo.
func NewMemEventRepo() *MemEventRepo {
    return &MemEventRepo{events: make(map[int64]model.Event)}
}

func (r *MemEventRepo) Create(_ context.Context, ev *model.Event) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if ev.CreatedAt.IsZero() {
        ev.CreatedAt = time.Now().UTC()
    }
    r.nextID++
    ev.ID = r.nextID
    r.events[ev.ID] = *ev
    return nil
}

func (r *MemEventRepo) Get(_ context.Context, id int64) (model.Event, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    ev, ok := r.events[id]
    if !ok {
        return model.Event{}, ErrNotFound
    }
    return ev, nil
}

func (r *MemEventRepo) List(_ context.Context) ([]model.Event, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    out := make([]model.Event, 0, len(r.events))
    for _, ev := range r.events {
        out = append(out, ev)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (r *MemEventRepo) UpdateCapacity(_ context.Context, id int64, totalSeats int) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    ev, ok := r.events[id]
    if !ok {
        return ErrNotFound
    }
    ev.TotalSeats = totalSeats
    r.events[id] = ev
    return nil
}

func (r *MemEventRepo) UpdateStatus(_ context.Context, id int64, status model.EventStatus) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    ev, ok := r.events[id]
    if !ok {
        return ErrNotFound
    }
    ev.Status = status
    r.events[id] = ev
    return nil
}

// MemTicketRepo is an in-process replacement for TicketRepo.
type MemTicketRepo struct {
    mu      sync.RWMutex
    nextID  int64
    tickets map[int64]model.Ticket
}

// NewMemTicketRepo returns an empty MemTicketRepo.
func NewMemTicketRepo() *MemTicketRepo {
    return &MemTicketRepo{tickets: make(map[int64]model.Ticket)}
}

func (r *MemTicketRepo) Create(_ context.Context, t *model.Ticket) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if t.CreatedAt.IsZero() {
        t.CreatedAt = time.Now().UTC()
    }
    r.nextID++
    t.ID = r.nextID
    r.tickets[t.ID] = *t
    return nil
}

func (r *MemTicketRepo) Get(_ context.Context, id int64) (model.Ticket, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    t, ok := r.tickets[id]
    if !ok {
        return model.Ticket{}, ErrNotFound
    }
    return t, nil
}

func (r *MemTicketRepo) ListByOrder(_ context.Context, orderID string) ([]model.Ticket, error) {
    return r.filter(func(t model.Ticket) bool { return t.OrderID == orderID }), nil
}

func (r *MemTicketRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Ticket, error) {
    return r.filter(func(t model.Ticket) bool { return t.OwnerID == ownerID }), nil
}

func (r *MemTicketRepo) ListByStatus(_ context.Context, status model.TicketStatus) ([]model.Ticket, error) {
    return r.filter(func(t model.Ticket) bool { return t.Status == status }), nil
}

func (r *MemTicketRepo) Transition(_ context.Context, id int64, from, to model.TicketState) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    t, ok := r.tickets[id]
    if !ok {
        return ErrNotFound
    }
    if t.OwnerID != from.OwnerID || t.Status != from.Status {
        return ErrConflict
    }
    t.OwnerID = to.OwnerID
    t.Status = to.Status
    r.tickets[id] = t
    return nil
}

func (r *MemTicketRepo) filter(keep func(model.Ticket) bool) []model.Ticket {
    r.mu.RLock()
    defer r.mu.RUnlock()
    var out []model.Ticket
    for _, t := range r.tickets {
        if keep(t) {
            out = append(out, t)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}
