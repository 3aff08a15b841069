package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/fair-ticketing/internal/model"
)

// EventRepo provides data access to the events table.  Capacity lives
// both here (catalog data) and in seat_ledgers (seat math); the ledger
// copy is authoritative for admission.
type EventRepo struct {
    db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, name, venue_name, city, ticket_price, total_seats, max_tickets_per_person, status, created_at`

// Create inserts a new event and fills in its generated ID and creation
// timestamp.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
    if ev.CreatedAt.IsZero() {
        ev.CreatedAt = time.Now().UTC()
    }
    const q = `INSERT INTO events (name, venue_name, city, ticket_price, total_seats, max_tickets_per_person, status, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, ev.Name, ev.VenueName, ev.City, ev.TicketPrice,
        ev.TotalSeats, ev.MaxTicketsPerPerson, string(ev.Status), ev.CreatedAt)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    ev.ID = id
    return nil
}

// Get returns a single event by ID or ErrNotFound.
func (r *EventRepo) Get(ctx context.Context, id int64) (model.Event, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
    ev, err := scanEvent(row)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Event{}, ErrNotFound
    }
    return ev, err
}

// List returns all events ordered by ID.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
    rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Event
    for rows.Next() {
        ev, err := scanEvent(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, ev)
    }
    return out, rows.Err()
}

// UpdateCapacity stores a new seat capacity for the event.
func (r *EventRepo) UpdateCapacity(ctx context.Context, id int64, totalSeats int) error {
    res, err := r.db.ExecContext(ctx, `UPDATE events SET total_seats = ? WHERE id = ?`, totalSeats, id)
    if err != nil {
        return err
    }
    return expectOne(res)
}

// UpdateStatus moves the event to a new publication status.
func (r *EventRepo) UpdateStatus(ctx context.Context, id int64, status model.EventStatus) error {
    res, err := r.db.ExecContext(ctx, `UPDATE events SET status = ? WHERE id = ?`, string(status), id)
    if err != nil {
        return err
    }
    return expectOne(res)
}

type rowScanner interface {
    Scan(dest ...any) error
}

func scanEvent(s rowScanner) (model.Event, error) {
    var ev model.Event
    var status string
    err := s.Scan(&ev.ID, &ev.Name, &ev.VenueName, &ev.City, &ev.TicketPrice,
        &ev.TotalSeats, &ev.MaxTicketsPerPerson, &status, &ev.CreatedAt)
    ev.Status = model.EventStatus(status)
    return ev, err
}

// expectOne maps a zero-row update to ErrNotFound.  The DSN sets
// clientFoundRows so unchanged rows still count as matched.
func expectOne(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}
