package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/fair-ticketing/internal/model"
)

// TicketRepo provides data access to the tickets table.  Ownership and
// status change only through Transition, a compare-and-set on both.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, serial, event_id, order_id, owner_id, price, status, created_at`

// Create inserts a ticket and fills in its generated ID.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
    if t.CreatedAt.IsZero() {
        t.CreatedAt = time.Now().UTC()
    }
    const q = `INSERT INTO tickets (serial, event_id, order_id, owner_id, price, status, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, t.Serial, t.EventID, t.OrderID, t.OwnerID, t.Price, string(t.Status), t.CreatedAt)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    t.ID = id
    return nil
}

// Get returns a ticket by ID or ErrNotFound.
func (r *TicketRepo) Get(ctx context.Context, id int64) (model.Ticket, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
    t, err := scanTicket(row)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Ticket{}, ErrNotFound
    }
    return t, err
}

// ListByOrder returns the tickets issued for an order, oldest first.
func (r *TicketRepo) ListByOrder(ctx context.Context, orderID string) ([]model.Ticket, error) {
    return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE order_id = ? ORDER BY id`, orderID)
}

// ListByOwner returns the tickets currently owned by a user.
func (r *TicketRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Ticket, error) {
    return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE owner_id = ? ORDER BY id`, ownerID)
}

// ListByStatus returns every ticket in the given status, oldest first.
func (r *TicketRepo) ListByStatus(ctx context.Context, status model.TicketStatus) ([]model.Ticket, error) {
    return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE status = ? ORDER BY id`, string(status))
}

// Transition moves a ticket from one owner/status pair to another.  It
// returns ErrConflict when the row no longer matches from.
func (r *TicketRepo) Transition(ctx context.Context, id int64, from, to model.TicketState) error {
    const q = `UPDATE tickets SET owner_id = ?, status = ? WHERE id = ? AND owner_id = ? AND status = ?`
    res, err := r.db.ExecContext(ctx, q, to.OwnerID, string(to.Status), id, from.OwnerID, string(from.Status))
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 1 {
        return nil
    }
    if _, err := r.Get(ctx, id); err != nil {
        return err
    }
    return ErrConflict
}

func (r *TicketRepo) list(ctx context.Context, q string, arg any) ([]model.Ticket, error) {
    rows, err := r.db.QueryContext(ctx, q, arg)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Ticket
    for rows.Next() {
        t, err := scanTicket(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, t)
    }
    return out, rows.Err()
}

func scanTicket(s rowScanner) (model.Ticket, error) {
    var t model.Ticket
    var status string
    err := s.Scan(&t.ID, &t.Serial, &t.EventID, &t.OrderID, &t.OwnerID, &t.Price, &status, &t.CreatedAt)
    t.Status = model.TicketStatus(status)
    return t, err
}
