package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "log/slog"

    "github.com/google/uuid"

    "github.com/iliyamo/fair-ticketing/internal/ledger"
)

// LedgerRepo is a ledger.SeatLedger backed by the seat_ledgers and
// seat_grants tables.  Seat math is a conditional row update, so several
// service instances may share one database without a shared lock.  Each
// grant row moves out of HELD exactly once, which is what prevents a
// double release.
type LedgerRepo struct {
    db     *sql.DB
    logger *slog.Logger
}

// NewLedgerRepo returns a new LedgerRepo bound to the provided database.
func NewLedgerRepo(db *sql.DB, logger *slog.Logger) *LedgerRepo {
    if logger == nil {
        logger = slog.Default()
    }
    return &LedgerRepo{db: db, logger: logger}
}

// Open inserts the ledger row for an event; an existing row is kept.
func (r *LedgerRepo) Open(ctx context.Context, eventID int64, totalSeats int) error {
    const q = `INSERT INTO seat_ledgers (event_id, total_seats, sold_count, held_count)
               VALUES (?, ?, 0, 0)
               ON DUPLICATE KEY UPDATE event_id = event_id`
    _, err := r.db.ExecContext(ctx, q, eventID, totalSeats)
    return err
}

// Resize updates total_seats unless it would drop below sold + held.
func (r *LedgerRepo) Resize(ctx context.Context, eventID int64, totalSeats int) error {
    const q = `UPDATE seat_ledgers SET total_seats = ? WHERE event_id = ? AND sold_count + held_count <= ?`
    res, err := r.db.ExecContext(ctx, q, totalSeats, eventID, totalSeats)
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
    if _, err := r.Snapshot(ctx, eventID); err != nil {
        return err
    }
    return fmt.Errorf("%w: requested %d", ledger.ErrCapacityBelowUsage, totalSeats)
}

// TryHold increments held_count only when the seats fit and records the
// grant in the same transaction.
func (r *LedgerRepo) TryHold(ctx context.Context, eventID int64, seats int) (ledger.Grant, error) {
    if seats <= 0 {
        return ledger.Grant{}, fmt.Errorf("%w: non-positive request %d", ledger.ErrDenied, seats)
    }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return ledger.Grant{}, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const hold = `UPDATE seat_ledgers SET held_count = held_count + ?
                  WHERE event_id = ? AND sold_count + held_count + ? <= total_seats`
    res, err := tx.ExecContext(ctx, hold, seats, eventID, seats)
    if err != nil {
        return ledger.Grant{}, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return ledger.Grant{}, err
    }
    if n == 0 {
        var one int
        err := tx.QueryRowContext(ctx, `SELECT 1 FROM seat_ledgers WHERE event_id = ?`, eventID).Scan(&one)
        if errors.Is(err, sql.ErrNoRows) {
            return ledger.Grant{}, fmt.Errorf("%w: %d", ledger.ErrUnknownEvent, eventID)
        }
        if err != nil {
            return ledger.Grant{}, err
        }
        return ledger.Grant{}, ledger.ErrDenied
    }

    g := ledger.Grant{ID: uuid.NewString(), EventID: eventID, Seats: seats}
    const insert = `INSERT INTO seat_grants (id, event_id, seats, state) VALUES (?, ?, ?, ?)`
    if _, err := tx.ExecContext(ctx, insert, g.ID, g.EventID, g.Seats, string(ledger.GrantHeld)); err != nil {
        return ledger.Grant{}, err
    }
    if err := tx.Commit(); err != nil {
        return ledger.Grant{}, err
    }
    committed = true
    return g, nil
}

// Commit moves a held grant to sold.
func (r *LedgerRepo) Commit(ctx context.Context, g ledger.Grant) error {
    const q = `UPDATE seat_ledgers SET held_count = held_count - ?, sold_count = sold_count + ?
               WHERE event_id = ? AND held_count >= ?`
    return r.consume(ctx, g, ledger.GrantCommitted, q, true)
}

// Release returns a held grant to the available pool.
func (r *LedgerRepo) Release(ctx context.Context, g ledger.Grant) error {
    const q = `UPDATE seat_ledgers SET held_count = held_count - ?
               WHERE event_id = ? AND held_count >= ?`
    return r.consume(ctx, g, ledger.GrantReleased, q, false)
}

func (r *LedgerRepo) consume(ctx context.Context, g ledger.Grant, to ledger.GrantState, counterSQL string, sold bool) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    var seats int
    const lock = `SELECT seats FROM seat_grants WHERE id = ? AND state = ? FOR UPDATE`
    err = tx.QueryRowContext(ctx, lock, g.ID, string(ledger.GrantHeld)).Scan(&seats)
    if errors.Is(err, sql.ErrNoRows) {
        return fmt.Errorf("%w: grant %s", ledger.ErrGrantConsumed, g.ID)
    }
    if err != nil {
        return err
    }
    if _, err := tx.ExecContext(ctx, `UPDATE seat_grants SET state = ? WHERE id = ?`, string(to), g.ID); err != nil {
        return err
    }

    args := []any{seats}
    if sold {
        args = append(args, seats)
    }
    args = append(args, g.EventID, seats)
    res, err := tx.ExecContext(ctx, counterSQL, args...)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        err := fmt.Errorf("%w: event %d cannot give back %d held seats", ledger.ErrInvariantViolation, g.EventID, seats)
        r.logger.Error("seat ledger invariant violated", "event_id", g.EventID, "grant_id", g.ID, "error", err)
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// Snapshot reads the counters of one event.
func (r *LedgerRepo) Snapshot(ctx context.Context, eventID int64) (ledger.Counts, error) {
    var c ledger.Counts
    const q = `SELECT total_seats, sold_count, held_count FROM seat_ledgers WHERE event_id = ?`
    err := r.db.QueryRowContext(ctx, q, eventID).Scan(&c.Total, &c.Sold, &c.Held)
    if errors.Is(err, sql.ErrNoRows) {
        return ledger.Counts{}, fmt.Errorf("%w: %d", ledger.ErrUnknownEvent, eventID)
    }
    return c, err
}

// ReleaseOutstanding gives back every HELD grant.  Holds live in process
// memory, so after a restart no grant still in HELD has an owner.
func (r *LedgerRepo) ReleaseOutstanding(ctx context.Context) (int, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const sum = `SELECT event_id, SUM(seats) FROM seat_grants WHERE state = ? GROUP BY event_id FOR UPDATE`
    rows, err := tx.QueryContext(ctx, sum, string(ledger.GrantHeld))
    if err != nil {
        return 0, err
    }
    type pending struct {
        eventID int64
        seats   int
    }
    var totals []pending
    for rows.Next() {
        var p pending
        if err := rows.Scan(&p.eventID, &p.seats); err != nil {
            rows.Close()
            return 0, err
        }
        totals = append(totals, p)
    }
    if err := rows.Err(); err != nil {
        rows.Close()
        return 0, err
    }
    if err := rows.Close(); err != nil {
        return 0, err
    }
    for _, p := range totals {
        const q = `UPDATE seat_ledgers SET held_count = GREATEST(held_count - ?, 0) WHERE event_id = ?`
        if _, err := tx.ExecContext(ctx, q, p.seats, p.eventID); err != nil {
            return 0, err
        }
    }
    res, err := tx.ExecContext(ctx, `UPDATE seat_grants SET state = ? WHERE state = ?`,
        string(ledger.GrantReleased), string(ledger.GrantHeld))
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return 0, err
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return int(n), nil
}
