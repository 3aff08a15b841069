package repository

import (
    "context"
    "database/sql"
    "regexp"
    "testing"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/fair-ticketing/internal/ledger"
)

func newLedgerMock(t *testing.T) (*LedgerRepo, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })
    return NewLedgerRepo(db, nil), mock
}

func TestLedgerRepo_TryHoldRecordsGrant(t *testing.T) {
    repo, mock := newLedgerMock(t)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_ledgers SET held_count = held_count + ?")).
        WithArgs(2, int64(7), 2).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seat_grants")).
        WithArgs(sqlmock.AnyArg(), int64(7), 2, "HELD").
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    g, err := repo.TryHold(context.Background(), 7, 2)
    require.NoError(t, err)
    assert.Equal(t, int64(7), g.EventID)
    assert.Equal(t, 2, g.Seats)
    assert.NotEmpty(t, g.ID)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_TryHoldDenied(t *testing.T) {
    repo, mock := newLedgerMock(t)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_ledgers SET held_count = held_count + ?")).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM seat_ledgers WHERE event_id = ?")).
        WithArgs(int64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
    mock.ExpectRollback()

    _, err := repo.TryHold(context.Background(), 7, 3)
    assert.ErrorIs(t, err, ledger.ErrDenied)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_TryHoldUnknownEvent(t *testing.T) {
    repo, mock := newLedgerMock(t)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_ledgers SET held_count = held_count + ?")).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM seat_ledgers")).
        WillReturnError(sql.ErrNoRows)
    mock.ExpectRollback()

    _, err := repo.TryHold(context.Background(), 99, 1)
    assert.ErrorIs(t, err, ledger.ErrUnknownEvent)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_CommitMovesHeldToSold(t *testing.T) {
    repo, mock := newLedgerMock(t)
    g := ledger.Grant{ID: "g-1", EventID: 7, Seats: 2}

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("SELECT seats FROM seat_grants WHERE id = ? AND state = ? FOR UPDATE")).
        WithArgs("g-1", "HELD").
        WillReturnRows(sqlmock.NewRows([]string{"seats"}).AddRow(2))
    mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_grants SET state = ? WHERE id = ?")).
        WithArgs("COMMITTED", "g-1").
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("sold_count = sold_count + ?")).
        WithArgs(2, 2, int64(7), 2).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    require.NoError(t, repo.Commit(context.Background(), g))
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ReleaseOfConsumedGrant(t *testing.T) {
    repo, mock := newLedgerMock(t)

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("SELECT seats FROM seat_grants")).
        WithArgs("g-1", "HELD").
        WillReturnRows(sqlmock.NewRows([]string{"seats"}))
    mock.ExpectRollback()

    err := repo.Release(context.Background(), ledger.Grant{ID: "g-1", EventID: 7, Seats: 2})
    assert.ErrorIs(t, err, ledger.ErrGrantConsumed)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ReleaseDetectsInvariantViolation(t *testing.T) {
    repo, mock := newLedgerMock(t)

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("SELECT seats FROM seat_grants")).
        WillReturnRows(sqlmock.NewRows([]string{"seats"}).AddRow(4))
    mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_grants SET state = ?")).
        WithArgs("RELEASED", "g-2").
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_ledgers SET held_count = held_count - ?")).
        WithArgs(4, int64(7), 4).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectRollback()

    err := repo.Release(context.Background(), ledger.Grant{ID: "g-2", EventID: 7, Seats: 4})
    assert.ErrorIs(t, err, ledger.ErrInvariantViolation)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ResizeBelowUsage(t *testing.T) {
    repo, mock := newLedgerMock(t)

    mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_ledgers SET total_seats = ?")).
        WithArgs(3, int64(7), 3).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT total_seats, sold_count, held_count FROM seat_ledgers")).
        WithArgs(int64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"total_seats", "sold_count", "held_count"}).AddRow(10, 4, 1))

    err := repo.Resize(context.Background(), 7, 3)
    assert.ErrorIs(t, err, ledger.ErrCapacityBelowUsage)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Snapshot(t *testing.T) {
    repo, mock := newLedgerMock(t)

    mock.ExpectQuery(regexp.QuoteMeta("SELECT total_seats, sold_count, held_count FROM seat_ledgers")).
        WithArgs(int64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"total_seats", "sold_count", "held_count"}).AddRow(10, 4, 1))

    c, err := repo.Snapshot(context.Background(), 7)
    require.NoError(t, err)
    assert.Equal(t, ledger.Counts{Total: 10, Sold: 4, Held: 1}, c)
    assert.Equal(t, 5, c.Available())
}

func TestLedgerRepo_ReleaseOutstanding(t *testing.T) {
    repo, mock := newLedgerMock(t)

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("SELECT event_id, SUM(seats) FROM seat_grants")).
        WithArgs("HELD").
        WillReturnRows(sqlmock.NewRows([]string{"event_id", "seats"}).AddRow(7, 3).AddRow(8, 1))
    mock.ExpectExec(regexp.QuoteMeta("GREATEST(held_count - ?, 0)")).
        WithArgs(3, int64(7)).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("GREATEST(held_count - ?, 0)")).
        WithArgs(1, int64(8)).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_grants SET state = ? WHERE state = ?")).
        WithArgs("RELEASED", "HELD").
        WillReturnResult(sqlmock.NewResult(0, 3))
    mock.ExpectCommit()

    n, err := repo.ReleaseOutstanding(context.Background())
    require.NoError(t, err)
    assert.Equal(t, 3, n)
    assert.NoError(t, mock.ExpectationsWereMet())
}
