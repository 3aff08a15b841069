package repository

import (
    "context"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/fair-ticketing/internal/model"
)

func TestEventRepo_CreateAndGet(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()
    repo := NewEventRepo(db)

    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
        WithArgs("Finals", "Arena", "Austin", sqlmock.AnyArg(), 100, 4, "PUBLISHED", sqlmock.AnyArg()).
        WillReturnResult(sqlmock.NewResult(12, 1))

    ev := &model.Event{Name: "Finals", VenueName: "Arena", City: "Austin",
        TicketPrice: decimal.RequireFromString("80.00"), TotalSeats: 100, MaxTicketsPerPerson: 4,
        Status: model.EventPublished}
    require.NoError(t, repo.Create(context.Background(), ev))
    assert.Equal(t, int64(12), ev.ID)

    created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
    mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = ?")).
        WithArgs(int64(12)).
        WillReturnRows(sqlmock.NewRows([]string{"id", "name", "venue_name", "city", "ticket_price",
            "total_seats", "max_tickets_per_person", "status", "created_at"}).
            AddRow(12, "Finals", "Arena", "Austin", "80.00", 100, 4, "PUBLISHED", created))

    got, err := repo.Get(context.Background(), 12)
    require.NoError(t, err)
    assert.Equal(t, "Finals", got.Name)
    assert.True(t, got.Open())
    assert.Equal(t, created, got.CreatedAt)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_UpdateCapacityMissing(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()
    repo := NewEventRepo(db)

    mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET total_seats = ? WHERE id = ?")).
        WithArgs(50, int64(9)).
        WillReturnResult(sqlmock.NewResult(0, 0))

    assert.ErrorIs(t, repo.UpdateCapacity(context.Background(), 9, 50), ErrNotFound)
}

func TestEventRepo_Search(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()
    repo := NewEventRepo(db)

    mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE LOWER(city) LIKE ? AND status = ?")).
        WithArgs("%austin%", "PUBLISHED").
        WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))
    created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
    mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id LIMIT ? OFFSET ?")).
        WithArgs("%austin%", "PUBLISHED", 20, 40).
        WillReturnRows(sqlmock.NewRows([]string{"id", "name", "venue_name", "city", "ticket_price",
            "total_seats", "max_tickets_per_person", "status", "created_at"}).
            AddRow(41, "Finals", "Arena", "Austin", "80.00", 100, 4, "PUBLISHED", created))

    got, total, err := repo.Search(context.Background(), EventSearchQuery{City: "Austin", Status: model.EventPublished, Page: 3})
    require.NoError(t, err)
    assert.Equal(t, int64(41), total)
    require.Len(t, got, 1)
    assert.Equal(t, int64(41), got[0].ID)
    assert.NoError(t, mock.ExpectationsWereMet())
}
