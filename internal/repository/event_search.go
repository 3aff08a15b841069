package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/iliyamo/fair-ticketing/internal/model"
)

// EventSearchQuery defines filters & pagination for the public catalog.
type EventSearchQuery struct {
	Name     string
	City     string
	Status   model.EventStatus
	Page     int
	PageSize int
}

// Normalize clamps paging to 1..100 rows per page, 20 by default.
func (q EventSearchQuery) Normalize() EventSearchQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	return q
}

// Search returns one page of matching events and the total match count.
// Name and city match case-insensitively on substrings.
func (r *EventRepo) Search(ctx context.Context, q EventSearchQuery) ([]model.Event, int64, error) {
	q = q.Normalize()
	where := []string{}
	args := []any{}

	if q.Name != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Name)+"%")
	}
	if q.City != "" {
		where = append(where, "LOWER(city) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.City)+"%")
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT ` + eventColumns + ` FROM events WHERE ` + cond + ` ORDER BY id LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Event, 0, q.PageSize)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Search mirrors EventRepo.Search over the in-memory catalog.
func (r *MemEventRepo) Search(_ context.Context, q EventSearchQuery) ([]model.Event, int64, error) {
	q = q.Normalize()
	name := strings.ToLower(q.Name)
	city := strings.ToLower(q.City)

	r.mu.RLock()
	matched := make([]model.Event, 0, len(r.events))
	for _, ev := range r.events {
		if name != "" && !strings.Contains(strings.ToLower(ev.Name), name) {
			continue
		}
		if city != "" && !strings.Contains(strings.ToLower(ev.City), city) {
			continue
		}
		if q.Status != "" && ev.Status != q.Status {
			continue
		}
		matched = append(matched, ev)
	}
	r.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	start := (q.Page - 1) * q.PageSize
	if start >= len(matched) {
		return []model.Event{}, total, nil
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}
