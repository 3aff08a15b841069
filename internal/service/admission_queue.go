package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/fair-ticketing/internal/ledger"
	"github.com/iliyamo/fair-ticketing/internal/model"
)

// AdmissionQueue is the per-event waiting room.  Entries are admitted in
// strict sequence order: when the head cannot get seats nobody behind it
// is admitted.
type AdmissionQueue struct {
	ledger   ledger.SeatLedger
	events   EventStore
	holds    *ReservationManager
	notifier Notifier
	clock    clockwork.Clock
	logger   *slog.Logger
	maxDepth int
	locks    *keyedMutex[int64]
	seq      atomic.Uint64

	mu    sync.Mutex
	lines map[int64]*eventLine
}

// eventLine is the queue of one event.  It is only touched under the
// event lock.
type eventLine struct {
	event     model.Event
	active    []*model.QueueEntry // WAITING and CAN_BUY, by sequence
	byUser    map[string]*model.QueueEntry
	settledAt map[string]time.Time
	waiting   int
}

func (q *AdmissionQueue) line(eventID int64) *eventLine {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lines[eventID]
}

func (q *AdmissionQueue) lineFor(ev model.Event) *eventLine {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lines[ev.ID]
	if !ok {
		l = &eventLine{
			byUser:    make(map[string]*model.QueueEntry),
			settledAt: make(map[string]time.Time),
			event:     ev,
		}
		q.lines[ev.ID] = l
	}
	return l
}

func (q *AdmissionQueue) eventIDs() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]int64, 0, len(q.lines))
	for id := range q.lines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Join enqueues the user and immediately runs an admission pass, so the
// returned entry may already be CAN_BUY.
func (q *AdmissionQueue) Join(ctx context.Context, eventID int64, userID string, requested int) (model.QueueEntry, error) {
	if userID == "" || requested < 1 {
		return model.QueueEntry{}, fmt.Errorf("%w: requestedTickets must be at least 1", ErrInvalidRequest)
	}
	ev, err := q.events.Get(ctx, eventID)
	if err != nil {
		return model.QueueEntry{}, mapEventErr(err)
	}
	if !ev.Open() {
		return model.QueueEntry{}, ErrEventNotOpen
	}
	if requested > ev.MaxTicketsPerPerson {
		return model.QueueEntry{}, fmt.Errorf("%w: at most %d tickets per person", ErrCapacityExceeded, ev.MaxTicketsPerPerson)
	}

	unlock := q.locks.Lock(eventID)
	l := q.lineFor(ev)
	if !l.event.Open() {
		unlock()
		return model.QueueEntry{}, ErrEventNotOpen
	}
	if prev, ok := l.byUser[userID]; ok && prev.State.Active() {
		unlock()
		return model.QueueEntry{}, ErrAlreadyQueued
	}
	if q.maxDepth > 0 && l.waiting >= q.maxDepth {
		unlock()
		return model.QueueEntry{}, fmt.Errorf("%w: queue is full", ErrCapacityExceeded)
	}
	counts, err := q.ledger.Snapshot(ctx, eventID)
	if err != nil {
		unlock()
		return model.QueueEntry{}, err
	}
	if requested > counts.Unsold() {
		unlock()
		return model.QueueEntry{}, fmt.Errorf("%w: only %d unsold seats", ErrCapacityExceeded, counts.Unsold())
	}
	e := &model.QueueEntry{
		EventID:          eventID,
		UserID:           userID,
		RequestedTickets: requested,
		Sequence:         q.seq.Add(1),
		EnqueuedAt:       q.clock.Now(),
		State:            model.QueueWaiting,
	}
	l.active = append(l.active, e)
	l.byUser[userID] = e
	delete(l.settledAt, userID)
	l.waiting++
	notes := q.admitLocked(ctx, eventID, l)
	out := *e
	unlock()

	q.logger.Debug("queue joined", "event_id", eventID, "user_id", userID, "sequence", out.Sequence, "state", out.State)
	dispatch(ctx, q.notifier, q.logger, notes)
	return out, nil
}

// Leave cancels the user's active entry.  A CAN_BUY entry also cancels its
// hold, which returns the seats and admits the next entries.
func (q *AdmissionQueue) Leave(ctx context.Context, eventID int64, userID string) error {
	unlock := q.locks.Lock(eventID)
	l := q.line(eventID)
	if l == nil {
		unlock()
		return ErrNotQueued
	}
	e, ok := l.byUser[userID]
	if !ok || !e.State.Active() {
		unlock()
		return ErrNotQueued
	}

	var notes []model.Notification
	if e.State == model.QueueCanBuy {
		if err := q.holds.cancelLocked(ctx, e.HoldID); err != nil {
			unlock()
			return err
		}
		l.settle(e, model.QueueCancelled, q.clock.Now())
		notes = q.admitLocked(ctx, eventID, l)
	} else {
		l.settle(e, model.QueueCancelled, q.clock.Now())
	}
	unlock()

	q.logger.Debug("queue left", "event_id", eventID, "user_id", userID)
	dispatch(ctx, q.notifier, q.logger, notes)
	return nil
}

// Status reports the user's place in the event queue.  A user without an
// active entry gets QueueNone; a settled entry also carries LastOutcome.
func (q *AdmissionQueue) Status(ctx context.Context, eventID int64, userID string) (model.QueueStatus, error) {
	unlock := q.locks.Lock(eventID)
	defer unlock()
	l := q.line(eventID)
	if l == nil {
		ev, err := q.events.Get(ctx, eventID)
		if err != nil {
			return model.QueueStatus{}, mapEventErr(err)
		}
		return statusHeader(ev, model.QueueNone), nil
	}
	return q.statusLocked(l, userID), nil
}

// StatusesForUser returns the user's active entries across all events.
func (q *AdmissionQueue) StatusesForUser(_ context.Context, userID string) []model.QueueStatus {
	var out []model.QueueStatus
	for _, id := range q.eventIDs() {
		unlock := q.locks.Lock(id)
		if l := q.line(id); l != nil {
			if e, ok := l.byUser[userID]; ok && e.State.Active() {
				out = append(out, q.statusLocked(l, userID))
			}
		}
		unlock()
	}
	return out
}

func statusHeader(ev model.Event, state model.QueueState) model.QueueStatus {
	return model.QueueStatus{
		EventID:   ev.ID,
		EventName: ev.Name,
		VenueName: ev.VenueName,
		City:      ev.City,
		State:     state,
	}
}

func (q *AdmissionQueue) statusLocked(l *eventLine, userID string) model.QueueStatus {
	e, ok := l.byUser[userID]
	if !ok {
		return statusHeader(l.event, model.QueueNone)
	}
	if !e.State.Active() {
		st := statusHeader(l.event, model.QueueNone)
		st.LastOutcome = e.State
		return st
	}
	st := statusHeader(l.event, e.State)
	switch e.State {
	case model.QueueWaiting:
		ahead := 0
		for _, other := range l.active {
			if other.Sequence >= e.Sequence {
				break
			}
			ahead++
		}
		pos := ahead + 1
		st.PeopleAhead = &ahead
		st.Position = &pos
	case model.QueueCanBuy:
		zero := 0
		st.PeopleAhead = &zero
		st.OrderID = e.HoldID
		if h, ok := q.holds.lookup(e.HoldID); ok {
			n := h.ReservedTickets
			exp := h.ExpiresAt
			st.ReservedTickets = &n
			st.ExpiresAt = &exp
		}
	}
	return st
}

// AdmitAvailableCapacity runs an admission pass for one event.  It is
// called whenever seats come back and by the periodic sweep.
func (q *AdmissionQueue) AdmitAvailableCapacity(ctx context.Context, eventID int64) int {
	unlock := q.locks.Lock(eventID)
	l := q.line(eventID)
	if l == nil {
		unlock()
		return 0
	}
	notes := q.admitLocked(ctx, eventID, l)
	unlock()
	dispatch(ctx, q.notifier, q.logger, notes)
	return countKind(notes, model.NotifyPromoted)
}

// AdmitAll runs an admission pass over every event with a queue.
func (q *AdmissionQueue) AdmitAll(ctx context.Context) int {
	admitted := 0
	for _, id := range q.eventIDs() {
		admitted += q.AdmitAvailableCapacity(ctx, id)
	}
	return admitted
}

// Refresh mirrors a changed event into its queue.  A closed event ends
// every WAITING entry with a sold-out notification; an open one gets an
// admission pass.  It returns the number of promoted entries.
func (q *AdmissionQueue) Refresh(ctx context.Context, ev model.Event) int {
	unlock := q.locks.Lock(ev.ID)
	l := q.line(ev.ID)
	if l == nil {
		unlock()
		return 0
	}
	l.event = ev
	var notes []model.Notification
	if ev.Status == model.EventClosed {
		notes = q.closeOutLocked(l)
	} else {
		notes = q.admitLocked(ctx, ev.ID, l)
	}
	unlock()
	dispatch(ctx, q.notifier, q.logger, notes)
	return countKind(notes, model.NotifyPromoted)
}

func (q *AdmissionQueue) closeOutLocked(l *eventLine) []model.Notification {
	var notes []model.Notification
	now := q.clock.Now()
	for head := l.head(); head != nil; head = l.head() {
		l.settle(head, model.QueueCancelled, now)
		notes = append(notes, model.Notification{
			Kind:       model.NotifySoldOut,
			UserID:     head.UserID,
			EventID:    head.EventID,
			Attributes: map[string]string{"requestedTickets": strconv.Itoa(head.RequestedTickets)},
			OccurredAt: now,
		})
	}
	if len(notes) > 0 {
		q.logger.Info("event closed, waiting entries cancelled", "event_id", l.event.ID, "entries", len(notes))
	}
	return notes
}

// Prune forgets entries settled before the cutoff and drops queues that
// have nothing left to report.
func (q *AdmissionQueue) Prune(before time.Time) int {
	pruned := 0
	for _, id := range q.eventIDs() {
		unlock := q.locks.Lock(id)
		if l := q.line(id); l != nil {
			for user, at := range l.settledAt {
				if at.Before(before) {
					delete(l.settledAt, user)
					delete(l.byUser, user)
					pruned++
				}
			}
			if len(l.byUser) == 0 {
				q.mu.Lock()
				delete(q.lines, id)
				q.mu.Unlock()
			}
		}
		unlock()
	}
	return pruned
}

// admitLocked promotes WAITING entries in sequence order until the head is
// denied.  Nothing is admitted while the event is not open.
func (q *AdmissionQueue) admitLocked(ctx context.Context, eventID int64, l *eventLine) []model.Notification {
	var notes []model.Notification
	if !l.event.Open() {
		return notes
	}
	for {
		head := l.head()
		if head == nil {
			return notes
		}
		grant, err := q.ledger.TryHold(ctx, eventID, head.RequestedTickets)
		if errors.Is(err, ledger.ErrDenied) {
			return notes
		}
		if err != nil {
			q.logger.Error("admission stopped", "event_id", eventID, "error", err)
			return notes
		}

		h := q.holds.createHoldLocked(head, grant)
		head.State = model.QueueCanBuy
		head.HoldID = h.ID
		l.waiting--
		notes = append(notes, model.Notification{
			Kind:       model.NotifyPromoted,
			UserID:     head.UserID,
			EventID:    eventID,
			OrderID:    h.ID,
			Attributes: map[string]string{"expiresAt": h.ExpiresAt.UTC().Format(timeLayout)},
			OccurredAt: h.CreatedAt,
		})
		q.logger.Info("queue entry admitted", "event_id", eventID, "user_id", head.UserID,
			"order_id", h.ID, "tickets", head.RequestedTickets)
	}
}

// settleLocked moves the user's entry for a hold into a terminal state.
func (q *AdmissionQueue) settleLocked(eventID int64, userID, holdID string, state model.QueueState) {
	l := q.line(eventID)
	if l == nil {
		return
	}
	e, ok := l.byUser[userID]
	if !ok || e.HoldID != holdID || !e.State.Active() {
		return
	}
	l.settle(e, state, q.clock.Now())
}

func (l *eventLine) head() *model.QueueEntry {
	for _, e := range l.active {
		if e.State == model.QueueWaiting {
			return e
		}
	}
	return nil
}

// settle records a terminal state and drops the entry from the line.  The
// entry stays in byUser until pruned so Status can report how it ended.
func (l *eventLine) settle(e *model.QueueEntry, state model.QueueState, at time.Time) {
	if e.State == model.QueueWaiting {
		l.waiting--
	}
	e.State = state
	l.settledAt[e.UserID] = at
	for i, other := range l.active {
		if other == e {
			l.active = append(l.active[:i], l.active[i+1:]...)
			break
		}
	}
}

func countKind(notes []model.Notification, kind model.NotificationKind) int {
	n := 0
	for _, note := range notes {
		if note.Kind == kind {
			n++
		}
	}
	return n
}
