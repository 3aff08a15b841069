package queue

import (
    "bytes"
    "encoding/json"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/fair-ticketing/internal/model"
)

func TestHandleWritesAuditLine(t *testing.T) {
    var out bytes.Buffer
    c := &AuditConsumer{Out: &out}

    msg := FromNotification(model.Notification{
        Kind:       model.NotifyPromoted,
        UserID:     "alice",
        EventID:    7,
        OrderID:    "order-1",
        Attributes: map[string]string{"expiresAt": "2026-03-01T18:10:00Z"},
        OccurredAt: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
    })
    body, err := json.Marshal(msg)
    require.NoError(t, err)

    require.NoError(t, c.Handle(body))
    assert.Equal(t,
        "[2026-03-01T18:00:00Z] queue.promoted | user_id=alice | event_id=7 | order_id=order-1 | expiresAt=\"2026-03-01T18:10:00Z\"\n",
        out.String())
}

func TestHandleRejectsBadPayload(t *testing.T) {
    c := &AuditConsumer{Out: &bytes.Buffer{}}
    assert.Error(t, c.Handle([]byte("{")))
    assert.Error(t, c.Handle([]byte(`{"kind":"queue.promoted"}`)))
}
