// Background consumer that listens to the notifications queue and appends
// an audit line per message.

package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log/slog"
    "strings"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer consumes NotificationsQueue and writes one line per message
// to Out (logs/notifications.log in the server).
type AuditConsumer struct {
    URL    string
    Out    io.Writer
    Logger *slog.Logger

    mu sync.Mutex // serializes writes to Out
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes until
// ctx is cancelled.  Lost connections are retried with exponential backoff
// so the server keeps operating while the broker is down.
func (c *AuditConsumer) Run(ctx context.Context) error {
    logger := c.Logger
    if logger == nil {
        logger = slog.Default()
    }
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            logger.Warn("notification consumer: dial failed", "error", err, "retry_in", backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn, logger)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        logger.Warn("notification consumer: consume loop ended, reconnecting", "error", err)
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection, logger *slog.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        logger.Warn("notification consumer: set QoS failed", "error", err)
    }
    if _, err := ch.QueueDeclare(NotificationsQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(NotificationsQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Handle(d.Body); err != nil {
                logger.Error("notification consumer: handle message failed", "error", err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one message body and writes its audit line.
func (c *AuditConsumer) Handle(body []byte) error {
    var msg NotificationMessage
    if err := json.Unmarshal(body, &msg); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if msg.Kind == "" || msg.UserID == "" {
        return errors.New("message without kind or user")
    }

    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | user_id=%s", msg.OccurredAt, msg.Kind, msg.UserID)
    if msg.EventID != 0 {
        fmt.Fprintf(&b, " | event_id=%d", msg.EventID)
    }
    if msg.OrderID != "" {
        fmt.Fprintf(&b, " | order_id=%s", msg.OrderID)
    }
    if msg.OfferID != 0 {
        fmt.Fprintf(&b, " | offer_id=%d", msg.OfferID)
    }
    if msg.TicketID != 0 {
        fmt.Fprintf(&b, " | ticket_id=%d", msg.TicketID)
    }
    for _, k := range msg.attributeKeys() {
        fmt.Fprintf(&b, " | %s=%q", k, msg.Attributes[k])
    }
    b.WriteByte('\n')

    c.mu.Lock()
    defer c.mu.Unlock()
    if _, err := io.WriteString(c.Out, b.String()); err != nil {
        return fmt.Errorf("write audit log: %w", err)
    }
    return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
