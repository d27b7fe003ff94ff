package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/ledger"
)

// NotificationFile is the file, relative to the log directory, that
// rendered notifications are appended to.
const NotificationFile = "notifications.log"

// Directory resolves the address notifications for a user are sent to.
type Directory interface {
	EmailFor(ctx context.Context, userID uint64) (string, error)
}

// Notification is a rendered message ready for delivery.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Consumer drains the events queue and delivers a notification for each
// message.  Delivery appends to a log file; swapping in a mailer only
// requires another deliver implementation.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	dir      string
	users    Directory
	log      Logger

	mu sync.Mutex // serialises writes to the notification file
}

// NewConsumer returns a consumer for cfg.Queue.  users may be nil, in
// which case notifications are addressed by user id only.
func NewConsumer(cfg config.QueueConfig, users Directory, log Logger) *Consumer {
	return &Consumer{
		url:      cfg.URL,
		queue:    cfg.Queue,
		prefetch: cfg.Prefetch,
		dir:      cfg.LogDir,
		users:    users,
		log:      log,
	}
}

// Run connects to RabbitMQ and consumes until ctx is cancelled,
// reconnecting with exponential backoff whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warnf("notify-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warnf("notify-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warnf("notify-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
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
			if err := c.Handle(ctx, d.Body); err != nil {
				c.log.Errorf("notify-consumer: handle message failed: %v", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message, renders its notification and delivers it.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	to := ""
	if msg.UserID != 0 {
		to = fmt.Sprintf("user #%d", msg.UserID)
		if c.users != nil {
			if email, err := c.users.EmailFor(ctx, msg.UserID); err == nil && email != "" {
				to = email
			} else if err != nil {
				c.log.Warnf("notify-consumer: no address for user %d: %v", msg.UserID, err)
			}
		}
	}
	n, err := Render(msg, to)
	if err != nil {
		return err
	}
	return c.deliver(msg, n)
}

func (c *Consumer) deliver(msg Message, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, NotificationFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] event=%s kind=%s to=%q\n", msg.OccurredAt, msg.ID, msg.Kind, n.To)
	fmt.Fprintf(&b, "Subject: %s\n%s\n\n", n.Subject, n.Body)
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// Render builds the notification text for a message.  It fails for
// unknown kinds so that such messages are rejected rather than dropped
// silently.
func Render(msg Message, to string) (Notification, error) {
	na := func(s string) string {
		if s == "" {
			return "N/A"
		}
		return s
	}
	switch msg.Kind {
	case ledger.KindReserved:
		return Notification{
			To:      to,
			Subject: "Parking Reservation Confirmation",
			Body: fmt.Sprintf(`Dear Customer,

Your parking reservation has been confirmed!

Reservation Details:
- Reservation ID: %d
- Parking Lot: %s
- Spot Number: %s
- Start Time: %s

Thank you for choosing us for your parking needs.`,
				msg.ReservationID, na(msg.LotName), na(msg.SpotLabel), na(msg.StartedAt)),
		}, nil
	case ledger.KindReleased:
		return Notification{
			To:      to,
			Subject: "Parking Reservation Completed",
			Body: fmt.Sprintf(`Dear Customer,

Your spot has been released.

Reservation Details:
- Reservation ID: %d
- Parking Lot: %s
- Spot Number: %s
- Start Time: %s
- End Time: %s
- Billed Hours: %.2f
- Total Amount: %s

Thank you for parking with us.`,
				msg.ReservationID, na(msg.LotName), na(msg.SpotLabel), na(msg.StartedAt), na(msg.EndedAt),
				msg.BilledHours, na(msg.Cost)),
		}, nil
	case ledger.KindLotDeleted:
		return Notification{
			To:      "operations",
			Subject: "Parking Lot Removed",
			Body:    fmt.Sprintf("Parking lot %q (id %d) and all of its spots were deleted at %s.", msg.LotName, msg.LotID, na(msg.OccurredAt)),
		}, nil
	}
	return Notification{}, fmt.Errorf("unknown event kind %q", msg.Kind)
}
