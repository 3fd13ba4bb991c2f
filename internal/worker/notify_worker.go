// Package worker forwards queued notifications to the chat sink.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/notify"
)

// DefaultMaxAge is how old a queued notification may be before it is dropped.
const DefaultMaxAge = 24 * time.Hour

// NotifyWorker delivers notification messages consumed from AMQP.
type NotifyWorker struct {
	sink   notify.Notifier
	maxAge time.Duration
	now    func() time.Time

	delivered int64
	dropped   int64
}

func NewNotifyWorker(sink notify.Notifier, maxAge time.Duration) *NotifyWorker {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &NotifyWorker{sink: sink, maxAge: maxAge, now: time.Now}
}

// HandleNotificationMessage sends one message. An error makes the consumer
// requeue the message; stale messages are acknowledged without sending.
func (w *NotifyWorker) HandleNotificationMessage(ctx context.Context, msg *amqp.NotificationMessage) error {
	slog.InfoContext(ctx, "Processing notification message",
		"kind", msg.Kind,
		"timestamp", msg.Timestamp)

	if !msg.Timestamp.IsZero() {
		if age := w.now().Sub(msg.Timestamp); age > w.maxAge {
			atomic.AddInt64(&w.dropped, 1)
			slog.WarnContext(ctx, "Dropping stale notification",
				"kind", msg.Kind,
				"age", age.Round(time.Minute))
			return nil
		}
	}

	if err := w.sink.Notify(ctx, msg.Kind, msg.Text); err != nil {
		return fmt.Errorf("deliver %s notification: %w", msg.Kind, err)
	}
	atomic.AddInt64(&w.delivered, 1)
	return nil
}

// Stats returns the delivered and dropped counts since start.
func (w *NotifyWorker) Stats() (delivered, dropped int64) {
	return atomic.LoadInt64(&w.delivered), atomic.LoadInt64(&w.dropped)
}
