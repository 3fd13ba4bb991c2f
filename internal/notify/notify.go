// Package notify delivers short human-readable messages to the owner.
//
// Delivery is always best effort: a failed notification never fails the operation
// that triggered it.
package notify

import (
	"context"
	"log/slog"

	"fintrack/internal/amqp"
)

type Notifier interface {
	Notify(ctx context.Context, kind, text string) error
}

// Best sends through n and logs failures instead of returning them.
func Best(ctx context.Context, n Notifier, kind, text string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, kind, text); err != nil {
		slog.WarnContext(ctx, "Notification failed", "kind", kind, "error", err)
	}
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

type publisher interface {
	PublishNotification(ctx context.Context, msg *amqp.NotificationMessage) error
}

// Queue hands messages to the notify worker over AMQP.
type Queue struct {
	pub publisher
}

func NewQueue(pub publisher) *Queue {
	return &Queue{pub: pub}
}

func (q *Queue) Notify(ctx context.Context, kind, text string) error {
	return q.pub.PublishNotification(ctx, amqp.NewNotificationMessage(kind, text))
}

// Fallback tries each notifier in order until one succeeds.
type Fallback []Notifier

func (f Fallback) Notify(ctx context.Context, kind, text string) error {
	var err error
	for _, n := range f {
		if err = n.Notify(ctx, kind, text); err == nil {
			return nil
		}
	}
	return err
}
