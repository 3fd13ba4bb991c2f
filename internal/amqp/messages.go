package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Notification kinds
const (
	KindTransaction = "transaction"
	KindRecurring   = "recurring"
	KindReport      = "report"
	KindSync        = "sync"
)

// NotificationMessage carries a ready-to-send text; the worker only forwards it.
type NotificationMessage struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNotificationMessage(kind, text string) *NotificationMessage {
	return &NotificationMessage{
		Kind:      kind,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON decodes a message, rejecting messages without text.
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Text == "" {
		return nil, errors.New("notification message has no text")
	}
	return &msg, nil
}
