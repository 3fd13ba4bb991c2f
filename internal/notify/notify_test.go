package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/amqp"
)

func TestTelegramNotify(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(srv.URL+"/", "123:abc", "42")
	if err := tg.Notify(context.Background(), "report", "Weekly: income=1.00, expense=0.00, net=1.00"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Errorf("unexpected path %q", path)
	}
	if got.ChatID != "42" || got.Text == "" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestTelegramNotifyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := NewTelegram(srv.URL, "t", "c").Notify(context.Background(), "", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
}

type recordingPublisher struct {
	msgs []*amqp.NotificationMessage
	err  error
}

func (p *recordingPublisher) PublishNotification(_ context.Context, msg *amqp.NotificationMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

type failing struct{ calls int }

func (f *failing) Notify(context.Context, string, string) error {
	f.calls++
	return errors.New("down")
}

func TestQueueAndFallback(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	if err := NewQueue(pub).Notify(ctx, amqp.KindSync, "synced"); err != nil {
		t.Fatalf("Queue.Notify: %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Kind != amqp.KindSync || pub.msgs[0].Text != "synced" {
		t.Fatalf("unexpected messages %+v", pub.msgs)
	}

	first := &failing{}
	if err := (Fallback{first, Nop{}}).Notify(ctx, "k", "t"); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if first.calls != 1 {
		t.Errorf("first notifier should be tried once, got %d", first.calls)
	}
	if err := (Fallback{&failing{}}).Notify(ctx, "k", "t"); err == nil {
		t.Error("expected error when every notifier fails")
	}

	// Best swallows the failure
	Best(ctx, &failing{}, "k", "t")
	Best(ctx, nil, "k", "t")
}
