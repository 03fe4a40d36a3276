package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-channel-speckit/internal/domain"
)

type fakeChannel struct {
	queue  string
	msg    amqp.Publishing
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.queue = key
	f.msg = msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitPublisherPublishExport(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitPublisher{channel: ch, queue: "channel_exports"}

	channel := domain.NewChannel(42, 0, "sample_channel", "Sample").WithPosts([]domain.Post{{ID: 1}})
	event := domain.ExportEvent{
		RunID:    "run-1",
		Path:     "out/sample_channel.json",
		Output:   domain.NewOutputFile(channel, domain.ExportStatusComplete, time.Date(2026, 2, 6, 15, 30, 45, 0, time.UTC)),
		Duration: 2 * time.Second,
	}
	if err := p.PublishExport(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.queue != "channel_exports" {
		t.Fatalf("published to %q", ch.queue)
	}
	if ch.msg.MessageId != "run-1" || ch.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected message properties: %+v", ch.msg)
	}
	var summary domain.ExportSummary
	if err := json.Unmarshal(ch.msg.Body, &summary); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if summary.ChannelID != 42 || summary.PostsCount != 1 || summary.Status != domain.ExportStatusComplete {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRabbitPublisherPublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := &RabbitPublisher{channel: ch, queue: "q"}
	if err := p.PublishExport(context.Background(), domain.ExportEvent{}); err == nil {
		t.Fatal("expected error")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ch.closed {
		t.Fatal("expected channel to be closed")
	}
}

func TestNewRabbitPublisherValidation(t *testing.T) {
	if _, err := NewRabbitPublisher("", "q"); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewRabbitPublisher("amqp://localhost", ""); err == nil {
		t.Fatal("expected error for empty queue")
	}
}
