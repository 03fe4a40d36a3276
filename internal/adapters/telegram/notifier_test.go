package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-channel-speckit/internal/domain"
)

type stubSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *stubSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, s.err
}

func testEvent() domain.ExportEvent {
	channel := domain.NewChannel(10, 0, "news", "News")
	channel = channel.WithPosts([]domain.Post{{ID: 1, Comments: []domain.Comment{{ID: 2}}}})
	return domain.ExportEvent{
		RunID:    "run-42",
		Path:     "out/news.json",
		Output:   domain.NewOutputFile(channel, domain.ExportStatusComplete, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)),
		Duration: 3 * time.Second,
	}
}

func TestNotifierSendsSummary(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, 777)
	if err := n.PublishExport(context.Background(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.ChatID != 777 {
		t.Fatalf("unexpected chat id %d", msg.ChatID)
	}
	for _, want := range []string{"Export finished: News (@news)", "Posts: 1, comments: 1", "File: out/news.json", "Run: run-42", "Duration: 3s"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("message misses %q:\n%s", want, msg.Text)
		}
	}
}

func TestNotifierPropagatesSendError(t *testing.T) {
	sender := &stubSender{err: errors.New("forbidden")}
	if err := NewNotifier(sender, 1).PublishExport(context.Background(), testEvent()); err == nil {
		t.Fatalf("expected error")
	}
}
