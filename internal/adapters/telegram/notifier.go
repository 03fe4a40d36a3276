package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/infra/metrics"
)

// Sender is the part of tgbotapi.BotAPI used by Notifier.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts a short export summary to a Telegram chat via the Bot API.
type Notifier struct {
	bot    Sender
	chatID int64
}

var _ domain.ExportSink = (*Notifier)(nil)

// NewNotifier creates a notifier for the given chat.
func NewNotifier(bot Sender, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// Name implements domain.ExportSink.
func (n *Notifier) Name() string { return "telegram_bot" }

// PublishExport sends the summary, split into several messages if needed.
func (n *Notifier) PublishExport(ctx context.Context, event domain.ExportEvent) error {
	target := strconv.FormatInt(n.chatID, 10)
	for _, part := range SplitMessage(FormatSummary(event.Summary()), MessageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		_, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, part))
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", target, start, err)
		if err != nil {
			return fmt.Errorf("send export summary: %w", err)
		}
	}
	return nil
}

// FormatSummary renders the plain-text notification body.
func FormatSummary(s domain.ExportSummary) string {
	var b strings.Builder
	name := s.Title
	if s.Username != nil && *s.Username != "" {
		name = fmt.Sprintf("%s (@%s)", s.Title, *s.Username)
	}
	status := "Export finished"
	if s.Status == domain.ExportStatusPartial {
		status = "Partial export saved"
	}
	fmt.Fprintf(&b, "%s: %s\n", status, name)
	fmt.Fprintf(&b, "Posts: %d, comments: %d\n", s.PostsCount, s.CommentsCount)
	fmt.Fprintf(&b, "Exported at: %s\n", s.ExportedAt.String())
	fmt.Fprintf(&b, "Duration: %s\n", time.Duration(s.DurationSeconds*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(&b, "File: %s\n", s.Path)
	fmt.Fprintf(&b, "Run: %s", s.RunID)
	return b.String()
}
