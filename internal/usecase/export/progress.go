package export

import (
	"fmt"
	"io"

	"tg-channel-speckit/internal/domain"
)

// Reporter получает события прогресса. Не влияет на данные выгрузки.
type Reporter interface {
	ChannelResolved(channel domain.Channel)
	PostLoaded(post domain.Post)
	Saved(path string, out domain.OutputFile)
}

// ConsoleReporter печатает прогресс построчно.
type ConsoleReporter struct {
	w io.Writer
}

// NewConsoleReporter создаёт репортер поверх w.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (r *ConsoleReporter) ChannelResolved(channel domain.Channel) {
	if handle := channel.Handle(); handle != "" {
		fmt.Fprintf(r.w, "Loading channel: %s (@%s)\n", channel.Title, handle)
		return
	}
	fmt.Fprintf(r.w, "Loading channel: %s (id %d)\n", channel.Title, channel.ID)
}

func (r *ConsoleReporter) PostLoaded(post domain.Post) {
	fmt.Fprintf(r.w, "  Post %d: %d comments\n", post.ID, len(post.Comments))
}

func (r *ConsoleReporter) Saved(path string, out domain.OutputFile) {
	label := "Saved to"
	if out.Status == domain.ExportStatusPartial {
		label = "Saved partial export to"
	}
	fmt.Fprintf(r.w, "\n%s: %s\n", label, path)
	fmt.Fprintf(r.w, "Total: %d posts, %d comments\n", out.PostsCount, out.CommentsCount)
}

type nopReporter struct{}

func (nopReporter) ChannelResolved(domain.Channel)  {}
func (nopReporter) PostLoaded(domain.Post)          {}
func (nopReporter) Saved(string, domain.OutputFile) {}
