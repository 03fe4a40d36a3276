package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-channel-speckit/internal/domain"
)

type stubSource struct {
	channel    domain.Channel
	resolveErr error
	posts      []domain.Post
	postsErr   error
	comments   map[int64][]domain.Comment
	// cancelAfter отменяет контекст после выдачи указанного числа постов.
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *stubSource) ResolveChannel(context.Context, string) (domain.Channel, error) {
	return s.channel, s.resolveErr
}

func (s *stubSource) FetchPosts(ctx context.Context, _ domain.Channel, limit int) iter.Seq2[domain.Post, error] {
	return func(yield func(domain.Post, error) bool) {
		for i, post := range s.posts {
			if limit > 0 && i >= limit {
				return
			}
			if s.cancel != nil && i == s.cancelAfter {
				s.cancel()
				yield(domain.Post{}, ctx.Err())
				return
			}
			if !yield(post, nil) {
				return
			}
		}
		if s.postsErr != nil {
			yield(domain.Post{}, s.postsErr)
		}
	}
}

func (s *stubSource) FetchComments(_ context.Context, _ domain.Channel, postID int64) iter.Seq2[domain.Comment, error] {
	return func(yield func(domain.Comment, error) bool) {
		for _, c := range s.comments[postID] {
			if !yield(c, nil) {
				return
			}
		}
	}
}

type stubSink struct {
	name   string
	err    error
	events []domain.ExportEvent
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) PublishExport(_ context.Context, event domain.ExportEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }
}

func fixtureSource() *stubSource {
	date := domain.NewTimestamp(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
	views := 1500
	return &stubSource{
		channel: domain.NewChannel(1234567890, 42, "test_channel", "Test Channel"),
		posts: []domain.Post{
			{ID: 1, Text: "First post", Date: date, Views: &views},
			{ID: 2, Text: "Second post", Date: date},
		},
		comments: map[int64][]domain.Comment{
			1: {
				{ID: 101, Text: "Nice", Date: date, Author: domain.NewKnownAuthor(1001, "user1", "John", "Doe")},
				{ID: 102, Text: "Agree", Date: date, Author: domain.AnonymousAuthor()},
			},
			2: {
				{ID: 201, Text: "Hmm", Date: date, Author: domain.NewKnownAuthor(1002, "", "Jane", "")},
			},
		},
	}
}

func newTestService(src domain.ChannelSource, opts ...Option) *Service {
	opts = append([]Option{WithClock(fixedClock()), WithRunID(func() string { return "run-1" })}, opts...)
	return NewService(src, zerolog.Nop(), opts...)
}

func TestLoadChannelWritesEnvelope(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test_channel.json")
	var progress bytes.Buffer
	sink := &stubSink{name: "stub"}

	svc := newTestService(fixtureSource(), WithReporter(NewConsoleReporter(&progress)), WithSinks(sink))
	out, err := svc.LoadChannel(context.Background(), "@test_channel", path, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.PostsCount != 2 || out.CommentsCount != 3 {
		t.Fatalf("unexpected counts: %d posts, %d comments", out.PostsCount, out.CommentsCount)
	}
	if out.Status != domain.ExportStatusComplete {
		t.Fatalf("unexpected status %q", out.Status)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var decoded struct {
		Version       string `json:"version"`
		PostsCount    int    `json:"posts_count"`
		CommentsCount int    `json:"comments_count"`
		ExportedAt    string `json:"exported_at"`
		Channel       struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
			Posts    []struct {
				ID       int64 `json:"id"`
				Views    *int  `json:"views"`
				Comments []struct {
					Author struct {
						UserID    int64   `json:"user_id"`
						Username  *string `json:"username"`
						FirstName string  `json:"first_name"`
					} `json:"author"`
				} `json:"comments"`
			} `json:"posts"`
		} `json:"channel"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if decoded.Version != "1.0" || decoded.PostsCount != 2 || decoded.CommentsCount != 3 {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}
	if decoded.ExportedAt != "2024-01-15T12:00:00+00:00" {
		t.Fatalf("unexpected exported_at %q", decoded.ExportedAt)
	}
	if decoded.Channel.Username != "test_channel" || len(decoded.Channel.Posts) != 2 {
		t.Fatalf("unexpected channel: %+v", decoded.Channel)
	}
	first := decoded.Channel.Posts[0]
	if first.ID != 1 || first.Views == nil || *first.Views != 1500 {
		t.Fatalf("unexpected first post: %+v", first)
	}
	if got := first.Comments[0].Author.UserID; got != 1001 {
		t.Fatalf("expected author 1001, got %d", got)
	}
	if decoded.Channel.Posts[1].Views != nil {
		t.Fatalf("expected null views on second post")
	}
	if decoded.Channel.Posts[1].Comments[0].Author.Username != nil {
		t.Fatalf("expected null username for author without handle")
	}
	if strings.Contains(string(data), "access_hash") {
		t.Fatalf("access hash must not be serialized")
	}

	text := progress.String()
	for _, want := range []string{
		"Loading channel: Test Channel (@test_channel)",
		"  Post 1: 2 comments",
		"  Post 2: 1 comments",
		"Saved to: " + path,
		"Total: 2 posts, 3 comments",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("progress output misses %q:\n%s", want, text)
		}
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected one sink event, got %d", len(sink.events))
	}
	if ev := sink.events[0]; ev.RunID != "run-1" || ev.Path != path || ev.Output.PostsCount != 2 {
		t.Fatalf("unexpected sink event: %+v", ev)
	}
}

func TestLoadChannelRespectsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	out, err := newTestService(fixtureSource()).LoadChannel(context.Background(), "test_channel", path, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.PostsCount != 1 || out.CommentsCount != 2 {
		t.Fatalf("unexpected counts: %d/%d", out.PostsCount, out.CommentsCount)
	}
}

func TestLoadChannelEmptyChannel(t *testing.T) {
	src := fixtureSource()
	src.posts = nil
	path := filepath.Join(t.TempDir(), "out.json")
	if _, err := newTestService(src).LoadChannel(context.Background(), "test_channel", path, 0); err != nil {
		t.Fatalf("load: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"posts": []`) {
		t.Fatalf("expected empty posts array, got:\n%s", data)
	}
}

func TestLoadChannelResolveErrorWritesNothing(t *testing.T) {
	src := fixtureSource()
	src.resolveErr = domain.NewAccessError("missing", "Channel not found: missing", nil)
	path := filepath.Join(t.TempDir(), "out.json")
	sink := &stubSink{name: "stub"}

	_, err := newTestService(src, WithSinks(sink)).LoadChannel(context.Background(), "missing", path, 0)
	var typed *domain.Error
	if !errors.As(err, &typed) || typed.Kind != domain.KindAccess {
		t.Fatalf("expected access error, got %v", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected no output file, stat err %v", statErr)
	}
	if len(sink.events) != 0 {
		t.Fatalf("sinks must not be notified on failure")
	}
}

func TestLoadChannelMidRunErrorDiscardsProgress(t *testing.T) {
	src := fixtureSource()
	src.postsErr = domain.NewNetworkError("Request failed", errors.New("reset"))
	path := filepath.Join(t.TempDir(), "out.json")

	if _, err := newTestService(src).LoadChannel(context.Background(), "test_channel", path, 0); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no output file, stat err %v", err)
	}
}

func TestLoadChannelPartialOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := fixtureSource()
	src.cancel = cancel
	src.cancelAfter = 1
	path := filepath.Join(t.TempDir(), "out.json")
	sink := &stubSink{name: "stub"}
	var progress bytes.Buffer

	out, err := newTestService(src, WithPartial(true), WithSinks(sink), WithReporter(NewConsoleReporter(&progress))).
		LoadChannel(ctx, "test_channel", path, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if out.Status != domain.ExportStatusPartial || out.PostsCount != 1 || out.CommentsCount != 2 {
		t.Fatalf("unexpected partial envelope: %+v", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"status": "partial"`) {
		t.Fatalf("expected partial status in file:\n%s", data)
	}
	if len(sink.events) != 0 {
		t.Fatalf("partial exports must not reach sinks")
	}
	if !strings.Contains(progress.String(), "Saved partial export to: "+path) {
		t.Fatalf("unexpected progress:\n%s", progress.String())
	}
}

func TestLoadChannelSinkFailureIsNotFatal(t *testing.T) {
	failing := &stubSink{name: "failing", err: errors.New("down")}
	ok := &stubSink{name: "ok"}
	path := filepath.Join(t.TempDir(), "out.json")

	if _, err := newTestService(fixtureSource(), WithSinks(failing, ok)).LoadChannel(context.Background(), "test_channel", path, 0); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(failing.events) != 1 || len(ok.events) != 1 {
		t.Fatalf("expected both sinks to be called: %d, %d", len(failing.events), len(ok.events))
	}
}
