package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/infra/metrics"
)

const sinkTimeout = 15 * time.Second

// Service выгружает канал с постами и комментариями в JSON-файл.
type Service struct {
	source   domain.ChannelSource
	log      zerolog.Logger
	sinks    []domain.ExportSink
	reporter Reporter
	now      func() time.Time
	newRunID func() string
	partial  bool
}

// Option настраивает Service.
type Option func(*Service)

// WithSinks добавляет получателей результата выгрузки.
func WithSinks(sinks ...domain.ExportSink) Option {
	return func(s *Service) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

// WithReporter задаёт вывод прогресса.
func WithReporter(r Reporter) Option {
	return func(s *Service) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRunID подменяет генератор идентификатора запуска.
func WithRunID(gen func() string) Option {
	return func(s *Service) { s.newRunID = gen }
}

// WithPartial включает сохранение частичной выгрузки при прерывании.
func WithPartial(enabled bool) Option {
	return func(s *Service) { s.partial = enabled }
}

// NewService создаёт сервис выгрузки.
func NewService(source domain.ChannelSource, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		source:   source,
		log:      logger,
		reporter: nopReporter{},
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadChannel резолвит канал, выгружает посты (до limit, <= 0 без ограничения)
// с комментариями и записывает конверт в outputPath. Файл пишется только
// после полной загрузки; с WithPartial при ошибке сохраняется уже собранное.
func (s *Service) LoadChannel(ctx context.Context, identifier, outputPath string, limit int) (domain.OutputFile, error) {
	start := s.now()
	runID := s.newRunID()
	log := s.log.With().Str("run_id", runID).Str("channel", identifier).Logger()

	channel, err := s.source.ResolveChannel(ctx, identifier)
	if err != nil {
		return s.fail(log, err)
	}
	log.Info().Int64("channel_id", channel.ID).Str("title", channel.Title).Msg("export: channel resolved")
	s.reporter.ChannelResolved(channel)

	posts, err := s.collectPosts(ctx, channel, limit)
	if err != nil {
		if !s.partial || len(posts) == 0 {
			return s.fail(log, err)
		}
		out := domain.NewOutputFile(channel.WithPosts(posts), domain.ExportStatusPartial, s.now())
		if werr := WriteJSON(out, outputPath); werr != nil {
			log.Error().Err(werr).Msg("export: partial write failed")
			return s.fail(log, err)
		}
		log.Warn().Err(err).Int("posts", out.PostsCount).Str("path", outputPath).Msg("export: saved partial result")
		s.reporter.Saved(outputPath, out)
		metrics.ObserveExport(string(domain.ExportStatusPartial), s.now().Sub(start))
		s.record(log, err)
		return out, err
	}

	out := domain.NewOutputFile(channel.WithPosts(posts), domain.ExportStatusComplete, s.now())
	if err := WriteJSON(out, outputPath); err != nil {
		return s.fail(log, domain.NewLoaderError(fmt.Sprintf("Failed to save output: %v", err), err))
	}
	duration := s.now().Sub(start)
	metrics.ObserveExport(string(domain.ExportStatusComplete), duration)
	log.Info().
		Int("posts", out.PostsCount).
		Int("comments", out.CommentsCount).
		Str("path", outputPath).
		Dur("duration", duration).
		Msg("export: saved")
	s.reporter.Saved(outputPath, out)

	s.publish(ctx, log, domain.ExportEvent{RunID: runID, Path: outputPath, Output: out, Duration: duration})
	return out, nil
}

func (s *Service) collectPosts(ctx context.Context, channel domain.Channel, limit int) ([]domain.Post, error) {
	posts := []domain.Post{}
	for post, err := range s.source.FetchPosts(ctx, channel, limit) {
		if err != nil {
			return posts, err
		}
		comments, err := s.collectComments(ctx, channel, post.ID)
		if err != nil {
			return posts, err
		}
		post = post.WithComments(comments)
		posts = append(posts, post)
		metrics.ObservePost(len(comments))
		s.reporter.PostLoaded(post)
	}
	if err := ctx.Err(); err != nil {
		return posts, err
	}
	return posts, nil
}

func (s *Service) collectComments(ctx context.Context, channel domain.Channel, postID int64) ([]domain.Comment, error) {
	comments := []domain.Comment{}
	for comment, err := range s.source.FetchComments(ctx, channel, postID) {
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// publish отдаёт результат получателям. Ошибки получателей только логируются.
func (s *Service) publish(ctx context.Context, log zerolog.Logger, event domain.ExportEvent) {
	if len(s.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	for _, sink := range s.sinks {
		if err := sink.PublishExport(ctx, event); err != nil {
			log.Warn().Err(err).Str("sink", sink.Name()).Msg("export: sink failed")
			continue
		}
		log.Debug().Str("sink", sink.Name()).Msg("export: sink notified")
	}
}

func (s *Service) fail(log zerolog.Logger, err error) (domain.OutputFile, error) {
	s.record(log, err)
	return domain.OutputFile{}, err
}

func (s *Service) record(log zerolog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		log.Warn().Msg("export: interrupted")
		metrics.IncExportError("interrupted")
		return
	}
	kind := domain.Classify(err).Kind
	metrics.IncExportError(string(kind))
	log.Error().Err(err).Str("kind", string(kind)).Msg("export: failed")
}
