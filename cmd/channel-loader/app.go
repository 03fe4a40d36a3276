package main

import (
	"context"
	"fmt"
	"io"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gotd/td/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tg-channel-speckit/internal/adapters/mtproto"
	"tg-channel-speckit/internal/adapters/repo"
	"tg-channel-speckit/internal/adapters/telegram"
	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/infra/cache"
	"tg-channel-speckit/internal/infra/config"
	"tg-channel-speckit/internal/infra/db"
	apphttp "tg-channel-speckit/internal/infra/http"
	"tg-channel-speckit/internal/infra/queue"
)

// app собирает зависимости выгрузчика и закрывает их в Close.
type app struct {
	log     zerolog.Logger
	client  *mtproto.Client
	sinks   []domain.ExportSink
	closers []func()
}

func newApp(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, stdin io.Reader, stderr io.Writer) (*app, error) {
	a := &app{log: logger}

	var pg *repo.Postgres
	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		switch {
		case err != nil && cfg.MTProto.SessionStore == config.SessionStorePostgres:
			a.Close()
			return nil, domain.NewNetworkError(fmt.Sprintf("Cannot connect to PostgreSQL: %v", err), err)
		case err != nil:
			logger.Warn().Err(err).Msg("loader: postgres unavailable, export archive disabled")
		default:
			a.closers = append(a.closers, pool.Close)
			pg, err = a.preparePostgres(ctx, pool)
			if err != nil {
				a.Close()
				return nil, domain.NewNetworkError(fmt.Sprintf("Cannot prepare PostgreSQL schema: %v", err), err)
			}
			a.sinks = append(a.sinks, pg)
		}
	}

	var storage session.Storage
	switch cfg.MTProto.SessionStore {
	case config.SessionStorePostgres:
		storage = mtproto.NewSessionDB(pg, cfg.MTProto.SessionName)
	default:
		fileStorage, err := mtproto.NewFileSession(cfg.MTProto.SessionFile)
		if err != nil {
			a.Close()
			return nil, domain.NewLoaderError(err.Error(), err)
		}
		storage = fileStorage
	}

	var resolveCache domain.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("loader: redis unavailable, resolve cache disabled")
		} else {
			a.closers = append(a.closers, func() { _ = client.Close() })
			resolveCache = cache.NewRedis(client, "channel-loader:")
		}
	}

	if cfg.RabbitURL != "" {
		publisher, err := queue.NewRabbitPublisher(cfg.RabbitURL, cfg.Queues.Exports)
		if err != nil {
			logger.Warn().Err(err).Msg("loader: rabbitmq unavailable, export events disabled")
		} else {
			a.closers = append(a.closers, func() { _ = publisher.Close() })
			a.sinks = append(a.sinks, publisher)
		}
	}

	if cfg.Notify.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Notify.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("loader: bot api unavailable, notifications disabled")
		} else {
			a.sinks = append(a.sinks, telegram.NewNotifier(bot, cfg.Notify.ChatID))
		}
	}

	client, err := mtproto.NewClient(mtproto.Options{
		APIID:         cfg.Telegram.APIID,
		APIHash:       cfg.Telegram.APIHash,
		Storage:       storage,
		Authenticator: mtproto.NewTerminalAuth(cfg.Telegram.Phone, stdin, stderr),
		RPS:           cfg.MTProto.GlobalRPS,
		FloodRetries:  cfg.MTProto.FloodRetries,
		FloodMaxWait:  cfg.MTProto.FloodMaxWait,
		Cache:         resolveCache,
		CacheTTL:      cfg.MTProto.ResolveTTL,
		CacheScope:    cacheScope(cfg),
		Logger:        logger.With().Str("component", "mtproto").Logger(),
	})
	if err != nil {
		a.Close()
		return nil, domain.NewConfigError(err.Error())
	}
	a.client = client
	return a, nil
}

func (a *app) preparePostgres(ctx context.Context, pool *pgxpool.Pool) (*repo.Postgres, error) {
	pg := repo.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

// StartStatusServer поднимает /metrics и /healthz. Ошибка старта не прерывает выгрузку.
func (a *app) StartStatusServer(ctx context.Context, addr string) {
	srv := apphttp.NewServer(a.log.With().Str("component", "status").Logger(), prometheus.DefaultGatherer)
	if err := srv.Start(ctx, addr); err != nil {
		a.log.Warn().Err(err).Str("addr", addr).Msg("loader: status server not started")
		return
	}
	a.closers = append(a.closers, func() { _ = srv.Shutdown(context.Background()) })
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// cacheScope привязывает кэш резолва к приложению и сессии.
func cacheScope(cfg config.AppConfig) string {
	sessionID := cfg.MTProto.SessionFile
	if cfg.MTProto.SessionStore == config.SessionStorePostgres {
		sessionID = cfg.MTProto.SessionName
	}
	return fmt.Sprintf("%d:%s:%s", cfg.Telegram.APIID, cfg.MTProto.SessionStore, sessionID)
}
