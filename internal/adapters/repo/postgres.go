package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/infra/metrics"
)

const defaultSessionName = "default"

const schema = `
CREATE TABLE IF NOT EXISTS mtproto_sessions (
	name       TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channel_exports (
	run_id           UUID PRIMARY KEY,
	channel_id       BIGINT NOT NULL,
	username         TEXT,
	title            TEXT NOT NULL,
	status           TEXT NOT NULL,
	posts_count      INTEGER NOT NULL,
	comments_count   INTEGER NOT NULL,
	exported_at      TIMESTAMPTZ NOT NULL,
	path             TEXT NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL,
	document         JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS channel_exports_channel_idx ON channel_exports (channel_id, exported_at DESC);
`

// Postgres хранит MTProto-сессии и архив выгрузок.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.SessionRepo = (*Postgres)(nil)
	_ domain.ExportSink  = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("создание схемы: %s (%s)", pgErr.Message, pgErr.Code)
		}
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

// LoadMTProtoSession загружает сохранённую MTProto-сессию.
func (p *Postgres) LoadMTProtoSession(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if name == "" {
		name = defaultSessionName
	}

	var data []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT data FROM mtproto_sessions WHERE name = $1`, name).Scan(&data)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_load", "mtproto_sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// StoreMTProtoSession сохраняет MTProto-сессию.
func (p *Postgres) StoreMTProtoSession(ctx context.Context, name string, data []byte) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if name == "" {
		name = defaultSessionName
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO mtproto_sessions (name, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`, name, append([]byte(nil), data...))
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_store", "mtproto_sessions", start, err)
	return err
}

// Name реализует domain.ExportSink.
func (p *Postgres) Name() string { return "postgres" }

// PublishExport архивирует выгрузку в channel_exports.
func (p *Postgres) PublishExport(ctx context.Context, event domain.ExportEvent) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	args, err := exportArgs(event)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO channel_exports (
	run_id, channel_id, username, title, status, posts_count, comments_count,
	exported_at, path, duration_seconds, document
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (run_id) DO NOTHING
`, args...)
	metrics.ObserveNetworkRequest("postgres", "channel_exports_insert", "channel_exports", start, err)
	if err != nil {
		return fmt.Errorf("сохранение выгрузки: %w", err)
	}
	return nil
}

// exportArgs раскладывает событие по колонкам channel_exports.
func exportArgs(event domain.ExportEvent) ([]any, error) {
	document, err := json.Marshal(event.Output)
	if err != nil {
		return nil, fmt.Errorf("сериализация выгрузки: %w", err)
	}
	summary := event.Summary()
	return []any{
		summary.RunID,
		summary.ChannelID,
		summary.Username,
		summary.Title,
		string(summary.Status),
		summary.PostsCount,
		summary.CommentsCount,
		event.Output.ExportedAt.Time(),
		summary.Path,
		summary.DurationSeconds,
		document,
	}, nil
}
