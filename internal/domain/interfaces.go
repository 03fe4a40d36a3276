package domain

import (
	"context"
	"iter"
	"time"
)

// ChannelSource фасад над MTProto клиентом, которого достаточно конвейеру выгрузки.
type ChannelSource interface {
	ResolveChannel(ctx context.Context, identifier string) (Channel, error)
	// FetchPosts отдаёт посты в порядке сервиса; limit <= 0 означает без ограничения.
	FetchPosts(ctx context.Context, channel Channel, limit int) iter.Seq2[Post, error]
	FetchComments(ctx context.Context, channel Channel, postID int64) iter.Seq2[Comment, error]
}

// Session управляет подключением к Telegram.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// ExportEvent описывает завершённую выгрузку для внешних получателей.
type ExportEvent struct {
	RunID    string
	Path     string
	Output   OutputFile
	Duration time.Duration
}

// ExportSink получает результат выгрузки после записи файла.
type ExportSink interface {
	Name() string
	PublishExport(ctx context.Context, event ExportEvent) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SessionRepo хранит MTProto-сессии по имени.
type SessionRepo interface {
	LoadMTProtoSession(ctx context.Context, name string) ([]byte, error)
	StoreMTProtoSession(ctx context.Context, name string, data []byte) error
}
