package mtproto

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gotd/td/session"

	"tg-channel-speckit/internal/domain"
)

// NewFileSession возвращает файловое хранилище сессии и создаёт его каталог.
func NewFileSession(path string) (*session.FileStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	return &session.FileStorage{Path: path}, nil
}

// SessionDB хранит сессию в репозитории под именем name.
type SessionDB struct {
	repo domain.SessionRepo
	name string
}

var _ session.Storage = (*SessionDB)(nil)

// NewSessionDB создаёт хранилище сессии поверх репозитория.
func NewSessionDB(repo domain.SessionRepo, name string) *SessionDB {
	return &SessionDB{repo: repo, name: name}
}

// LoadSession загружает сессию; отсутствие записи даёт session.ErrNotFound.
func (s *SessionDB) LoadSession(ctx context.Context) ([]byte, error) {
	return s.repo.LoadMTProtoSession(ctx, s.name)
}

// StoreSession сохраняет сессию.
func (s *SessionDB) StoreSession(ctx context.Context, data []byte) error {
	return s.repo.StoreMTProtoSession(ctx, s.name, data)
}
