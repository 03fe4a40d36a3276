package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-channel-speckit/internal/domain"
)

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ domain.Cache = (*RedisCache)(nil)

// NewRedis создаёт кэш. Все ключи получают prefix.
func NewRedis(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Connect открывает клиента Redis и проверяет соединение.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Set задаёт значение.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Delete удаляет ключ. Отсутствие ключа не ошибка.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Get возвращает значение или domain.ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	return data, err
}
