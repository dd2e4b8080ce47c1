package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"grant-assistant/internal/common/database"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps records as plain string keys under "<namespace>:".
// Prefix reads use SCAN MATCH so they never block the server with KEYS.
type RedisStore struct {
	client    *database.RedisClient
	namespace string
}

func NewRedisStore(client *database.RedisClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "grant"
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) Name() string {
	return "redis"
}

func (s *RedisStore) Initialize(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) key(k string) string {
	return s.namespace + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.key(key))
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(v), true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) scanKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.client.ScanKeys(ctx, escapeGlob(s.key(prefix))+"*")
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	return keys, nil
}

func (s *RedisStore) GetAll(ctx context.Context, prefix string) (map[string][]byte, error) {
	keys, err := s.scanKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := s.client.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("mget %q: %w", prefix, err)
	}
	ns := s.namespace + ":"
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// removed between SCAN and MGET
			continue
		}
		out[strings.TrimPrefix(keys[i], ns)] = []byte(str)
	}
	return out, nil
}

func (s *RedisStore) ClearAll(ctx context.Context, prefix string) error {
	keys, err := s.scanKeys(ctx, prefix)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		return fmt.Errorf("clear %q: %w", prefix, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Exists(ctx, s.key(key))
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return ok, nil
}

// Size sums key and value lengths inside the namespace.
func (s *RedisStore) Size(ctx context.Context) (int64, error) {
	all, err := s.GetAll(ctx, "")
	if err != nil {
		return 0, err
	}
	var size int64
	for k, v := range all {
		size += int64(len(k) + len(v))
	}
	return size, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.ClearAll(ctx, "")
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// escapeGlob quotes the SCAN MATCH metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
