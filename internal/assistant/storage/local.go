package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"grant-assistant/internal/common/config"
)

// DefaultLocalQuota matches the usual per-origin budget of a browser key-value store.
const DefaultLocalQuota int64 = 5 << 20

// LocalStore is a quota-limited string store persisted as one JSON file.
// With an empty path it lives in memory only.
type LocalStore struct {
	mu    sync.Mutex
	path  string
	quota int64
	data  map[string]string
	used  int64
}

func NewLocalStore(cfg config.LocalConfig) *LocalStore {
	quota := cfg.QuotaBytes
	if quota <= 0 {
		quota = DefaultLocalQuota
	}
	return &LocalStore{path: cfg.Path, quota: quota, data: make(map[string]string)}
}

// NewMemoryStore returns an in-memory LocalStore with the default quota.
func NewMemoryStore() *LocalStore {
	return NewLocalStore(config.LocalConfig{})
}

func (s *LocalStore) Name() string {
	return "local"
}

// Initialize loads the backing file if there is one. A missing file is an empty store.
func (s *LocalStore) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store %s: %w", s.path, err)
	}

	data := make(map[string]string)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode store %s: %w", s.path, err)
		}
	}
	s.data = data
	s.used = 0
	for k, v := range data {
		s.used += entrySize(k, v)
	}
	return nil
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *LocalStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + entrySize(key, string(value))
	if old, ok := s.data[key]; ok {
		used -= entrySize(key, old)
	}
	if used > s.quota {
		return fmt.Errorf("set %s (%d of %d bytes): %w", key, used, s.quota, ErrQuotaExceeded)
	}

	prev, had := s.data[key]
	s.data[key] = string(value)
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	s.used = used
	return nil
}

func (s *LocalStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.data[key]
	if !ok {
		return nil
	}
	delete(s.data, key)
	s.used -= entrySize(key, old)
	return s.flush()
}

func (s *LocalStore) GetAll(ctx context.Context, prefix string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]byte)
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = []byte(v)
		}
	}
	return out, nil
}

func (s *LocalStore) ClearAll(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			s.used -= entrySize(k, v)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return s.flush()
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.data[key]
	return ok, nil
}

func (s *LocalStore) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used, nil
}

func (s *LocalStore) Clear(ctx context.Context) error {
	return s.ClearAll(ctx, "")
}

func (s *LocalStore) Close() error {
	return nil
}

// flush rewrites the backing file through a temp file and rename. Caller holds mu.
func (s *LocalStore) flush() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
