// Package storage persists assistant state behind one key-value interface with
// prefix scans. Values are opaque bytes; callers encode them with the JSON helpers.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/metrics"
)

// ErrQuotaExceeded is returned when a write would push a quota-limited
// backend over its byte budget.
var ErrQuotaExceeded = fmt.Errorf("%w: storage quota exceeded", apperrors.ErrQuotaExceeded)

// Adapter is implemented by every backend. All backends share the same
// prefix semantics: GetAll and ClearAll match keys starting with prefix, and
// an empty prefix matches everything.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	GetAll(ctx context.Context, prefix string) (map[string][]byte, error)
	ClearAll(ctx context.Context, prefix string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Size returns the bytes used by keys and values.
	Size(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value stored at key into T.
func GetJSON[T any](ctx context.Context, a Adapter, key string) (T, bool, error) {
	var out T
	raw, ok, err := a.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, a Adapter, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return a.Set(ctx, key, raw)
}

// GetAllJSON decodes every value under prefix. Entries that fail to decode
// are left out of the map and their keys returned separately so the caller
// can decide whether to drop them.
func GetAllJSON[T any](ctx context.Context, a Adapter, prefix string) (map[string]T, []string, error) {
	raw, err := a.GetAll(ctx, prefix)
	if err != nil {
		return nil, nil, err
	}
	out := make(map[string]T, len(raw))
	var corrupt []string
	for k, v := range raw {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			corrupt = append(corrupt, k)
			continue
		}
		out[k] = item
	}
	return out, corrupt, nil
}

// instrumented records every call in the storage operation counter.
type instrumented struct {
	Adapter
}

// Instrument wraps a with operation metrics labelled by backend name.
func Instrument(a Adapter) Adapter {
	if _, ok := a.(*instrumented); ok {
		return a
	}
	return &instrumented{Adapter: a}
}

func (i *instrumented) record(op string, err error) {
	metrics.StorageOperations.WithLabelValues(i.Adapter.Name(), op, metrics.StorageStatus(err)).Inc()
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := i.Adapter.Get(ctx, key)
	i.record("get", err)
	return v, ok, err
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte) error {
	err := i.Adapter.Set(ctx, key, value)
	i.record("set", err)
	return err
}

func (i *instrumented) Remove(ctx context.Context, key string) error {
	err := i.Adapter.Remove(ctx, key)
	i.record("remove", err)
	return err
}

func (i *instrumented) GetAll(ctx context.Context, prefix string) (map[string][]byte, error) {
	v, err := i.Adapter.GetAll(ctx, prefix)
	i.record("get_all", err)
	return v, err
}

func (i *instrumented) ClearAll(ctx context.Context, prefix string) error {
	err := i.Adapter.ClearAll(ctx, prefix)
	i.record("clear_all", err)
	return err
}
