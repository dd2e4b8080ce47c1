package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"grant-assistant/internal/common/database"
)

const scanBatch = 200

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
) WITHOUT ROWID`

// SQLiteStore keeps records in a single key-ordered table. Prefix reads are
// primary-key range scans paged with a key cursor.
type SQLiteStore struct {
	db *database.SQLiteClient
}

func NewSQLiteStore(db *database.SQLiteClient) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Name() string {
	return "sqlite"
}

func (s *SQLiteStore) Initialize(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := s.db.Exec(ctx, createKVTable); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.scan(ctx, prefix, func(key string, value []byte) {
		out[key] = value
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scan walks keys in [prefix, prefixEnd(prefix)) in pages of scanBatch rows.
func (s *SQLiteStore) scan(ctx context.Context, prefix string, fn func(key string, value []byte)) error {
	upper, bounded := prefixEnd(prefix)
	cursor, op := prefix, ">="

	for {
		query := `SELECT key, value FROM kv WHERE key ` + op + ` ?`
		args := []interface{}{cursor}
		if bounded {
			query += ` AND key < ?`
			args = append(args, upper)
		}
		query += ` ORDER BY key LIMIT ?`
		args = append(args, scanBatch)

		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("scan %q: %w", prefix, err)
		}
		n := 0
		for rows.Next() {
			var (
				key   string
				value []byte
			)
			if err := rows.Scan(&key, &value); err != nil {
				rows.Close()
				return fmt.Errorf("scan %q: %w", prefix, err)
			}
			fn(key, value)
			cursor = key
			n++
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("scan %q: %w", prefix, err)
		}
		if n < scanBatch {
			return nil
		}
		op = ">"
	}
}

// prefixEnd returns the smallest string greater than every string starting
// with prefix. It reports false when no such bound exists.
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

func (s *SQLiteStore) ClearAll(ctx context.Context, prefix string) error {
	var err error
	if upper, bounded := prefixEnd(prefix); bounded {
		_, err = s.db.Exec(ctx, `DELETE FROM kv WHERE key >= ? AND key < ?`, prefix, upper)
	} else {
		_, err = s.db.Exec(ctx, `DELETE FROM kv WHERE key >= ?`, prefix)
	}
	if err != nil {
		return fmt.Errorf("clear %q: %w", prefix, err)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM kv WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) Size(ctx context.Context) (int64, error) {
	var size int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(value)), 0) FROM kv`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return size, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
