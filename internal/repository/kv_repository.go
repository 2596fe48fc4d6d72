package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Storage keys.
const (
	KeyQueue   = "queue"
	KeyOptions = "options"
	KeyAuth    = "auth"
)

// KVRepository is the durable local storage: JSON documents by key.
type KVRepository interface {
	// Get decodes the value stored under key into dst. It reports false when
	// the key is absent.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

type kvRepository struct {
	db     *sql.DB
	driver string
}

func NewKVRepository(db *sql.DB, driver string) KVRepository {
	return &kvRepository{db: db, driver: driver}
}

func (r *kvRepository) Get(ctx context.Context, key string, dst any) (bool, error) {
	query := rebind(r.driver, `SELECT store_value FROM kv_store WHERE store_key = ?`)

	var raw string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return true, nil
}

func (r *kvRepository) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	query := rebind(r.driver, `
		INSERT INTO kv_store (store_key, store_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (store_key) DO UPDATE SET
			store_value = excluded.store_value,
			updated_at = excluded.updated_at
	`)
	_, err = r.db.ExecContext(ctx, query, key, string(raw), time.Now().UnixMilli())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *kvRepository) Delete(ctx context.Context, key string) error {
	query := rebind(r.driver, `DELETE FROM kv_store WHERE store_key = ?`)
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
