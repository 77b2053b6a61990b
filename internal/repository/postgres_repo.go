package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRepo keeps the collection in a single-row-per-key table.
type PostgresRepo struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresRepo(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) (*PostgresRepo, error) {
	query := `
        CREATE TABLE IF NOT EXISTS kv_store (
            key        TEXT PRIMARY KEY,
            value      JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `
	if _, err := db.Exec(ctx, query); err != nil {
		logger.Error("Failed to create kv_store table", zap.Error(err))
		return nil, fmt.Errorf("failed to create kv_store table: %w", err)
	}
	return &PostgresRepo{db: db, logger: logger}, nil
}

func (r *PostgresRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r.logger.Debug("Reading kv_store", zap.String("key", key))

	var value []byte
	err := r.db.QueryRow(ctx, `SELECT value::text FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("Failed to read kv_store", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	return value, true, nil
}

// Put stores the raw document. JSONB rejects malformed JSON, which the
// habit store never produces.
func (r *PostgresRepo) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	r.logger.Debug("Writing kv_store", zap.String("key", key), zap.Int("bytes", len(value)))

	query := `
        INSERT INTO kv_store (key, value, updated_at)
        VALUES ($1, $2::jsonb, now())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
    `
	if _, err := r.db.Exec(ctx, query, key, string(value)); err != nil {
		r.logger.Error("Failed to write kv_store", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PostgresRepo) Close() error {
	r.db.Close()
	return nil
}
