package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const createBlobsTable = `
CREATE TABLE IF NOT EXISTS blobs (
	blob_key TEXT PRIMARY KEY,
	data     TEXT NOT NULL,
	version  BIGINT NOT NULL
)`

// SQLStore keeps blobs in a single table. It runs on Postgres (lib/pq or
// pgx) and SQLite; queries are written with ? and rebound per driver.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createBlobsTable); err != nil {
		return fmt.Errorf("create blobs table: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (Blob, error) {
	var row struct {
		Data    string `db:"data"`
		Version int64  `db:"version"`
	}
	query := s.db.Rebind(`SELECT data, version FROM blobs WHERE blob_key = ?`)
	err := s.db.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Blob{}, nil
	}
	if err != nil {
		return Blob{}, fmt.Errorf("get blob %s: %w", key, err)
	}
	return Blob{Data: []byte(row.Data), Version: row.Version}, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	var (
		res sql.Result
		err error
	)
	// data goes in as a string: lib/pq would hex-encode a []byte into TEXT
	if expected == 0 {
		query := s.db.Rebind(`INSERT INTO blobs (blob_key, data, version) VALUES (?, ?, 1) ON CONFLICT (blob_key) DO NOTHING`)
		res, err = s.db.ExecContext(ctx, query, key, string(data))
	} else {
		query := s.db.Rebind(`UPDATE blobs SET data = ?, version = version + 1 WHERE blob_key = ? AND version = ?`)
		res, err = s.db.ExecContext(ctx, query, string(data), key, expected)
	}
	if err != nil {
		return 0, fmt.Errorf("put blob %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("put blob %s: %w", key, err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return expected + 1, nil
}
