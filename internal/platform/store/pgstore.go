package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PGStore keeps the same key→document contract as FileStore but in a
// Postgres table, one row per storage key with the collection held as a
// jsonb array. Whole-collection reads and writes map onto single-row
// selects and upserts; Update runs inside a database transaction with the
// touched rows locked.
type PGStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS clinic_store (
    key        text PRIMARY KEY,
    doc        jsonb NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)`

// NewPGStore connects to databaseURL and ensures the backing table exists.
func NewPGStore(ctx context.Context, databaseURL string, maxConns, minConns int32, logger zerolog.Logger) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure store schema: %w", err)
	}
	return &PGStore{pool: pool, logger: logger}, nil
}

func (s *PGStore) getRaw(ctx context.Context, key string, forUpdate bool, tx pgx.Tx) (json.RawMessage, bool, error) {
	query := `SELECT doc FROM clinic_store WHERE key = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var raw json.RawMessage
	var err error
	if tx != nil {
		err = tx.QueryRow(ctx, query, key).Scan(&raw)
	} else {
		err = s.pool.QueryRow(ctx, query, key).Scan(&raw)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read store key %s: %w", key, err)
	}
	return raw, true, nil
}

const upsertDoc = `
INSERT INTO clinic_store (key, doc, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`

func (s *PGStore) Get(ctx context.Context, c Collection) ([]json.RawMessage, error) {
	raw, ok, err := s.getRaw(ctx, string(c), false, nil)
	if err != nil || !ok {
		return nil, err
	}
	return decodeList(raw, s.logger, string(c)), nil
}

func (s *PGStore) Set(ctx context.Context, c Collection, docs []json.RawMessage) error {
	if docs == nil {
		docs = []json.RawMessage{}
	}
	encoded, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", c, err)
	}
	if _, err := s.pool.Exec(ctx, upsertDoc, string(c), encoded); err != nil {
		return fmt.Errorf("write collection %s: %w", c, err)
	}
	return nil
}

func (s *PGStore) Has(ctx context.Context, c Collection) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM clinic_store WHERE key = $1)`, string(c)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", c, err)
	}
	return exists, nil
}

func (s *PGStore) GetValue(ctx context.Context, key string) (json.RawMessage, error) {
	raw, ok, err := s.getRaw(ctx, key, false, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrValueNotFound
	}
	return raw, nil
}

func (s *PGStore) SetValue(ctx context.Context, key string, doc json.RawMessage) error {
	if _, err := s.pool.Exec(ctx, upsertDoc, key, doc); err != nil {
		return fmt.Errorf("write store key %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) DeleteValue(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM clinic_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete store key %s: %w", key, err)
	}
	return nil
}

// Update stages collection writes inside a database transaction. Reads lock
// the rows they touch, so the read-modify-write cycle is serialised even if
// a second writer ever appears.
func (s *PGStore) Update(ctx context.Context, fn func(tx *Tx) error) error {
	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin store transaction: %w", err)
	}
	defer dbtx.Rollback(ctx)

	tx := newTx(func(c Collection) ([]json.RawMessage, error) {
		raw, ok, err := s.getRaw(ctx, string(c), true, dbtx)
		if err != nil || !ok {
			return nil, err
		}
		return decodeList(raw, s.logger, string(c)), nil
	})
	if err := fn(tx); err != nil {
		return err
	}

	for c, docs := range tx.staged {
		if docs == nil {
			docs = []json.RawMessage{}
		}
		encoded, err := json.Marshal(docs)
		if err != nil {
			return fmt.Errorf("encode collection %s: %w", c, err)
		}
		if _, err := dbtx.Exec(ctx, upsertDoc, string(c), encoded); err != nil {
			return fmt.Errorf("write collection %s: %w", c, err)
		}
	}
	return dbtx.Commit(ctx)
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
