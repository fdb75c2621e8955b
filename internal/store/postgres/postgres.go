// Package postgres provides a PostgreSQL-backed [store.Store].
//
// Usage:
//
//	s, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//	_ = s.Save(ctx, rec)
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxscribe/internal/store"
)

var _ store.Store = (*Store)(nil)

const ddlTranscriptions = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id               UUID         PRIMARY KEY,
    filename         TEXT         NOT NULL DEFAULT '',
    content_type     TEXT         NOT NULL DEFAULT '',
    transcript       TEXT         NOT NULL,
    speech_segments  INTEGER      NOT NULL,
    chunks           INTEGER      NOT NULL,
    audio_duration_ns BIGINT      NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at
    ON transcriptions (created_at);
`

// Migrate creates the transcriptions table if it does not exist. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscriptions); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Store keeps transcription records in PostgreSQL. It is safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, verifies the connection and runs
// [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Save implements [store.Store].
func (s *Store) Save(ctx context.Context, r store.Record) error {
	if !store.ValidID(r.ID) {
		return errors.New("postgres store: record id must be a uuid")
	}
	const q = `
		INSERT INTO transcriptions
		    (id, filename, content_type, transcript, speech_segments, chunks, audio_duration_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		ON CONFLICT (id) DO UPDATE SET
		    filename          = EXCLUDED.filename,
		    content_type      = EXCLUDED.content_type,
		    transcript        = EXCLUDED.transcript,
		    speech_segments   = EXCLUDED.speech_segments,
		    chunks            = EXCLUDED.chunks,
		    audio_duration_ns = EXCLUDED.audio_duration_ns`

	var created any
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt
	}
	_, err := s.pool.Exec(ctx, q,
		r.ID,
		r.Filename,
		r.ContentType,
		r.Transcript,
		r.SpeechSegments,
		r.Chunks,
		r.AudioDuration.Nanoseconds(),
		created,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save %s: %w", r.ID, err)
	}
	return nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	if !store.ValidID(id) {
		return store.Record{}, store.ErrNotFound
	}
	const q = `
		SELECT id::text, filename, content_type, transcript, speech_segments, chunks, audio_duration_ns, created_at
		FROM   transcriptions
		WHERE  id = $1`

	var (
		r   store.Record
		dur int64
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&r.ID,
		&r.Filename,
		&r.ContentType,
		&r.Transcript,
		&r.SpeechSegments,
		&r.Chunks,
		&dur,
		&r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("postgres store: get %s: %w", id, err)
	}
	r.AudioDuration = time.Duration(dur)
	return r, nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}
