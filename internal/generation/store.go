package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/musetalk/internal/cache"
)

// Store persists generation records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
}

// KV is the subset of cache.Cache the cache store needs.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheStore keeps records in Redis for a fixed TTL.
type CacheStore struct {
	kv  KV
	ttl time.Duration
}

func NewCacheStore(kv KV, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CacheStore{kv: kv, ttl: ttl}
}

func cacheKey(id uuid.UUID) string { return "generation:" + id.String() }

func (s *CacheStore) Save(ctx context.Context, rec *Record) error {
	return s.kv.Set(ctx, cacheKey(rec.ID), rec, s.ttl)
}

func (s *CacheStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	if err := s.kv.Get(ctx, cacheKey(id), &rec); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// DB is the subset of *pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps the durable history in the generations table.
type PGStore struct {
	db DB
}

func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Save(ctx context.Context, rec *Record) error {
	var detail []byte
	if len(rec.Detail) > 0 {
		detail = rec.Detail
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO generations (id, prompt, duration_seconds, status, audio_url, error, detail,
			prediction_id, callback_url, polls, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			audio_url = EXCLUDED.audio_url,
			error = EXCLUDED.error,
			detail = EXCLUDED.detail,
			prediction_id = EXCLUDED.prediction_id,
			polls = EXCLUDED.polls,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Prompt, rec.DurationSeconds, string(rec.Status), rec.AudioURL, joinError(rec),
		detail, rec.PredictionID, rec.CallbackURL, rec.Polls, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save generation %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var (
		rec    Record
		status string
		errStr string
		detail []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, prompt, duration_seconds, status, audio_url, error, detail,
			prediction_id, callback_url, polls, created_at, updated_at
		FROM generations WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Prompt, &rec.DurationSeconds, &status, &rec.AudioURL, &errStr, &detail,
		&rec.PredictionID, &rec.CallbackURL, &rec.Polls, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation %s: %w", id, err)
	}

	rec.Status = Status(status)
	rec.Error, rec.Message = splitError(errStr)
	if len(detail) > 0 {
		rec.Detail = detail
	}
	return &rec, nil
}

// The error column holds "code: message".
func joinError(rec *Record) string {
	if rec.Message == "" {
		return rec.Error
	}
	return rec.Error + ": " + rec.Message
}

func splitError(s string) (code, message string) {
	code, message, _ = strings.Cut(s, ": ")
	return code, message
}

// TieredStore writes through every tier and reads from the first tier that
// has the record, backfilling the faster tiers before it.
type TieredStore struct {
	tiers []Store
}

func NewTieredStore(tiers ...Store) *TieredStore {
	var kept []Store
	for _, t := range tiers {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &TieredStore{tiers: kept}
}

func (s *TieredStore) Save(ctx context.Context, rec *Record) error {
	var errs []error
	for _, t := range s.tiers {
		if err := t.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(s.tiers) && len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		slog.Warn("generation store tier failed", "id", rec.ID, "error", err)
	}
	return nil
}

func (s *TieredStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var lastErr error = ErrNotFound
	for i, t := range s.tiers {
		rec, err := t.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				slog.Warn("generation store tier read failed", "id", id, "error", err)
				lastErr = err
			}
			continue
		}
		for _, faster := range s.tiers[:i] {
			if err := faster.Save(ctx, rec); err != nil {
				slog.Warn("generation backfill failed", "id", id, "error", err)
			}
		}
		return rec, nil
	}
	return nil, lastErr
}
