package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"htmlpng/internal/ports"
)

var (
	ErrDuplicateRender = errors.New("render already recorded")
	ErrHistoryNotReady = errors.New("render history table missing")
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS render_requests (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL DEFAULT '',
	width       INTEGER NOT NULL DEFAULT 0,
	height      INTEGER NOT NULL DEFAULT 0,
	asset_count INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error_code  TEXT NOT NULL DEFAULT '',
	png_bytes   INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS render_requests_created_at_idx ON render_requests (created_at DESC);
`

// RenderRepository stores one row per pipeline run. It never sees HTML,
// asset bytes or staging paths.
type RenderRepository struct {
	db *pgxpool.Pool
}

var _ ports.RenderRecorder = (*RenderRepository)(nil)

func NewRenderRepository(db *pgxpool.Pool) *RenderRepository {
	return &RenderRepository{db: db}
}

// EnsureSchema creates the history table when it does not exist yet.
func (r *RenderRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure render_requests schema: %w", err)
	}
	return nil
}

func (r *RenderRepository) RecordRender(ctx context.Context, rec ports.RenderRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO render_requests
			(id, request_id, width, height, asset_count, status, error_code, png_bytes, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		rec.ID,
		rec.RequestID,
		rec.Width,
		rec.Height,
		rec.AssetCount,
		rec.Status,
		rec.ErrorCode,
		rec.PNGBytes,
		rec.DurationMS,
		rec.CreatedAt,
	)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return ErrDuplicateRender
		case IsUndefinedTable(err):
			return ErrHistoryNotReady
		}
		return err
	}
	return nil
}

// Recent lists the newest records first.
func (r *RenderRepository) Recent(ctx context.Context, limit int) ([]ports.RenderRecord, error) {
	limit = ClampLimit(limit)

	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, width, height, asset_count, status, error_code, png_bytes, duration_ms, created_at
		FROM render_requests
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, ErrHistoryNotReady
		}
		return nil, err
	}
	defer rows.Close()

	out := make([]ports.RenderRecord, 0, limit)
	for rows.Next() {
		var rec ports.RenderRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Width,
			&rec.Height,
			&rec.AssetCount,
			&rec.Status,
			&rec.ErrorCode,
			&rec.PNGBytes,
			&rec.DurationMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ClampLimit maps a requested page size onto [1, MaxRecentLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	}
	return limit
}
