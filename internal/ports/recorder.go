package ports

import (
	"context"
	"time"
)

// Render outcome statuses.
const (
	RenderStatusSucceeded = "SUCCEEDED"
	RenderStatusFailed    = "FAILED"
)

// RenderRecord summarizes one pipeline run. It never holds HTML, asset bytes
// or filesystem paths.
type RenderRecord struct {
	ID         string        `json:"id"`
	RequestID  string        `json:"request_id,omitempty"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	AssetCount int           `json:"asset_count"`
	Status     string        `json:"status"`
	ErrorCode  string        `json:"error_code,omitempty"`
	PNGBytes   int           `json:"png_bytes"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RenderRecorder receives a record after every pipeline run (postgres
// history, redis events, ...).
type RenderRecorder interface {
	RecordRender(ctx context.Context, rec RenderRecord) error
}
