package handlers

import (
	"context"

	"htmlpng/internal/pkg/logger"
	"htmlpng/internal/ports"
	"htmlpng/internal/processor"
)

// Renderer runs the render pipeline. *processor.Processor implements it.
type Renderer interface {
	Process(ctx context.Context, raw processor.RawJob) (*processor.Result, error)
}

// History lists recent render records, newest first.
type History interface {
	Recent(ctx context.Context, limit int) ([]ports.RenderRecord, error)
}

// HealthCheck is one dependency probed by GET /health?deep=true.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Renderer     Renderer
	History      History
	Checks       []HealthCheck
	Log          *logger.Logger
	MaxBodyBytes int64
	Version      string
}

type Handler struct {
	renderer     Renderer
	history      History
	checks       []HealthCheck
	log          *logger.Logger
	maxBodyBytes int64
	version      string
}

const defaultMaxBodyBytes = 32 << 20

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		renderer:     d.Renderer,
		history:      d.History,
		checks:       d.Checks,
		log:          log.WithComponent("httpapi"),
		maxBodyBytes: maxBody,
		version:      version,
	}
}
