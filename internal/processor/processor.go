package processor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"htmlpng/internal/engine"
	"htmlpng/internal/pkg/errors"
	"htmlpng/internal/pkg/logger"
	"htmlpng/internal/ports"
)

const recordTimeout = 3 * time.Second

type Deps struct {
	Engine   engine.Engine
	Store    ports.StagingStore
	Recorder ports.RenderRecorder
	Log      *logger.Logger

	MaxDimension int
	// KeepPartitions leaves the (empty) per-request directory behind after
	// cleanup.
	KeepPartitions bool
	// NewRenderID overrides the partition key generator.
	NewRenderID func() string
}

type Processor struct {
	recorder    ports.RenderRecorder
	log         *logger.Logger
	newRenderID func() string

	// pipeline stages
	jobParser *JobParser
	stager    *AssetStager
	renderer  *RendererAdapter
	cleanup   *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	newID := d.NewRenderID
	if newID == nil {
		newID = uuid.NewString
	}

	p := &Processor{
		recorder:    d.Recorder,
		log:         log,
		newRenderID: newID,
	}

	p.jobParser = NewJobParser(d.MaxDimension)
	p.stager = NewAssetStager(d.Store)
	p.renderer = NewRendererAdapter(d.Engine, d.Store.Root())
	p.cleanup = NewCleanup(d.Store, !d.KeepPartitions, log)

	return p
}

// Process runs one request through validate, stage, render and cleanup.
// Every file staged for the request is released before Process returns,
// whatever the outcome. Validation and staging failures never reach the
// engine.
func (p *Processor) Process(ctx context.Context, raw RawJob) (*Result, error) {
	start := time.Now()
	renderID := p.newRenderID()
	ctx = logger.ContextWithRenderID(ctx, renderID)
	log := p.log.FromContext(ctx)

	p.transition(log, StateReceived, "assets", len(raw.Assets))

	job, err := p.jobParser.Parse(raw)
	if err != nil {
		p.transition(log, StateFailed, "code", string(errors.GetCode(err)))
		p.record(ctx, renderID, nil, len(raw.Assets), nil, err, start)
		return nil, err
	}
	p.transition(log, StateValidated, "width", job.Width, "height", job.Height)

	res, err := p.run(ctx, log, renderID, job)
	p.record(ctx, renderID, job, len(raw.Assets), res, err, start)
	if err != nil {
		return nil, err
	}

	log.Info("render completed",
		"width", res.Width,
		"height", res.Height,
		"assets", res.StagedCount,
		"bytes", len(res.PNG),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Processor) run(ctx context.Context, log *logger.Logger, renderID string, job *RenderJob) (res *Result, err error) {
	staged := &StagedSet{}
	defer func() {
		report := p.cleanup.Release(ctx, renderID, staged)
		p.transition(log, StateCleanedUp, "removed", report.Removed, "warnings", report.Warnings)
		if res != nil {
			res.CleanupWarnings = report.Warnings
		}
	}()

	assets := engine.AssetMap{}
	if len(job.Assets) > 0 {
		p.transition(log, StateStaging, "count", len(job.Assets))
		assets, err = p.stager.Stage(ctx, renderID, job.Assets, staged)
		if err != nil {
			p.transition(log, StateFailed, "code", string(errors.GetCode(err)), "staged", staged.Len())
			return nil, err
		}
		p.transition(log, StateStaged, "count", staged.Len())
	}

	p.transition(log, StateRendering)
	png, err := p.renderer.Render(ctx, job, assets)
	if err != nil {
		p.transition(log, StateFailed, "code", string(errors.GetCode(err)))
		return nil, err
	}
	p.transition(log, StateRendered, "bytes", len(png))

	return &Result{
		RenderID:    renderID,
		PNG:         png,
		Width:       job.Width,
		Height:      job.Height,
		StagedCount: staged.Len(),
	}, nil
}

func (p *Processor) transition(log *logger.Logger, s State, args ...any) {
	log.Debug("pipeline state", append([]any{"state", string(s)}, args...)...)
}

// record reports the run to the configured recorders. It runs after cleanup,
// outlives request cancellation and never changes the outcome.
func (p *Processor) record(ctx context.Context, renderID string, job *RenderJob, assetCount int, res *Result, runErr error, start time.Time) {
	if p.recorder == nil {
		return
	}

	elapsed := time.Since(start)
	rec := ports.RenderRecord{
		ID:         renderID,
		RequestID:  logger.RequestIDFromContext(ctx),
		AssetCount: assetCount,
		Status:     ports.RenderStatusSucceeded,
		Duration:   elapsed,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  start.UTC(),
	}
	if job != nil {
		rec.Width = job.Width
		rec.Height = job.Height
	}
	if res != nil {
		rec.PNGBytes = len(res.PNG)
	}
	if runErr != nil {
		rec.Status = ports.RenderStatusFailed
		rec.ErrorCode = string(errors.GetCode(runErr))
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := p.recorder.RecordRender(rctx, rec); err != nil {
		p.log.FromContext(ctx).Warn("render record not stored", "error", err.Error())
	}
}
