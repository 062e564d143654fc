package processor

import (
	"context"
	"fmt"
	"strings"

	"htmlpng/internal/engine"
	"htmlpng/internal/pkg/errors"
)

// RendererAdapter hands a validated job to the engine and normalizes its
// failures into RENDER_ERROR values.
type RendererAdapter struct {
	engine      engine.Engine
	stagingRoot string
}

func NewRendererAdapter(e engine.Engine, stagingRoot string) *RendererAdapter {
	return &RendererAdapter{engine: e, stagingRoot: stagingRoot}
}

// Render blocks until the engine answers. Request cancellation is not
// forwarded: once started, the engine call runs to completion or to its own
// internal timeout.
func (ra *RendererAdapter) Render(ctx context.Context, job *RenderJob, assets engine.AssetMap) (png []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			png = nil
			err = errors.Render(fmt.Errorf("engine panic: %v", r), "engine fault")
		}
	}()

	out, err := ra.engine.Render(context.WithoutCancel(ctx), engine.Job{
		HTML:   job.HTML,
		Width:  job.Width,
		Height: job.Height,
		Assets: assets,
	})
	if err != nil {
		return nil, errors.Render(err, ra.redact(err.Error(), assets))
	}
	if !engine.IsPNG(out) {
		return nil, errors.Render(engine.ErrInvalidImage, engine.ErrInvalidImage.Error())
	}
	return out, nil
}

// redact swaps staged paths for the names the client sent, then strips the
// staging root, so engine messages can be returned verbatim.
func (ra *RendererAdapter) redact(msg string, assets engine.AssetMap) string {
	for name, path := range assets {
		msg = strings.ReplaceAll(msg, path, name)
	}
	if ra.stagingRoot != "" {
		msg = strings.ReplaceAll(msg, ra.stagingRoot, "<staging>")
	}
	return msg
}
