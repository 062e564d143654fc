package processor

import (
	"context"
	"errors"

	"htmlpng/internal/ports"
)

// Recorders fans a record out to every configured backend.
type Recorders []ports.RenderRecorder

func (rs Recorders) RecordRender(ctx context.Context, rec ports.RenderRecord) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.RecordRender(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
