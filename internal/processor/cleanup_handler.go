package processor

import (
	"context"
	"errors"
	"os"

	"htmlpng/internal/pkg/logger"
	"htmlpng/internal/ports"
)

// CleanupReport counts what Release did. Warnings never affect the render
// outcome.
type CleanupReport struct {
	Removed  int
	Warnings int
}

// Cleanup releases the files a request staged.
type Cleanup struct {
	store           ports.StagingStore
	removePartition bool
	log             *logger.Logger
}

func NewCleanup(store ports.StagingStore, removePartition bool, log *logger.Logger) *Cleanup {
	return &Cleanup{
		store:           store,
		removePartition: removePartition,
		log:             log,
	}
}

// Release removes every staged file. It keeps going past individual failures,
// which are logged as cleanup warnings, and ignores cancellation of ctx.
func (c *Cleanup) Release(ctx context.Context, renderID string, staged *StagedSet) CleanupReport {
	var report CleanupReport
	if staged == nil {
		return report
	}

	ctx = context.WithoutCancel(ctx)
	log := c.log.FromContext(ctx)

	for _, a := range staged.Assets() {
		if err := c.store.Remove(ctx, a.TempPath); err != nil {
			report.Warnings++
			log.Warn("cleanup warning: staged asset not removed",
				"asset", a.OriginalName,
				"error", err.Error(),
			)
			continue
		}
		report.Removed++
	}

	if c.removePartition && staged.partitioned {
		err := c.store.RemovePartition(ctx, renderID)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug("staging partition kept", "error", err.Error())
		}
	}

	return report
}
