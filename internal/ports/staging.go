package ports

import (
	"context"
	"io"
)

// StagingStore is the request-partitioned scratch area assets are written to
// before a render. A partition is owned by exactly one render; callers never
// touch paths outside the partitions they created.
type StagingStore interface {
	// Root is the process-wide staging directory.
	Root() string

	// EnsurePartition creates the partition directory (and any missing
	// parents) or reuses it if it already exists. It returns its path.
	EnsurePartition(ctx context.Context, partition string) (string, error)

	// Put writes r to name inside partition, replacing any previous file with
	// the same name, and returns the on-disk path.
	Put(ctx context.Context, partition, name string, r io.Reader) (string, error)

	// Remove deletes a single staged file.
	Remove(ctx context.Context, path string) error

	// RemovePartition deletes the partition directory if it is empty.
	RemovePartition(ctx context.Context, partition string) error
}
