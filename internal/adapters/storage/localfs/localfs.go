package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"htmlpng/internal/ports"
)

var (
	ErrInvalidPartition = errors.New("localfs: invalid partition")
	ErrInvalidName      = errors.New("localfs: invalid file name")
	ErrOutsideRoot      = errors.New("localfs: path outside staging root")
)

var _ ports.StagingStore = (*LocalFS)(nil)

// LocalFS implements ports.StagingStore on the local filesystem. Every
// partition is a direct child directory of root.
type LocalFS struct {
	root string
}

// New validates that root exists (creating it if needed) and is writable.
// An unusable root is a startup failure, not a per-request one.
func New(root string) (*LocalFS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("localfs: staging root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("localfs: resolve staging root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: ensure staging root: %w", err)
	}

	l := &LocalFS{root: abs}
	if err := l.Check(context.Background()); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LocalFS) Root() string { return l.root }

// Check probes the root for writability.
func (l *LocalFS) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.CreateTemp(l.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("localfs: staging root not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (l *LocalFS) EnsurePartition(ctx context.Context, partition string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := l.partitionDir(partition)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("localfs: ensure partition: %w", err)
	}
	return dir, nil
}

// Put writes r to partition/name. A partially written file is removed before
// the error is returned, so callers only ever track complete files.
func (l *LocalFS) Put(ctx context.Context, partition, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := l.partitionDir(partition)
	if err != nil {
		return "", err
	}
	fileName, err := SanitizeName(name)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(dir, fileName)
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("localfs: create %s: %w", fileName, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("localfs: write %s: %w", fileName, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("localfs: close %s: %w", fileName, err)
	}

	return dst, nil
}

func (l *LocalFS) Remove(_ context.Context, path string) error {
	if !l.contains(path) {
		return ErrOutsideRoot
	}
	return os.Remove(path)
}

func (l *LocalFS) RemovePartition(_ context.Context, partition string) error {
	dir, err := l.partitionDir(partition)
	if err != nil {
		return err
	}
	return os.Remove(dir)
}

func (l *LocalFS) partitionDir(partition string) (string, error) {
	partition = strings.TrimSpace(partition)
	if partition == "" || partition == "." || partition == ".." ||
		strings.ContainsAny(partition, `/\`) {
		return "", ErrInvalidPartition
	}
	return filepath.Join(l.root, partition), nil
}

func (l *LocalFS) contains(path string) bool {
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SanitizeName maps a declared asset name onto a single path element.
// Separators become underscores so a name can never leave its partition.
func SanitizeName(name string) (string, error) {
	s := strings.TrimSpace(name)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "", ErrInvalidName
	}
	return s, nil
}
