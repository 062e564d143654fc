package processor

import (
	"context"
	"fmt"

	"htmlpng/internal/engine"
	"htmlpng/internal/pkg/errors"
	"htmlpng/internal/ports"
)

// StagedSet tracks what one request has written so cleanup can release
// exactly that and nothing else. It holds one entry per on-disk path.
type StagedSet struct {
	partitioned bool
	byPath      map[string]int
	items       []StagedAsset
}

func (s *StagedSet) add(name, path string) {
	if s.byPath == nil {
		s.byPath = make(map[string]int)
	}
	if i, ok := s.byPath[path]; ok {
		s.items[i].OriginalName = name
		return
	}
	s.byPath[path] = len(s.items)
	s.items = append(s.items, StagedAsset{OriginalName: name, TempPath: path})
}

// Assets returns the staged files in staging order.
func (s *StagedSet) Assets() []StagedAsset {
	return s.items
}

func (s *StagedSet) Len() int {
	return len(s.items)
}

// AssetStager writes uploaded assets into the request's own partition.
type AssetStager struct {
	store ports.StagingStore
}

func NewAssetStager(store ports.StagingStore) *AssetStager {
	return &AssetStager{store: store}
}

// Stage writes every asset under partition renderID and returns the name to
// path map. Each file is recorded in staged as soon as it is complete, so a
// failure part-way leaves staged describing exactly what must be removed.
// Duplicate names overwrite: the later upload wins both on disk and in the map.
// Distinct names get distinct files even when they sanitize alike.
func (s *AssetStager) Stage(ctx context.Context, renderID string, assets []Asset, staged *StagedSet) (engine.AssetMap, error) {
	out := make(engine.AssetMap, len(assets))
	if len(assets) == 0 {
		return out, nil
	}

	if _, err := s.store.EnsurePartition(ctx, renderID); err != nil {
		return nil, errors.Staging(err, "")
	}
	staged.partitioned = true

	fileNames := make(map[string]string, len(assets))
	for _, a := range assets {
		fileName, ok := fileNames[a.Name]
		if !ok {
			fileName = fmt.Sprintf("%d-%s", len(fileNames), a.Name)
			fileNames[a.Name] = fileName
		}
		path, err := s.stageOne(ctx, renderID, fileName, a)
		if err != nil {
			return nil, errors.Staging(err, a.Name)
		}
		staged.add(a.Name, path)
		out[a.Name] = path
	}

	return out, nil
}

func (s *AssetStager) stageOne(ctx context.Context, renderID, fileName string, a Asset) (string, error) {
	if a.Open == nil {
		return "", fmt.Errorf("asset %q has no content", a.Name)
	}
	rc, err := a.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	return s.store.Put(ctx, renderID, fileName, rc)
}
