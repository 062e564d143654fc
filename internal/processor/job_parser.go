package processor

import (
	"strconv"
	"strings"

	"htmlpng/internal/pkg/errors"
)

// DefaultMaxDimension caps width and height when no limit is configured.
const DefaultMaxDimension = 16384

// JobParser turns a RawJob into a RenderJob. It never touches the filesystem.
type JobParser struct {
	maxDimension int
}

func NewJobParser(maxDimension int) *JobParser {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &JobParser{maxDimension: maxDimension}
}

// Parse validates raw. Missing html and non-positive or oversized dimensions
// are validation errors; absent or non-numeric dimensions fall back to the
// defaults. Integers too large for int count as oversized.
func (jp *JobParser) Parse(raw RawJob) (*RenderJob, error) {
	if raw.HTML == "" {
		return nil, errors.ValidationField("html", "missing html")
	}

	width, err := jp.dimension(raw.Width, DefaultWidth, "width")
	if err != nil {
		return nil, err
	}
	height, err := jp.dimension(raw.Height, DefaultHeight, "height")
	if err != nil {
		return nil, err
	}

	for _, a := range raw.Assets {
		if !validAssetName(a.Name) {
			return nil, errors.ValidationField("images", "invalid asset name")
		}
	}

	return &RenderJob{
		HTML:   raw.HTML,
		Width:  width,
		Height: height,
		Assets: raw.Assets,
	}, nil
}

func (jp *JobParser) dimension(raw string, def int, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if errors.Is(err, strconv.ErrRange) {
		return 0, errors.ValidationField(field, "invalid dimensions")
	}
	if err != nil {
		return def, nil
	}
	if v <= 0 || v > jp.maxDimension {
		return 0, errors.ValidationField(field, "invalid dimensions")
	}
	return v, nil
}

func validAssetName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != "." && name != ".."
}
