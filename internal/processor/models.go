package processor

import (
	"bytes"
	"io"
	"mime/multipart"
)

// Default viewport when a request omits or garbles its dimensions.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// Asset is an uploaded image waiting to be staged. Content is opened lazily
// so multipart uploads are streamed to disk rather than held in memory.
type Asset struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// BytesAsset wraps in-memory content (e.g. base64 images from a JSON body).
func BytesAsset(name string, content []byte) Asset {
	return Asset{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// FileHeaderAsset wraps a multipart file part. The declared name is the part's
// original filename.
func FileHeaderAsset(fh *multipart.FileHeader) Asset {
	return Asset{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// RawJob is the decoded but unvalidated request. Empty Width/Height mean the
// field was absent.
type RawJob struct {
	HTML   string
	Width  string
	Height string
	Assets []Asset
}

// RenderJob is the validated unit of work. Width and Height are always
// positive.
type RenderJob struct {
	HTML   string
	Width  int
	Height int
	Assets []Asset
}

// StagedAsset is one file written for the current request.
type StagedAsset struct {
	OriginalName string
	TempPath     string
}

// State is a step of the per-request pipeline.
type State string

const (
	StateReceived  State = "received"
	StateValidated State = "validated"
	StateStaging   State = "staging"
	StateStaged    State = "staged"
	StateRendering State = "rendering"
	StateRendered  State = "rendered"
	StateFailed    State = "failed"
	StateCleanedUp State = "cleaned_up"
	StateResponded State = "responded"
)

// Result is a successful pipeline run.
type Result struct {
	RenderID        string
	PNG             []byte
	Width           int
	Height          int
	StagedCount     int
	CleanupWarnings int
}
