// Package engine defines the rendering engine boundary: HTML plus an asset map
// in, PNG bytes out. The production implementation drives headless Chromium
// through go-rod; tests substitute fakes.
package engine

import (
	"bytes"
	"context"
	"errors"
)

// Sentinel errors returned by engine implementations.
var (
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrScreenshot     = errors.New("failed to capture screenshot")
	ErrInvalidImage   = errors.New("engine returned an invalid image")
	ErrClosed         = errors.New("engine is closed")
)

// AssetMap maps an asset's declared name to its staged file path. Lookups are
// exact and case-sensitive.
type AssetMap map[string]string

// Job is one unit of rendering work.
type Job struct {
	HTML   string
	Width  int
	Height int
	Assets AssetMap
}

// Engine rasterizes HTML. Render is synchronous and all-or-nothing: it returns
// complete PNG bytes or an error.
type Engine interface {
	Render(ctx context.Context, job Job) ([]byte, error)
	Close() error
}

// Pinger is implemented by engines that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// IsPNG reports whether b starts with the PNG file signature.
func IsPNG(b []byte) bool {
	return bytes.HasPrefix(b, pngSignature)
}
