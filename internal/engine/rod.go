package engine

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// documentURL is the synthetic origin every job is loaded from. Relative
// references in the HTML (e.g. <img src="a.png">) resolve against it and are
// answered from the job's AssetMap by the request hijacker.
const documentURL = "http://htmlpng.render/"

const defaultRenderTimeout = 60 * time.Second

var _ Engine = (*RodEngine)(nil)

// RodConfig configures the headless browser.
type RodConfig struct {
	// BrowserBin is a pre-installed Chromium binary. Empty lets the launcher
	// find or download one.
	BrowserBin string
	// NoSandbox is required in most containers.
	NoSandbox bool
	// Timeout bounds a single page load and screenshot.
	Timeout time.Duration
	// AllowNetwork lets pages fetch resources other than staged assets.
	AllowNetwork bool
}

// RodEngine renders HTML with one long-lived Chromium process and a fresh page
// per job. It is safe for concurrent use.
type RodEngine struct {
	cfg      RodConfig
	launcher *launcher.Launcher
	browser  *rod.Browser

	mu     sync.RWMutex
	closed bool
}

// NewRodEngine launches and connects to the browser. It is meant to be called
// once at startup; the returned engine is shared by all requests.
func NewRodEngine(cfg RodConfig) (*RodEngine, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRenderTimeout
	}

	l := launcher.New().Headless(true)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	return &RodEngine{cfg: cfg, launcher: l, browser: browser}, nil
}

// Render loads job.HTML into a page sized exactly job.Width x job.Height and
// returns a PNG screenshot of the viewport.
func (e *RodEngine) Render(ctx context.Context, job Job) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	page, err := e.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(e.cfg.Timeout)
	defer page.CancelTimeout()

	if err := page.SetViewport(viewport(job.Width, job.Height)); err != nil {
		return nil, fmt.Errorf("%w: viewport: %v", ErrPageLoad, err)
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		e.serve(h, job)
	}); err != nil {
		return nil, fmt.Errorf("%w: hijack: %v", ErrPageLoad, err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := page.Navigate(documentURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	img, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScreenshot, err)
	}
	if !IsPNG(img) {
		return nil, ErrInvalidImage
	}
	return img, nil
}

// serve answers every request the page makes. The document itself and staged
// assets are served locally; anything else is blocked unless AllowNetwork.
func (e *RodEngine) serve(h *rod.Hijack, job Job) {
	u := h.Request.URL()

	if isDocument(u) {
		h.Response.SetHeader("Content-Type", "text/html; charset=utf-8")
		h.Response.SetBody(job.HTML)
		return
	}

	if path, ok := resolveAsset(u, job.Assets); ok {
		body, err := os.ReadFile(path)
		if err != nil {
			h.Response.Fail(proto.NetworkErrorReasonFailed)
			return
		}
		h.Response.SetHeader("Content-Type", contentType(path, body))
		h.Response.SetBody(body)
		return
	}

	if isLocal(u) {
		h.Response.Payload().ResponseCode = http.StatusNotFound
		h.Response.SetBody("")
		return
	}

	if e.cfg.AllowNetwork {
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}
	h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
}

// Ping checks the browser is still answering CDP calls.
func (e *RodEngine) Ping(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	_, err := proto.BrowserGetVersion{}.Call(e.browser.Context(ctx))
	return err
}

// Close waits for in-flight renders, then shuts the browser down.
func (e *RodEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	err := e.browser.Close()
	e.launcher.Kill()
	e.launcher.Cleanup()
	return err
}

func viewport(width, height int) *proto.EmulationSetDeviceMetricsOverride {
	return &proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}
}

func isLocal(u *url.URL) bool {
	base, _ := url.Parse(documentURL)
	return u.Scheme == base.Scheme && u.Host == base.Host
}

func isDocument(u *url.URL) bool {
	return isLocal(u) && (u.Path == "" || u.Path == "/")
}

// resolveAsset maps a request on the synthetic origin to a staged file. The
// URL path minus its leading slash must equal an AssetMap key exactly.
func resolveAsset(u *url.URL, assets AssetMap) (string, bool) {
	if !isLocal(u) || len(assets) == 0 {
		return "", false
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", false
	}
	path, ok := assets[name]
	return path, ok
}

func contentType(path string, body []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(body)
}
