package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"htmlpng/internal/adapters/storage/localfs"
	"htmlpng/internal/engine"
	"htmlpng/internal/httpapi/handlers"
	"htmlpng/internal/pkg/logger"
	"htmlpng/internal/ports"
	"htmlpng/internal/processor"
)

var fakePNG = []byte("\x89PNG\r\n\x1a\nrendered")

type fakeEngine struct {
	calls  atomic.Int32
	last   atomic.Value
	render func(job engine.Job) ([]byte, error)
}

func (f *fakeEngine) Render(_ context.Context, job engine.Job) ([]byte, error) {
	f.calls.Add(1)
	f.last.Store(job)
	if f.render != nil {
		return f.render(job)
	}
	return fakePNG, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) lastJob() engine.Job {
	job, _ := f.last.Load().(engine.Job)
	return job
}

type stubHistory struct {
	limit int
	recs  []ports.RenderRecord
}

func (s *stubHistory) Recent(_ context.Context, limit int) ([]ports.RenderRecord, error) {
	s.limit = limit
	return s.recs, nil
}

type testServer struct {
	handler http.Handler
	engine  *fakeEngine
	store   *localfs.LocalFS
}

func newTestServer(t *testing.T, maxBody int64, history handlers.History, checks ...handlers.HealthCheck) *testServer {
	t.Helper()
	store, err := localfs.New(filepath.Join(t.TempDir(), "staging"))
	if err != nil {
		t.Fatal(err)
	}
	eng := &fakeEngine{}
	log := logger.Discard()

	proc := processor.New(processor.Deps{Engine: eng, Store: store, Log: log})
	h := NewRouter(Deps{
		Log: log,
		Handlers: handlers.Deps{
			Renderer:     proc,
			History:      history,
			Checks:       checks,
			MaxBodyBytes: maxBody,
			Version:      "test",
		},
	})
	return &testServer{handler: h, engine: eng, store: store}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) assertNoStagedFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(s.store.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty staging dir, found %d entries", len(entries))
	}
}

func jsonRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/render-html-to-png", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body, got %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestRenderJSON(t *testing.T) {
	s := newTestServer(t, 0, nil)

	rr := s.do(jsonRequest(t, map[string]any{"html": "<h1>Hi</h1>", "width": 800, "height": "600"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %q", ct)
	}
	if cl := rr.Header().Get("Content-Length"); cl != fmt.Sprint(len(fakePNG)) {
		t.Errorf("expected Content-Length %d, got %q", len(fakePNG), cl)
	}
	if !bytes.Equal(rr.Body.Bytes(), fakePNG) {
		t.Error("expected raw PNG body")
	}
	if rr.Header().Get(handlers.RenderIDHeader) == "" {
		t.Error("expected render id header")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}

	job := s.engine.lastJob()
	if job.Width != 800 || job.Height != 600 || job.HTML != "<h1>Hi</h1>" {
		t.Errorf("unexpected engine job %+v", job)
	}
}

func TestRenderJSONDefaults(t *testing.T) {
	s := newTestServer(t, 0, nil)

	rr := s.do(jsonRequest(t, map[string]any{"html": "<p>x</p>", "width": "wide", "height": nil}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	job := s.engine.lastJob()
	if job.Width != processor.DefaultWidth || job.Height != processor.DefaultHeight {
		t.Errorf("expected default viewport, got %dx%d", job.Width, job.Height)
	}
}

func TestRenderJSONImages(t *testing.T) {
	s := newTestServer(t, 0, nil)

	var seen string
	s.engine.render = func(job engine.Job) ([]byte, error) {
		b, err := os.ReadFile(job.Assets["logo.png"])
		seen = string(b)
		return fakePNG, err
	}

	rr := s.do(jsonRequest(t, map[string]any{
		"html":   `<img src="logo.png">`,
		"images": map[string]string{"logo.png": base64.StdEncoding.EncodeToString([]byte("logo-bytes"))},
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen != "logo-bytes" {
		t.Errorf("engine read %q", seen)
	}
	s.assertNoStagedFiles(t)
}

func TestRenderMultipart(t *testing.T) {
	s := newTestServer(t, 0, nil)

	var stagedPath string
	s.engine.render = func(job engine.Job) ([]byte, error) {
		stagedPath = job.Assets["a.png"]
		b, err := os.ReadFile(stagedPath)
		if err != nil {
			return nil, err
		}
		if string(b) != "png-a" {
			return nil, fmt.Errorf("unexpected asset content %q", b)
		}
		return fakePNG, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("html", `<img src="a.png">`)
	_ = mw.WriteField("width", "320")
	_ = mw.WriteField("height", "240")
	fw, err := mw.CreateFormFile("images", "a.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("png-a"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/render-html-to-png", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := s.do(req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	job := s.engine.lastJob()
	if job.Width != 320 || job.Height != 240 {
		t.Errorf("unexpected viewport %dx%d", job.Width, job.Height)
	}
	if _, err := os.Stat(stagedPath); !os.IsNotExist(err) {
		t.Errorf("staged file must be gone before the response, stat err=%v", err)
	}
	s.assertNoStagedFiles(t)
}

func TestRenderValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		wantMsg string
	}{
		{"empty html", map[string]any{"html": ""}, "missing html"},
		{"no html", map[string]any{"width": 10}, "missing html"},
		{"zero width", map[string]any{"html": "<p/>", "width": 0}, "invalid dimensions"},
		{"negative height", map[string]any{"html": "<p/>", "height": -1}, "invalid dimensions"},
		{"width overflows int", map[string]any{"html": "<p/>", "width": "99999999999999999999"}, "invalid dimensions"},
		{"height underflows int", map[string]any{"html": "<p/>", "height": json.Number("-99999999999999999999")}, "invalid dimensions"},
		{"bad base64", map[string]any{"html": "<p/>", "images": map[string]string{"a.png": "!!!"}}, "invalid image encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 0, nil)
			rr := s.do(jsonRequest(t, tt.body))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			body := decodeError(t, rr)
			if body.Error != tt.wantMsg || body.Code != "VALIDATION_ERROR" {
				t.Errorf("unexpected body %+v", body)
			}
			if s.engine.calls.Load() != 0 {
				t.Error("engine must not be invoked")
			}
			s.assertNoStagedFiles(t)
		})
	}
}

func TestRenderMalformedJSON(t *testing.T) {
	s := newTestServer(t, 0, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/render-html-to-png", strings.NewReader("{html:"))
	req.Header.Set("Content-Type", "application/json")

	rr := s.do(req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != "BAD_REQUEST" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestRenderBodyTooLarge(t *testing.T) {
	s := newTestServer(t, 64, nil)
	rr := s.do(jsonRequest(t, map[string]any{"html": strings.Repeat("x", 256)}))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != "PAYLOAD_TOO_LARGE" {
		t.Errorf("unexpected body %+v", body)
	}
	if s.engine.calls.Load() != 0 {
		t.Error("engine must not be invoked")
	}
}

func TestRenderEngineFailure(t *testing.T) {
	s := newTestServer(t, 0, nil)
	s.engine.render = func(job engine.Job) ([]byte, error) {
		return nil, fmt.Errorf("%w: could not read %s", engine.ErrPageLoad, job.Assets["a.png"])
	}

	rr := s.do(jsonRequest(t, map[string]any{
		"html":   `<img src="a.png">`,
		"images": map[string]string{"a.png": base64.StdEncoding.EncodeToString([]byte("x"))},
	}))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body.Code != "RENDER_ERROR" || !strings.HasPrefix(body.Error, "render failed") {
		t.Errorf("unexpected body %+v", body)
	}
	if strings.Contains(rr.Body.String(), s.store.Root()) {
		t.Errorf("error leaks staging path: %s", rr.Body.String())
	}
	s.assertNoStagedFiles(t)
}

func TestHealth(t *testing.T) {
	failing := handlers.HealthCheck{Name: "redis", Check: func(context.Context) error { return fmt.Errorf("connection refused") }}
	passing := handlers.HealthCheck{Name: "engine", Check: func(context.Context) error { return nil }}
	s := newTestServer(t, 0, nil, passing, failing)

	rr := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	var shallow map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &shallow)
	if rr.Code != http.StatusOK || shallow["status"] != "ok" || shallow["version"] != "test" {
		t.Errorf("unexpected shallow health %d %v", rr.Code, shallow)
	}
	if _, ok := shallow["checks"]; ok {
		t.Error("shallow health must not run checks")
	}

	rr = s.do(httptest.NewRequest(http.MethodGet, "/health?deep=true", nil))
	var deep struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &deep); err != nil {
		t.Fatal(err)
	}
	if rr.Code != http.StatusServiceUnavailable || deep.Status != "degraded" {
		t.Errorf("expected 503 degraded, got %d %q", rr.Code, deep.Status)
	}
	if deep.Checks["engine"]["status"] != "ok" || deep.Checks["redis"]["status"] != "error" {
		t.Errorf("unexpected checks %v", deep.Checks)
	}
	if deep.Checks["redis"]["error"] != "service unavailable: redis" {
		t.Errorf("failing check must report only the public message, got %v", deep.Checks["redis"]["error"])
	}

	s = newTestServer(t, 0, nil, passing)
	rr = s.do(httptest.NewRequest(http.MethodGet, "/health?deep=true", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 when all checks pass, got %d", rr.Code)
	}
}

func TestListRenders(t *testing.T) {
	t.Run("not routed without history", func(t *testing.T) {
		s := newTestServer(t, 0, nil)
		rr := s.do(httptest.NewRequest(http.MethodGet, "/api/renders", nil))
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("lists records", func(t *testing.T) {
		hist := &stubHistory{recs: []ports.RenderRecord{{
			ID:        "r1",
			Status:    ports.RenderStatusSucceeded,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}}}
		s := newTestServer(t, 0, hist)

		rr := s.do(httptest.NewRequest(http.MethodGet, "/api/renders?limit=5", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if hist.limit != 5 {
			t.Errorf("expected limit 5, got %d", hist.limit)
		}
		var out struct {
			Renders []ports.RenderRecord `json:"renders"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		if len(out.Renders) != 1 || out.Renders[0].ID != "r1" {
			t.Errorf("unexpected renders %+v", out.Renders)
		}
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		s := newTestServer(t, 0, &stubHistory{})
		rr := s.do(httptest.NewRequest(http.MethodGet, "/api/renders?limit=-1", nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}
