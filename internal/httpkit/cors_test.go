package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := CORS(CORSOptions{
		AllowedOrigins: []string{" https://app.example ", ""},
		ExposedHeaders: []string{"X-Request-ID"},
	})(next)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/render-html-to-png", nil)
		req.Header.Set("Origin", "https://app.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusTeapot {
			t.Errorf("expected request to reach handler, got %d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
			t.Errorf("unexpected allow-origin %q", got)
		}
		if got := rr.Header().Get("Access-Control-Max-Age"); got != "600" {
			t.Errorf("unexpected max-age %q", got)
		}
		if got := rr.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
			t.Errorf("unexpected expose-headers %q", got)
		}
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("expected no CORS headers for unknown origin")
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/render-html-to-png", nil)
		req.Header.Set("Origin", "https://app.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rr.Code)
		}
	})
}

func TestWritePNG(t *testing.T) {
	img := []byte("\x89PNG\r\n\x1a\nbody")
	rr := httptest.NewRecorder()
	if err := WritePNG(rr, img); err != nil {
		t.Fatal(err)
	}

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %q", ct)
	}
	if cl := rr.Header().Get("Content-Length"); cl != "12" {
		t.Errorf("expected Content-Length 12, got %q", cl)
	}
	if rr.Body.String() != string(img) {
		t.Error("body must be the raw image bytes")
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusBadRequest, "VALIDATION_ERROR", "missing html")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	want := `{"error":"missing html","code":"VALIDATION_ERROR"}` + "\n"
	if rr.Body.String() != want {
		t.Errorf("body = %q, want %q", rr.Body.String(), want)
	}
}
