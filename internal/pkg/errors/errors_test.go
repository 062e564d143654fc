package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "missing html")

	if err.Code != CodeValidation {
		t.Errorf("expected code=%s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "missing html" {
		t.Errorf("expected message='missing html', got %s", err.Message)
	}
	if len(err.Stack) == 0 {
		t.Error("expected stack trace to be captured")
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{
		Code:    CodeStaging,
		Message: "failed to stage assets",
		Op:      "processor.stage",
		Err:     fmt.Errorf("no space left on device"),
	}

	str := err.Error()
	for _, want := range []string{"processor.stage", "STAGING_ERROR", "failed to stage assets", "no space left"} {
		if !strings.Contains(str, want) {
			t.Errorf("expected %q in %q", want, str)
		}
	}
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		if Wrap(nil, "op", "msg") != nil {
			t.Error("Wrap(nil) should return nil")
		}
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		original := fmt.Errorf("boom")
		wrapped := Wrap(original, "svc.call", "call failed")
		if wrapped.Code != CodeInternal {
			t.Errorf("expected code=%s, got %s", CodeInternal, wrapped.Code)
		}
		if errors.Unwrap(wrapped) != original {
			t.Error("Unwrap should return original error")
		}
	})

	t.Run("preserves code", func(t *testing.T) {
		wrapped := Wrap(ValidationField("width", "invalid dimensions"), "handler", "bad request")
		if wrapped.Code != CodeValidation {
			t.Errorf("expected code to be preserved, got %s", wrapped.Code)
		}
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, 400},
		{CodeBadRequest, 400},
		{CodePayloadTooLarge, 413},
		{CodeStaging, 500},
		{CodeRender, 500},
		{CodeInternal, 500},
		{CodeUnavailable, 503},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").HTTPStatus(); got != tt.status {
				t.Errorf("expected status=%d, got %d", tt.status, got)
			}
		})
	}
}

func TestStaging(t *testing.T) {
	cause := fmt.Errorf("open /tmp/htmlpng/abc/a.png: permission denied")
	err := Staging(cause, "a.png")

	if err.Code != CodeStaging {
		t.Errorf("expected code=%s, got %s", CodeStaging, err.Code)
	}
	if strings.Contains(err.Message, "/tmp") {
		t.Errorf("public message leaks path: %s", err.Message)
	}
	if err.Fields["asset"] != "a.png" {
		t.Errorf("expected asset field, got %v", err.Fields)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
}

func TestRender(t *testing.T) {
	if got := Render(fmt.Errorf("x"), "").Message; got != "render failed" {
		t.Errorf("unexpected message %q", got)
	}
	if got := Render(fmt.Errorf("x"), "page crashed").Message; got != "render failed: page crashed" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(ValidationField("html", "missing html")); got != "missing html" {
		t.Errorf("expected 'missing html', got %q", got)
	}
	wrapped := fmt.Errorf("outer: %w", Render(fmt.Errorf("x"), "bad"))
	if got := PublicMessage(wrapped); got != "render failed: bad" {
		t.Errorf("expected render message, got %q", got)
	}
	if got := PublicMessage(fmt.Errorf("/secret/path")); got != "internal server error" {
		t.Errorf("expected generic message, got %q", got)
	}
}

func TestGetters(t *testing.T) {
	err := ValidationField("width", "invalid dimensions")

	if GetCode(err) != CodeValidation {
		t.Errorf("unexpected code %s", GetCode(err))
	}
	if GetHTTPStatus(fmt.Errorf("std")) != 500 {
		t.Error("expected 500 for standard error")
	}
	if GetFields(err)["field"] != "width" {
		t.Errorf("unexpected fields %v", GetFields(err))
	}
	if GetFields(fmt.Errorf("std")) != nil {
		t.Error("expected nil fields for standard error")
	}
	if GetCode(fmt.Errorf("std")) != CodeInternal {
		t.Error("expected internal code for standard error")
	}
}

func TestUnavailable(t *testing.T) {
	err := Unavailable("redis")
	if err.Message != "service unavailable: redis" {
		t.Errorf("unexpected message %q", err.Message)
	}
	if GetFields(err)["service"] != "redis" || err.HTTPStatus() != 503 {
		t.Errorf("unexpected unavailable error %+v", err)
	}
}

func TestErrorIs(t *testing.T) {
	if !errors.Is(New(CodeRender, "a"), New(CodeRender, "b")) {
		t.Error("expected errors with same code to match")
	}
	if errors.Is(New(CodeRender, "a"), New(CodeStaging, "a")) {
		t.Error("expected errors with different codes to not match")
	}
}

func TestStackTrace(t *testing.T) {
	stack := New(CodeInternal, "x").StackTrace()
	if !strings.Contains(stack, ".go:") {
		t.Errorf("expected file references in stack, got: %s", stack)
	}
}
