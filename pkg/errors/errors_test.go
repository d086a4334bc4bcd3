package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NewParseError("request-line", "bad token count", nil), 400},
		{NewPolicyError("traverse", "path escapes root", "/a/../b"), 403},
		{NewNotFoundError("/missing"), 404},
		{NewLimitError(1024), 413},
		{NewTimeoutError("cgi-exec", 0), 504},
		{NewCGIError("fork", "fork failed", nil), 500},
		{NewIOError("write", nil), 500},
		{NewConfigError("bad directive", nil), 500},
		{NewMethodNotAllowedError("DELETE", "/api"), 405},
	}

	for _, c := range cases {
		if got := c.err.StatusCode(); got != c.want {
			t.Errorf("%s: StatusCode() = %d, want %d", c.err.Type, got, c.want)
		}
		if got := StatusCode(c.err); got != c.want {
			t.Errorf("%s: package StatusCode() = %d, want %d", c.err.Type, got, c.want)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := NewIOError("open", cause)
	msg := err.Error()
	if !strings.Contains(msg, "permission denied") {
		t.Fatalf("expected message to include cause, got %q", msg)
	}
	if !strings.Contains(msg, "[io]") {
		t.Fatalf("expected message to include error type, got %q", msg)
	}
}

func TestIsTimeoutError(t *testing.T) {
	err := NewTimeoutError("cgi-exec", 0)
	if !IsTimeoutError(err) {
		t.Fatal("expected timeout error to be detected")
	}
	if IsTimeoutError(NewIOError("x", nil)) {
		t.Fatal("expected non-timeout error to not match")
	}
}

func TestGetErrorType(t *testing.T) {
	if got := GetErrorType(NewParseError("x", "y", nil)); got != ErrorTypeParse {
		t.Fatalf("GetErrorType() = %q, want %q", got, ErrorTypeParse)
	}
	if got := GetErrorType(fmt.Errorf("plain")); got != "" {
		t.Fatalf("GetErrorType() on plain error = %q, want empty", got)
	}
}
