package httpmsg

import (
	"os"
	"strings"
	"testing"
)

func TestResponseInlineBody(t *testing.T) {
	r := NewResponse(200)
	r.AddHeader("Content-Type", "text/plain")
	r.SetBodyString("hello")

	out := string(r.InlineBody())
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line wrong: %q", out)
	}
	if !strings.Contains(out, "Content-Length: 5\r\n") {
		t.Fatalf("missing Content-Length: %q", out)
	}
	if !strings.Contains(out, "Content-Type: text/plain\r\n") {
		t.Fatalf("missing Content-Type: %q", out)
	}
	if !strings.HasSuffix(out, "hello") {
		t.Fatalf("missing body: %q", out)
	}
}

func TestResponseDefaultStatusIs200(t *testing.T) {
	r := NewResponse(0)
	if r.StatusCode != 200 {
		t.Fatalf("default status = %d, want 200", r.StatusCode)
	}
}

func TestResponseUnknownStatusReason(t *testing.T) {
	r := NewResponse(799)
	if !strings.Contains(string(r.HeaderBlock()), "799 Unknown") {
		t.Fatalf("expected Unknown reason phrase, got %q", r.HeaderBlock())
	}
}

func TestResponseSetCookie(t *testing.T) {
	r := NewResponse(200)
	r.SetCookie("server", "webserv/1.0", "/", "")
	out := string(r.HeaderBlock())
	if !strings.Contains(out, "Set-Cookie: server=webserv/1.0; Path=/\r\n") {
		t.Fatalf("missing Set-Cookie header: %q", out)
	}
}

func TestResponseSetCookieWithAttrsOptIn(t *testing.T) {
	r := NewResponse(200)
	r.SetCookieWithAttrs("session_id", "abc123", "/", "", true)
	out := string(r.HeaderBlock())
	if !strings.Contains(out, "Set-Cookie: session_id=abc123; Path=/; HttpOnly; Secure; SameSite=Lax\r\n") {
		t.Fatalf("missing secure cookie attributes: %q", out)
	}

	plain := NewResponse(200)
	plain.SetCookieWithAttrs("session_id", "abc123", "/", "", false)
	if strings.Contains(string(plain.HeaderBlock()), "HttpOnly") {
		t.Fatalf("HttpOnly should not appear when secure attrs are off")
	}
}

func TestResponseHeaderInjectionRejected(t *testing.T) {
	r := NewResponse(200)
	r.AddHeader("X-Evil\r\nX-Injected", "value")
	out := string(r.HeaderBlock())
	if strings.Contains(out, "X-Injected") {
		t.Fatalf("header injection was not rejected: %q", out)
	}
}

func TestResponseFileSource(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "resp")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("file contents"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	src := NewFileSource(f, 13)
	r := NewResponse(200)
	r.AttachFile(src)

	if !r.HasFileSource() {
		t.Fatal("expected HasFileSource true")
	}
	if !strings.Contains(string(r.HeaderBlock()), "Content-Length: 13\r\n") {
		t.Fatalf("expected Content-Length 13 from file size")
	}

	buf := make([]byte, 4)
	var collected []byte
	for {
		n, err := src.ReadNext(buf)
		collected = append(collected, buf[:n]...)
		if err != nil {
			break
		}
	}
	if string(collected) != "file contents" {
		t.Fatalf("streamed content = %q", collected)
	}
}

func TestBuiltinErrorPageContainsReasonPhrase(t *testing.T) {
	page := string(BuiltinErrorPage(404))
	if !strings.Contains(page, "404") || !strings.Contains(page, "Not Found") {
		t.Fatalf("builtin error page missing code/reason: %q", page)
	}
}
