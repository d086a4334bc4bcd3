package handler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/webserv/goserv/internal/config"
)

func TestErrorPageServesCustomPageJoinedToRoot(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "404.html", "<html>custom not found</html>")

	server := &config.ServerConfig{
		Root:       dir,
		ErrorPages: map[int]string{404: "/404.html"},
	}

	resp := ErrorPage(404, server)
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if readAll(t, resp) != "<html>custom not found</html>" {
		t.Fatal("expected custom error page body")
	}
}

func TestErrorPageFallsBackToBuiltinWhenCustomMissing(t *testing.T) {
	server := &config.ServerConfig{
		Root:       t.TempDir(),
		ErrorPages: map[int]string{404: "/404.html"},
	}

	resp := ErrorPage(404, server)
	if resp.HasFileSource() {
		t.Fatal("expected built-in (inline) body when custom page is absent")
	}
	if !strings.Contains(string(resp.InlineBody()), "404") {
		t.Fatal("expected built-in page to mention the status code")
	}
}

func TestErrorPageWithNilServerUsesBuiltin(t *testing.T) {
	resp := ErrorPage(500, nil)
	if resp.HasFileSource() {
		t.Fatal("expected built-in (inline) body with no server config")
	}
}

func TestErrorPageCustomPathIsRootRelativeNotAbsolute(t *testing.T) {
	// Regression test: the custom error-page path must be joined to
	// server.Root, not opened as a literal filesystem path (which would
	// try to open "/404.html" at the OS root and always miss).
	dir := t.TempDir()
	if _, err := os.Stat(filepath.Join(string(filepath.Separator), "404.html")); err == nil {
		t.Skip("a file literally at /404.html exists on this machine; skipping")
	}
	mustWriteFile(t, dir, "404.html", "root-relative")

	server := &config.ServerConfig{Root: dir, ErrorPages: map[int]string{404: "/404.html"}}
	resp := ErrorPage(404, server)
	if !resp.HasFileSource() {
		t.Fatal("expected the root-relative custom error page to be found")
	}
	if readAll(t, resp) != "root-relative" {
		t.Fatal("wrong custom error page content")
	}
}
