package handler

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/httpmsg"
)

func buildMultipartRequest(t *testing.T, fieldName, filename, content string) *httpmsg.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := &httpmsg.Request{Body: buf.Bytes()}
	req.SetHeader("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadHandlerWritesFile(t *testing.T) {
	dir := t.TempDir()
	req := buildMultipartRequest(t, "f", "a.txt", "xyz")
	loc := &config.LocationConfig{Root: dir, Path: ""}

	resp, err := NewUploadHandler().Handle(req, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "xyz" {
		t.Fatalf("file content = %q, want xyz", got)
	}
}

func TestUploadHandlerSanitizesFilename(t *testing.T) {
	if got := sanitizeFilename("my file!@#.txt"); got != "my file.txt" {
		t.Fatalf("sanitizeFilename = %q, want %q", got, "my file.txt")
	}
}

func TestUploadHandlerRejectsMissingBoundary(t *testing.T) {
	req := &httpmsg.Request{Body: []byte("irrelevant")}
	req.SetHeader("Content-Type", "multipart/form-data")
	if _, err := NewUploadHandler().Handle(req, &config.LocationConfig{}); err == nil {
		t.Fatal("expected error for missing boundary")
	}
}

func TestIsMultipart(t *testing.T) {
	if !IsMultipart("multipart/form-data; boundary=xyz") {
		t.Fatal("expected multipart/form-data to be detected")
	}
	if IsMultipart("application/json") {
		t.Fatal("expected application/json to not be multipart")
	}
}
