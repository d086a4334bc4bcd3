package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf})

	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected default level info, got %v", log.GetLevel())
	}

	log.Debug("should not appear")
	log.Info("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("expected info line in output, got %q", out)
	}
}

func TestNewHonorsExplicitLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Output: &buf})

	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", log.GetLevel())
	}
}

func TestNewJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{JSON: true, Output: &buf})
	log.Info("hello")

	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected JSON-formatted output, got %q", buf.String())
	}
}

func TestForConnTagsEntry(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf})
	entry := ForConn(log, 42)
	entry.Info("request handled")

	if !strings.Contains(buf.String(), "conn=42") {
		t.Fatalf("expected conn=42 field, got %q", buf.String())
	}
}

func TestNewFilePathCreatesDirectoryOnDemand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "server.log")

	log := New(Options{FilePath: path})
	log.Info("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Fatalf("expected log line in file, got %q", data)
	}
}
