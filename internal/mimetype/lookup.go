// Package mimetype maps a file path's extension to a Content-Type
// value, wrapping the stdlib mime package so behavior does not depend
// on what the host's /etc/mime.types happens to contain.
package mimetype

import (
	"mime"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultType is returned when the extension is unknown.
const DefaultType = "application/octet-stream"

var seedOnce sync.Once

// builtin is seeded into the stdlib mime registry so a lookup miss
// there still resolves correctly regardless of host configuration.
var builtin = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".json":  "application/json",
	".txt":   "text/plain",
	".xml":   "application/xml",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".pdf":   "application/pdf",
	".zip":   "application/zip",
	".tar":   "application/x-tar",
	".gz":    "application/gzip",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

func seed() {
	for ext, typ := range builtin {
		// Ignore errors: AddExtensionType only fails on a malformed
		// extension, and every key here is a literal we control.
		_ = mime.AddExtensionType(ext, typ)
	}
}

// TypeByExtension returns the Content-Type for path's extension, falling
// back to DefaultType when the extension is unknown or absent.
func TypeByExtension(path string) string {
	seedOnce.Do(seed)

	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return DefaultType
	}

	if t, ok := builtin[ext]; ok {
		return t
	}

	if t := mime.TypeByExtension(ext); t != "" {
		// Strip parameters (e.g. "; charset=utf-8"); responses carry a
		// plain Content-Type.
		if idx := strings.IndexByte(t, ';'); idx >= 0 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}

	return DefaultType
}
