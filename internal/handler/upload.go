package handler

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/httpmsg"
	"github.com/webserv/goserv/pkg/constants"
	goserverrors "github.com/webserv/goserv/pkg/errors"
)

// UploadHandler persists multipart/form-data parts to a location's
// upload directory.
type UploadHandler struct{}

// NewUploadHandler returns an UploadHandler.
func NewUploadHandler() *UploadHandler {
	return &UploadHandler{}
}

// IsMultipart reports whether contentType names multipart/form-data.
func IsMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "multipart/form-data"
}

// Handle parses req.Body as multipart/form-data and writes the first
// file part found to loc's upload directory. On success it returns a
// 201 response with a plain-text confirmation body.
func (h *UploadHandler) Handle(req *httpmsg.Request, loc *config.LocationConfig) (*httpmsg.Response, error) {
	_, params, err := mime.ParseMediaType(req.Header("Content-Type"))
	if err != nil {
		return nil, goserverrors.NewParseError("parse-content-type", "invalid Content-Type", err)
	}
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return nil, goserverrors.NewParseError("parse-content-type", "missing multipart boundary", nil)
	}

	reader := multipart.NewReader(bytes.NewReader(req.Body), boundary)

	uploadDir := filepath.Join(loc.Root, loc.Path)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, goserverrors.NewIOError("mkdir", err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, goserverrors.NewParseError("parse-multipart", "no file part found", nil)
		}
		if err != nil {
			return nil, goserverrors.NewParseError("parse-multipart", "malformed multipart body", err)
		}

		filename := part.FileName()
		if filename == "" {
			part.Close()
			continue
		}

		target := filepath.Join(uploadDir, sanitizeFilename(filename))
		if err := writePart(target, part); err != nil {
			part.Close()
			return nil, goserverrors.NewIOError("write-upload", err)
		}
		part.Close()

		resp := httpmsg.NewResponse(201)
		resp.AddHeader("Content-Type", "text/plain")
		resp.SetBodyString("File uploaded successfully")
		return resp, nil
	}
}

// writePart streams part's content to target in chunks of
// UploadChunkSize.
func writePart(target string, part *multipart.Part) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, constants.UploadChunkSize)
	// Hide *os.File's ReadFrom so CopyBuffer copies through buf.
	_, err = io.CopyBuffer(struct{ io.Writer }{f}, part, buf)
	return err
}

// sanitizeFilename drops every character outside [A-Za-z0-9._- ].
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '.' || c == '_' || c == '-' || c == ' ':
			b.WriteRune(c)
		}
	}
	return b.String()
}
