// Package handler implements the request handlers dispatched to once a
// location has been resolved: static file serving and directory
// autoindex, multipart upload, and the CGI gateway.
package handler

import (
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/httpmsg"
	"github.com/webserv/goserv/internal/mimetype"
	goserverrors "github.com/webserv/goserv/pkg/errors"
)

// StaticFileHandler serves files, directory indexes, autoindex
// listings, and DELETE on regular files.
type StaticFileHandler struct{}

// NewStaticFileHandler returns a StaticFileHandler. It is stateless;
// every call takes the request, location, and server it needs.
func NewStaticFileHandler() *StaticFileHandler {
	return &StaticFileHandler{}
}

// ResolvePath computes the filesystem path for req.Path under loc,
// rejecting any resolved path that contains ".." anywhere, including
// inside a name such as "a..b".
func (h *StaticFileHandler) ResolvePath(req *httpmsg.Request, loc *config.LocationConfig) (string, error) {
	rel := strings.TrimPrefix(req.Path, loc.Path)
	rel = strings.TrimPrefix(rel, "/")

	decoded, err := url.PathUnescape(rel)
	if err != nil {
		return "", goserverrors.NewParseError("resolve-path", "invalid percent-encoding", err)
	}

	full := filepath.Join(loc.Root, decoded)
	if strings.Contains(full, "..") {
		return "", goserverrors.NewPolicyError("resolve-path", "path escapes root", full)
	}
	return full, nil
}

// Serve implements GET/HEAD on a resolved filesystem path: serves a
// regular file, an index file or autoindex listing for a directory, or
// a 404/403 error.
func (h *StaticFileHandler) Serve(fsPath, urlPath string, loc *config.LocationConfig) (*httpmsg.Response, error) {
	info, err := os.Stat(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goserverrors.NewNotFoundError(fsPath)
		}
		return nil, goserverrors.NewIOError("stat", err)
	}

	if info.IsDir() {
		return h.serveDirectory(fsPath, urlPath, loc)
	}
	return h.serveFile(fsPath)
}

func (h *StaticFileHandler) serveFile(fsPath string) (*httpmsg.Response, error) {
	f, err := os.Open(fsPath)
	if err != nil {
		if os.IsPermission(err) {
			return nil, goserverrors.NewPolicyError("open", "file not readable", fsPath)
		}
		return nil, goserverrors.NewNotFoundError(fsPath)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, goserverrors.NewIOError("stat", err)
	}

	resp := httpmsg.NewResponse(200)
	resp.AddHeader("Content-Type", mimetype.TypeByExtension(fsPath))
	resp.AttachFile(httpmsg.NewFileSource(f, info.Size()))
	return resp, nil
}

func (h *StaticFileHandler) serveDirectory(fsPath, urlPath string, loc *config.LocationConfig) (*httpmsg.Response, error) {
	for _, idx := range loc.Index {
		idxPath := filepath.Join(fsPath, idx)
		if st, err := os.Stat(idxPath); err == nil && !st.IsDir() {
			return h.serveFile(idxPath)
		}
	}

	if !loc.Autoindex {
		return nil, goserverrors.NewPolicyError("autoindex", "directory listing disabled", fsPath)
	}

	entries, err := os.ReadDir(fsPath)
	if err != nil {
		return nil, goserverrors.NewIOError("readdir", err)
	}

	body := renderAutoindex(fsPath, urlPath, entries)
	resp := httpmsg.NewResponse(200)
	resp.AddHeader("Content-Type", "text/html")
	resp.SetBody(body)
	return resp, nil
}

// Delete implements DELETE on a resolved filesystem path. Directories
// are refused; only regular files are unlinked.
func (h *StaticFileHandler) Delete(fsPath string) (*httpmsg.Response, error) {
	info, err := os.Stat(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goserverrors.NewNotFoundError(fsPath)
		}
		return nil, goserverrors.NewIOError("stat", err)
	}
	if info.IsDir() {
		return nil, goserverrors.NewPolicyError("delete", "cannot delete a directory", fsPath)
	}
	if err := os.Remove(fsPath); err != nil {
		return nil, goserverrors.NewIOError("unlink", err)
	}

	resp := httpmsg.NewResponse(200)
	resp.AddHeader("Content-Type", "text/plain")
	resp.SetBodyString("File deleted successfully")
	return resp, nil
}

// renderAutoindex builds the directory-listing HTML body: a
// parent-directory link (unless at root), and for each entry (skipping
// "." and "..") its name, size in bytes ("-" for directories),
// local-time last-modified timestamp, and a Delete action.
func renderAutoindex(fsPath, urlPath string, entries []os.DirEntry) []byte {
	display := urlPath
	if display == "" {
		display = "/"
	}
	display = strings.TrimSuffix(display, "/")
	if display == "" {
		display = "/"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html><html><head><title>Directory: %s</title></head><body>\n", html.EscapeString(display))
	fmt.Fprintf(&b, "<h1>Directory: %s</h1>\n<table>\n", html.EscapeString(display))
	b.WriteString("<tr><th>Name</th><th>Size</th><th>Last Modified</th><th>Actions</th></tr>\n")

	if display != "/" {
		parent := display[:strings.LastIndex(display, "/")]
		if parent == "" {
			parent = "/"
		}
		fmt.Fprintf(&b, "<tr><td><a href=\"%s\">..</a></td><td>-</td><td>-</td><td></td></tr>\n", html.EscapeString(parent))
	}

	names := make([]string, 0, len(entries))
	byName := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		names = append(names, e.Name())
		byName[e.Name()] = e
	}
	sort.Strings(names)

	for _, name := range names {
		e := byName[name]
		info, err := e.Info()
		if err != nil {
			continue
		}
		link := display + "/" + name
		if e.IsDir() {
			link += "/"
		}
		size := "-"
		if !e.IsDir() {
			size = fmt.Sprintf("%d bytes", info.Size())
		}
		modTime := info.ModTime().Local().Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "<tr><td><a href=\"%s\">%s</a></td><td>%s</td><td>%s</td><td>",
			html.EscapeString(link), html.EscapeString(name), size, modTime)
		if !e.IsDir() {
			fmt.Fprintf(&b, "<a href=\"#\" onclick=\"fetch('%s',{method:'DELETE'}).then(()=>location.reload());return false;\">Delete</a>", html.EscapeString(link))
		}
		b.WriteString("</td></tr>\n")
	}

	b.WriteString("</table></body></html>")
	return []byte(b.String())
}
