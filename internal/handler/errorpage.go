package handler

import (
	"os"
	"path/filepath"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/httpmsg"
)

// ErrorPage builds the response for a given status code: if server has
// a readable custom page for code, stream it; otherwise fall back to
// the built-in HTML page.
func ErrorPage(code int, server *config.ServerConfig) *httpmsg.Response {
	if server != nil {
		if custom, ok := server.ErrorPages[code]; ok {
			if resp, ok := tryCustomErrorPage(code, filepath.Join(server.Root, custom)); ok {
				return resp
			}
		}
	}

	resp := httpmsg.NewResponse(code)
	resp.AddHeader("Content-Type", "text/html")
	resp.SetBody(httpmsg.BuiltinErrorPage(code))
	return resp
}

// tryCustomErrorPage opens path (already joined to the server's
// document root) and streams it if it exists and is a regular file.
func tryCustomErrorPage(code int, path string) (*httpmsg.Response, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, false
	}

	resp := httpmsg.NewResponse(code)
	resp.AddHeader("Content-Type", "text/html")
	resp.AttachFile(httpmsg.NewFileSource(f, info.Size()))
	return resp, true
}
