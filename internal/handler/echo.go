package handler

import (
	"path/filepath"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/httpmsg"
)

// PostDispatch decides how a POST body is handled once its location
// has resolved: a configured CGI extension wins first,
// multipart/form-data goes to UploadHandler, and anything else is
// echoed back as the response body.
type PostDispatch struct {
	CGI    *CgiEngine
	Upload *UploadHandler
}

// NewPostDispatch returns a PostDispatch wired with fresh CGI and upload
// handlers.
func NewPostDispatch() *PostDispatch {
	return &PostDispatch{CGI: NewCgiEngine(), Upload: NewUploadHandler()}
}

// CGIParams carries the per-request, per-server values Execute needs to
// build a CGI environment; the caller builds it before dispatch, and it
// is used only when a CGI handler is selected.
type CGIParams struct {
	ScriptPath     string
	ServerName     string
	ServerPort     int
	ServerSoftware string
	RemoteAddr     string
	WorkDir        string

	// BodyPath names an already-staged spill file backing the request
	// body (set when the connection spilled a large body to disk); when
	// non-empty, Execute reuses it instead of writing a second copy.
	BodyPath string
}

// Handle dispatches req to the CGI engine, the upload handler, or a
// plain echo. fsPath is the resolved filesystem path for the request,
// used to match the server's CGI extension table.
func (d *PostDispatch) Handle(req *httpmsg.Request, loc *config.LocationConfig, server *config.ServerConfig, fsPath string, cgiParams CGIParams) (*httpmsg.Response, error) {
	if handlerPath, ok := cgiHandlerForPath(server, fsPath); ok {
		return d.CGI.Execute(ExecParams{
			Request:        req,
			Handler:        handlerPath,
			ScriptPath:     cgiParams.ScriptPath,
			ServerName:     cgiParams.ServerName,
			ServerPort:     cgiParams.ServerPort,
			ServerSoftware: cgiParams.ServerSoftware,
			RemoteAddr:     cgiParams.RemoteAddr,
			WorkDir:        cgiParams.WorkDir,
			BodyPath:       cgiParams.BodyPath,
		})
	}

	if IsMultipart(req.Header("Content-Type")) {
		return d.Upload.Handle(req, loc)
	}

	return Echo(req), nil
}

// cgiHandlerForPath looks up a server's CGI handler by the request
// path's file extension.
func cgiHandlerForPath(server *config.ServerConfig, fsPath string) (string, bool) {
	ext := filepath.Ext(fsPath)
	if ext == "" {
		return "", false
	}
	return server.CGIHandlerFor(ext)
}

// Echo returns a 200 response whose body is a copy of the request
// body, the fallback for a POST that is neither CGI nor multipart.
func Echo(req *httpmsg.Request) *httpmsg.Response {
	resp := httpmsg.NewResponse(200)
	resp.AddHeader("Content-Type", "text/plain")
	if len(req.Body) > 0 {
		resp.SetBody(req.Body)
	}
	return resp
}

// HandlePut returns the server's fixed 200 acknowledgement for PUT.
// PUT is accepted but has no side effects.
func HandlePut() *httpmsg.Response {
	resp := httpmsg.NewResponse(200)
	resp.AddHeader("Content-Type", "text/plain")
	resp.SetBodyString("OK")
	return resp
}
