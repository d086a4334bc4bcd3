// Package httpmsg implements incremental HTTP/1.1 request framing and
// response materialization. Parsing is tagged-result rather than
// error-driven: feeding a growing buffer yields NeedMore, Complete, or
// Malformed, so the event loop can drive framing without unwind edges.
package httpmsg

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	goserverrors "github.com/webserv/goserv/pkg/errors"
)

// ParseStatus tags the outcome of feeding bytes to the request parser.
type ParseStatus int

const (
	// NeedMore indicates the buffer does not yet hold a full request.
	NeedMore ParseStatus = iota
	// Complete indicates a full request was parsed.
	Complete
	// Malformed indicates the bytes can never frame a valid request.
	Malformed
)

// Request is a parsed HTTP/1.1 request, mutable while ParseRequest is
// still assembling a chunked body and treated as immutable afterward.
type Request struct {
	Method      string
	Path        string // decoded, "..".-checked
	RawPath     string // as received, pre-decode
	QueryString string // undecoded
	Version     string
	headers     map[string]headerEntry // canonical lowercase key -> entry
	Body        []byte
	Chunked     bool
	Cookies     map[string]string
}

type headerEntry struct {
	name  string // original case, as first/last received
	value string
}

// Header returns the value stored for name (case-insensitive lookup),
// or "" if absent.
func (r *Request) Header(name string) string {
	if r.headers == nil {
		return ""
	}
	e, ok := r.headers[strings.ToLower(name)]
	if !ok {
		return ""
	}
	return e.value
}

// HeaderNames returns the original-case names of every header present,
// in no particular order. Used to build the CGI HTTP_<NAME> environment.
func (r *Request) HeaderNames() []string {
	names := make([]string, 0, len(r.headers))
	for _, e := range r.headers {
		names = append(names, e.name)
	}
	return names
}

// HasHeader reports whether name was present in the request.
func (r *Request) HasHeader(name string) bool {
	if r.headers == nil {
		return false
	}
	_, ok := r.headers[strings.ToLower(name)]
	return ok
}

// SetHeader stores name/value, last-wins on duplicates. Exported for
// callers that construct a Request directly rather than through
// ParseRequest (tests).
func (r *Request) SetHeader(name, value string) {
	r.setHeader(name, value)
}

// setHeader stores name/value, last-wins on duplicates. At most one
// value per canonical name.
func (r *Request) setHeader(name, value string) {
	if r.headers == nil {
		r.headers = make(map[string]headerEntry)
	}
	r.headers[strings.ToLower(name)] = headerEntry{name: name, value: value}
}

// deleteHeader removes name, used after unchunking to drop
// Transfer-Encoding.
func (r *Request) deleteHeader(name string) {
	if r.headers == nil {
		return
	}
	delete(r.headers, strings.ToLower(name))
}

// KeepAlive reports whether the connection should be kept open after
// this request, per the request's Connection header and HTTP version.
func (r *Request) KeepAlive() bool {
	conn := strings.ToLower(strings.TrimSpace(r.Header("Connection")))
	if conn == "close" {
		return false
	}
	if conn == "keep-alive" {
		return true
	}
	// HTTP/1.1 defaults to keep-alive; HTTP/1.0 defaults to close.
	return r.Version == "HTTP/1.1"
}

// ParseRequest attempts to frame one HTTP/1.1 request from buf. It
// returns the parse status, the request (only valid when status is
// Complete), and the number of bytes consumed from buf when Complete.
//
// bodyLimit bounds the body, whether sized by Content-Length or
// decoded from chunked transfer coding; exceeding it
// returns Malformed with a *goserverrors.Error of type ErrorTypeLimit
// so the caller can answer 413 instead of 400.
func ParseRequest(buf []byte, bodyLimit int64) (ParseStatus, *Request, int, error) {
	headerEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		if int64(len(buf)) > bodyLimit+64*1024 {
			// Headers alone already exceed any reasonable bound; treat
			// as malformed rather than buffering forever.
			return Malformed, nil, 0, goserverrors.NewParseError("parse-headers", "header section too large", nil)
		}
		return NeedMore, nil, 0, nil
	}

	lineEnd := bytes.Index(buf[:headerEnd], []byte("\r\n"))
	if lineEnd < 0 {
		return Malformed, nil, 0, goserverrors.NewParseError("parse-request-line", "no request line", nil)
	}

	req := &Request{}
	if err := req.parseRequestLine(string(buf[:lineEnd])); err != nil {
		return Malformed, nil, 0, err
	}

	headerSection := buf[lineEnd+2 : headerEnd]
	if err := req.parseHeaders(headerSection); err != nil {
		return Malformed, nil, 0, err
	}

	bodyStart := headerEnd + 4
	req.Chunked = strings.EqualFold(req.Header("Transfer-Encoding"), "chunked")

	if req.Chunked {
		dec := NewChunkedDecoder()
		consumed, err := dec.Feed(buf[bodyStart:])
		if err != nil {
			return Malformed, nil, 0, goserverrors.NewParseError("unchunk", "invalid chunk format", err)
		}
		if !dec.Done() {
			return NeedMore, nil, 0, nil
		}
		if int64(len(dec.Body())) > bodyLimit {
			return Malformed, nil, 0, goserverrors.NewLimitError(bodyLimit)
		}
		req.Body = dec.Body()
		req.setHeader("Content-Length", strconv.Itoa(len(req.Body)))
		req.deleteHeader("Transfer-Encoding")
		req.Cookies = parseCookies(req.Header("Cookie"))
		return Complete, req, bodyStart + consumed, nil
	}

	contentLength := req.Header("Content-Length")
	if contentLength == "" {
		req.Cookies = parseCookies(req.Header("Cookie"))
		return Complete, req, bodyStart, nil
	}

	n, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil || n < 0 {
		return Malformed, nil, 0, goserverrors.NewParseError("parse-content-length", "invalid Content-Length", err)
	}
	if n > bodyLimit {
		return Malformed, nil, 0, goserverrors.NewLimitError(bodyLimit)
	}

	have := int64(len(buf) - bodyStart)
	if have < n {
		return NeedMore, nil, 0, nil
	}

	req.Body = buf[bodyStart : bodyStart+int(n)]
	req.Cookies = parseCookies(req.Header("Cookie"))
	return Complete, req, bodyStart + int(n), nil
}

// parseRequestLine splits "METHOD SP URI SP VERSION", splits the URI at
// the first "?", and percent-decodes the path. "+" is left alone in the
// path; only query parameters treat it as space, and query decoding is
// the handler's business.
func (r *Request) parseRequestLine(line string) error {
	first := strings.IndexByte(line, ' ')
	last := strings.LastIndexByte(line, ' ')
	if first < 0 || last < 0 || first == last {
		return goserverrors.NewParseError("parse-request-line", fmt.Sprintf("malformed request line %q", line), nil)
	}

	method := line[:first]
	if method == "" {
		return goserverrors.NewParseError("parse-request-line", "empty method", nil)
	}
	r.Method = method

	fullPath := line[first+1 : last]
	r.Version = line[last+1:]

	if q := strings.IndexByte(fullPath, '?'); q >= 0 {
		r.RawPath = fullPath[:q]
		r.QueryString = fullPath[q+1:]
	} else {
		r.RawPath = fullPath
		r.QueryString = ""
	}

	decoded, err := url.PathUnescape(r.RawPath)
	if err != nil {
		return goserverrors.NewParseError("parse-request-line", "invalid percent-encoding in path", err)
	}
	if !strings.HasPrefix(decoded, "/") {
		return goserverrors.NewParseError("parse-request-line", "path must be absolute", nil)
	}
	if containsDotDotSegment(decoded) {
		return goserverrors.NewPolicyError("parse-request-line", "path traversal rejected", decoded)
	}
	r.Path = decoded
	return nil
}

// containsDotDotSegment reports whether path, split on "/", has a ".."
// segment.
func containsDotDotSegment(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// parseHeaders reads "name: value" lines until the section ends. The
// space after the colon is optional; surrounding whitespace is trimmed
// from both name and value.
func (r *Request) parseHeaders(section []byte) error {
	for _, raw := range bytes.Split(section, []byte("\r\n")) {
		line := bytes.TrimSuffix(raw, []byte("\r"))
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return goserverrors.NewParseError("parse-headers", fmt.Sprintf("missing colon in header %q", line), nil)
		}
		name := strings.TrimSpace(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		if name == "" {
			return goserverrors.NewParseError("parse-headers", "empty header name", nil)
		}
		r.setHeader(name, value)
	}
	return nil
}
