package httpmsg

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Response builds an HTTP/1.1 response. The body is either inline
// bytes or a move-only FileSource streamed to the socket in chunks;
// exactly one of the two is set at send time.
type Response struct {
	StatusCode int
	headers    map[string]string // canonical name -> value
	order      []string          // insertion order, for stable header emission
	body       []byte
	source     *FileSource
	cookies    []SetCookie
}

// FileSource is a move-only streaming response body backed by an open
// file. Close must be called exactly once, by whichever of
// {the connection that streams it, an error path} last touches it.
type FileSource struct {
	f      *os.File
	Size   int64
	offset int64
}

// NewFileSource wraps an already-open file whose current size is size.
func NewFileSource(f *os.File, size int64) *FileSource {
	return &FileSource{f: f, Size: size}
}

// ReadNext reads up to len(buf) unsent bytes into buf, advancing the
// internal offset. Returns io.EOF once the file is exhausted.
func (s *FileSource) ReadNext(buf []byte) (int, error) {
	n, err := s.f.ReadAt(buf, s.offset)
	s.offset += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	if s.offset >= s.Size {
		if n == 0 {
			return 0, io.EOF
		}
	}
	return n, err
}

// Close releases the underlying file descriptor.
func (s *FileSource) Close() error {
	return s.f.Close()
}

// NewResponse returns a Response with the given status code; 0 means
// 200.
func NewResponse(statusCode int) *Response {
	if statusCode == 0 {
		statusCode = 200
	}
	return &Response{StatusCode: statusCode, headers: make(map[string]string)}
}

// SetBody sets an inline body and updates Content-Length.
func (r *Response) SetBody(body []byte) {
	r.body = body
	r.source = nil
}

// SetBodyString is a convenience wrapper for SetBody([]byte(s)).
func (r *Response) SetBodyString(s string) {
	r.SetBody([]byte(s))
}

// AttachFile makes the response stream from src instead of an inline
// body; HeaderBlock derives Content-Length from src.Size.
func (r *Response) AttachFile(src *FileSource) {
	r.source = src
	r.body = nil
}

// AddHeader sets a response header, rejecting header injection via
// embedded CR/LF/NUL.
func (r *Response) AddHeader(name, value string) {
	if name == "" || strings.ContainsAny(name, "\r\n\x00") {
		return
	}
	if _, exists := r.headers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.headers[name] = value
}

// SetCookie appends a Set-Cookie directive.
func (r *Response) SetCookie(name, value, path, expires string) {
	r.cookies = append(r.cookies, SetCookie{Name: name, Value: value, Path: path, Expires: expires})
}

// SetCookieWithAttrs is SetCookie plus the opt-in HttpOnly/Secure/
// SameSite=Lax attributes, emitted when secure is true.
func (r *Response) SetCookieWithAttrs(name, value, path, expires string, secure bool) {
	r.cookies = append(r.cookies, SetCookie{Name: name, Value: value, Path: path, Expires: expires, SecureAttrs: secure})
}

// bodyLength returns the byte count that will be transmitted, from
// whichever of {inline body, file source} is set.
func (r *Response) bodyLength() int64 {
	if r.source != nil {
		return r.source.Size
	}
	return int64(len(r.body))
}

// HeaderBlock renders the status line and header block, everything up
// to and including the blank line terminator.
func (r *Response) HeaderBlock() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.StatusCode, ReasonPhrase(r.StatusCode))
	fmt.Fprintf(&b, "Content-Length: %d\r\n", r.bodyLength())

	for _, name := range r.order {
		if strings.EqualFold(name, "Content-Length") {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", name, r.headers[name])
	}
	for _, c := range r.cookies {
		fmt.Fprintf(&b, "Set-Cookie: %s\r\n", c.String())
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// InlineBody returns the full response (headers plus inline body) as a
// single byte slice. Only valid when no file source is attached.
func (r *Response) InlineBody() []byte {
	out := r.HeaderBlock()
	return append(out, r.body...)
}

// HasFileSource reports whether the response streams from a file
// rather than an inline body.
func (r *Response) HasFileSource() bool {
	return r.source != nil
}

// Body returns the inline body bytes. Only meaningful when HasFileSource
// is false; used by the connection state machine to hand the whole body
// to the socket in one non-blocking write attempt.
func (r *Response) Body() []byte {
	return r.body
}

// Source returns the attached FileSource, or nil.
func (r *Response) Source() *FileSource {
	return r.source
}

// BuiltinErrorPage renders the fallback HTML page for code when no
// custom error-page path is configured or readable.
func BuiltinErrorPage(code int) []byte {
	phrase := ReasonPhrase(code)
	return []byte(fmt.Sprintf(
		"<html><head><title>%d %s</title></head><body><h1>%d %s</h1></body></html>",
		code, phrase, code, phrase,
	))
}
