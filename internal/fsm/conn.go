// Package fsm implements the per-connection state machine: phase
// transitions, read/write buffering, and idle/keep-alive deadlines.
// The event loop owns a Conn per accepted socket and drives it one step
// per readiness event; the FSM itself never touches a file descriptor
// directly so it stays trivially testable.
package fsm

import (
	"io"
	"strings"
	"time"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/httpmsg"
	"github.com/webserv/goserv/pkg/buffer"
	"github.com/webserv/goserv/pkg/timing"
)

// Phase is the connection's position in its request/response cycle.
type Phase int

const (
	ReadingRequest Phase = iota
	Processing
	WritingResponse
	Idle
	Closing
)

// String renders the phase name for logging.
func (p Phase) String() string {
	switch p {
	case ReadingRequest:
		return "READING_REQUEST"
	case Processing:
		return "PROCESSING"
	case WritingResponse:
		return "WRITING_RESPONSE"
	case Idle:
		return "IDLE"
	case Closing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Conn is the per-client state: owned by the event loop, keyed by
// socket fd, reset (not recreated) at each keep-alive request boundary.
type Conn struct {
	Fd    int
	Phase Phase

	Inbound *httpmsg.ByteBuffer
	Request *httpmsg.Request

	// Response is the in-flight response once PROCESSING has produced
	// one. SuppressBody is set for HEAD requests, which get the same
	// headers a GET would but no body bytes.
	Response     *httpmsg.Response
	SuppressBody bool

	outHeader  []byte
	pending    []byte
	headerDone bool
	bodyDone   bool

	// KeepAlive is derived in SetResponse: true iff the client asked
	// for keep-alive and no 4xx/5xx response was emitted.
	KeepAlive bool

	LastActivity time.Time

	// ServerRefs are non-owning references (arena index, not a raw
	// pointer) to every ServerConfig bound to the listening endpoint
	// that accepted this connection. SelectServer resolves and narrows
	// them to one by the request's Host header. A reference outliving a
	// SIGHUP reload still resolves against the Registry generation it was
	// taken from, so the connection finishes against the configuration it
	// was accepted under; a reference that resolves to nil is skipped.
	ServerRefs []config.Ref
	RemoteAddr string

	// TempBodyPath names a spill file backing a large request body, if
	// one was staged via SpillBodyTo; cleared and unlinked automatically
	// at the next ResetForNextRequest or Close.
	TempBodyPath string

	tempBody *buffer.Buffer

	// Timer tracks this request's parse/route/handle/write phase
	// durations, logged at DEBUG once the response drains. A fresh
	// Timer starts with every new request, including keep-alive reuse
	// (ResetForNextRequest).
	Timer *timing.Timer
}

// New returns a freshly accepted connection in READING_REQUEST phase.
func New(fd int, refs []config.Ref, remoteAddr string) *Conn {
	t := timing.NewTimer()
	t.StartParse()
	return &Conn{
		Fd:           fd,
		Phase:        ReadingRequest,
		Inbound:      httpmsg.NewByteBuffer(),
		KeepAlive:    true,
		LastActivity: time.Now(),
		ServerRefs:   refs,
		RemoteAddr:   remoteAddr,
		Timer:        t,
	}
}

// Touch records I/O activity, resetting the idle-timeout clock.
func (c *Conn) Touch() {
	c.LastActivity = time.Now()
}

// IdleFor reports how long the connection has been idle.
func (c *Conn) IdleFor() time.Duration {
	return time.Since(c.LastActivity)
}

// SelectServer resolves which ServerConfig governs this connection by
// the request's Host header, falling back to the first-declared
// candidate when none matches.
func (c *Conn) SelectServer() *config.ServerConfig {
	host := ""
	if c.Request != nil {
		host = stripPort(c.Request.Header("Host"))
	}
	candidates := make([]*config.ServerConfig, 0, len(c.ServerRefs))
	for _, ref := range c.ServerRefs {
		if s := ref.Resolve(); s != nil {
			candidates = append(candidates, s)
		}
	}
	return config.SelectByHost(candidates, host)
}

// SpillBodyTo records buf as the disk-backed staging area for this
// request's body. Any previously staged spill is released first.
func (c *Conn) SpillBodyTo(buf *buffer.Buffer) {
	c.clearTempBody()
	c.tempBody = buf
	c.TempBodyPath = buf.Path()
}

// clearTempBody releases and unlinks any staged body-spill file.
func (c *Conn) clearTempBody() {
	if c.tempBody != nil {
		c.tempBody.Close()
		c.tempBody = nil
	}
	c.TempBodyPath = ""
}

// stripPort drops a trailing ":port" from a Host header value.
func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

// SetResponse attaches resp as the connection's outbound response,
// renders its header block, transitions to WRITING_RESPONSE, and
// derives KeepAlive.
func (c *Conn) SetResponse(resp *httpmsg.Response) {
	c.Response = resp
	c.outHeader = resp.HeaderBlock()
	c.pending = nil
	c.headerDone = false
	c.bodyDone = false
	c.Phase = WritingResponse

	wantsKeepAlive := c.Request != nil && c.Request.KeepAlive()
	c.KeepAlive = wantsKeepAlive && resp.StatusCode < 400

	c.Timer.StartWrite()
}

// PendingWrite returns the next slice of response bytes to attempt
// writing to the socket, refilling from the header block or body as the
// previously returned slice is fully drained (tracked via Advance). An
// empty, non-nil-backed return with WriteDone false means the body
// source is momentarily exhausted of buffered bytes (e.g. between
// ReadAt calls on a slow disk) and the caller should retry on the next
// writability event.
func (c *Conn) PendingWrite() []byte {
	c.refill()
	return c.pending
}

// Advance records that n bytes of the slice PendingWrite last returned
// were actually written to the socket. Partial writes leave the
// remainder pending for the next writability event.
func (c *Conn) Advance(n int) {
	if n <= 0 || n > len(c.pending) {
		return
	}
	c.pending = c.pending[n:]
}

// WriteDone reports whether every byte of the response (header block
// plus body) has been handed to the socket.
func (c *Conn) WriteDone() bool {
	return c.headerDone && c.bodyDone && len(c.pending) == 0
}

func (c *Conn) refill() {
	if len(c.pending) > 0 {
		return
	}
	if !c.headerDone {
		c.pending = c.outHeader
		c.headerDone = true
		return
	}
	if c.bodyDone {
		return
	}
	if c.SuppressBody || c.Response == nil {
		c.bodyDone = true
		return
	}
	if c.Response.HasFileSource() {
		buf := make([]byte, 64*1024)
		n, err := c.Response.Source().ReadNext(buf)
		if n > 0 {
			c.pending = buf[:n]
		}
		if err == io.EOF {
			c.bodyDone = true
		}
		return
	}
	c.pending = c.Response.Body()
	c.bodyDone = true
}

// ResetForNextRequest returns the connection to READING_REQUEST for
// keep-alive reuse: the state resets but the socket is retained. Any
// open file-source response body is closed first.
func (c *Conn) ResetForNextRequest() {
	c.closeResponseSource()
	c.clearTempBody()
	c.Request = nil
	c.Response = nil
	c.outHeader = nil
	c.pending = nil
	c.headerDone = false
	c.bodyDone = false
	c.SuppressBody = false
	c.Phase = ReadingRequest
	c.Timer = timing.NewTimer()
	c.Timer.StartParse()
	c.Touch()
}

// Close releases any resource this connection still owns (the response
// file source, if one is open and unconsumed). It does not close the
// socket fd itself; the event loop owns that.
func (c *Conn) Close() {
	c.closeResponseSource()
	c.clearTempBody()
	c.Phase = Closing
}

func (c *Conn) closeResponseSource() {
	if c.Response != nil && c.Response.HasFileSource() {
		c.Response.Source().Close()
	}
}
