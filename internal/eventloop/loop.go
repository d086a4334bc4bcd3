// Package eventloop implements the single-threaded, readiness-driven
// connection multiplexer: it owns every listening and client socket
// across all configured virtual hosts, enforces non-blocking discipline
// on every I/O, and drives each connection's fsm.Conn through
// READING_REQUEST -> PROCESSING -> WRITING_RESPONSE -> IDLE|CLOSING.
// Sockets are raw fds polled via golang.org/x/sys/unix.Poll rather than
// net.Listener/net.Conn, which would hide readiness behind goroutines.
package eventloop

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/fsm"
	"github.com/webserv/goserv/internal/handler"
	"github.com/webserv/goserv/internal/httpmsg"
	"github.com/webserv/goserv/internal/route"
	"github.com/webserv/goserv/internal/session"
	"github.com/webserv/goserv/pkg/buffer"
	"github.com/webserv/goserv/pkg/constants"
	goserverrors "github.com/webserv/goserv/pkg/errors"
)

// Loop is the single-threaded event loop: one process-wide instance
// owning every listening and client socket, driving fsm.Conn state
// machines via non-blocking poll(2).
type Loop struct {
	Registry    *config.Registry
	Sessions    *session.Store
	Log         *logrus.Logger
	Static      *handler.StaticFileHandler
	Post        *handler.PostDispatch
	Capacity    int
	PollTimeout time.Duration
	ConfigPath  string

	Stats Stats

	listeners       map[int]*Listener
	listenerServers map[int][]config.Ref
	conns           map[int]*fsm.Conn

	shuttingDown    int32
	reloadRequested int32
}

// NewLoop builds a Loop over every distinct "host:port" endpoint named
// in registry, grouping servers that share an endpoint for virtual-host
// selection by Host header, and binds a non-blocking listening socket
// for each.
func NewLoop(registry *config.Registry, sessions *session.Store, log *logrus.Logger, configPath string) (*Loop, error) {
	l := &Loop{
		Registry:        registry,
		Sessions:        sessions,
		Log:             log,
		Static:          handler.NewStaticFileHandler(),
		Post:            handler.NewPostDispatch(),
		Capacity:        admissionCapacity(),
		PollTimeout:     constants.PollTimeout,
		ConfigPath:      configPath,
		listeners:       map[int]*Listener{},
		listenerServers: map[int][]config.Ref{},
		conns:           map[int]*fsm.Conn{},
	}

	if err := l.bindListeners(registry); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loop) bindListeners(registry *config.Registry) error {
	listeners := map[int]*Listener{}
	listenerServers := map[int][]config.Ref{}

	seen := map[string]bool{}
	for _, srv := range registry.All() {
		ep := srv.Endpoint()
		if seen[ep] {
			continue
		}
		seen[ep] = true

		ln, err := newListener(ep)
		if err != nil {
			for _, existing := range listeners {
				existing.Close()
			}
			return err
		}
		listeners[ln.Fd] = ln
		listenerServers[ln.Fd] = registry.RefsForEndpoint(ep)
		l.Log.WithField("endpoint", ep).Info("listening")
	}

	l.listeners = listeners
	l.listenerServers = listenerServers
	return nil
}

// admissionCapacity derives the connection-count ceiling from the
// process's file-descriptor rlimit, leaving headroom for listeners,
// spill files, and CGI pipes.
func admissionCapacity() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err == nil && rlim.Cur > uint64(constants.MaxClientsHeadroom) {
		return int(rlim.Cur) - constants.MaxClientsHeadroom
	}
	return 1024 - constants.MaxClientsHeadroom
}

// RequestShutdown sets the shutdown flag the loop polls once per
// iteration. Safe to call from a signal-handling goroutine.
func (l *Loop) RequestShutdown() {
	atomic.StoreInt32(&l.shuttingDown, 1)
}

func (l *Loop) shutdownRequested() bool {
	return atomic.LoadInt32(&l.shuttingDown) == 1
}

// RequestReload sets the reload flag, consumed at the top of the next
// loop iteration so the actual re-bind happens on the loop's own
// goroutine instead of racing with a signal handler.
func (l *Loop) RequestReload() {
	atomic.StoreInt32(&l.reloadRequested, 1)
}

// Reload re-parses ConfigPath and, on success, tears down and rebinds
// every listening socket against the new configuration. A parse failure
// leaves the running configuration and listeners intact; a bind failure
// rebinds the running configuration's endpoints.
func (l *Loop) Reload() error {
	servers, err := config.Parse(l.ConfigPath)
	if err != nil {
		return goserverrors.NewConfigError("reload failed, keeping current configuration", err)
	}
	registry := config.NewRegistry(servers)

	// The old sockets must be closed first: a port still held by a
	// listening socket cannot be bound again.
	for _, ln := range l.listeners {
		ln.Close()
	}
	if err := l.bindListeners(registry); err != nil {
		if rerr := l.bindListeners(l.Registry); rerr != nil {
			l.listeners = map[int]*Listener{}
			l.listenerServers = map[int][]config.Ref{}
		}
		return err
	}

	// In-flight connections keep running against the config.Ref values
	// they already captured from the prior Registry generation; only new
	// connections see the reloaded one.
	l.Registry = registry
	l.Log.WithField("path", l.ConfigPath).Info("configuration reloaded")
	return nil
}

// Run drives the loop until shutdown is requested, then closes every
// socket and returns.
func (l *Loop) Run() error {
	defer l.closeListeners()
	defer l.closeAllConns()

	for !l.shutdownRequested() {
		if atomic.CompareAndSwapInt32(&l.reloadRequested, 1, 0) {
			if err := l.Reload(); err != nil {
				l.Log.WithError(err).Error("configuration reload failed")
			}
		}
		if err := l.iterate(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) closeListeners() {
	for _, ln := range l.listeners {
		ln.Close()
	}
}

func (l *Loop) closeAllConns() {
	for fd, c := range l.conns {
		c.Close()
		unix.Close(fd)
		delete(l.conns, fd)
	}
}

// iterate runs one readiness-wait cycle: poll, service ready sockets,
// scan idle timeouts.
func (l *Loop) iterate() error {
	fds := l.buildPollSet()

	n, err := unix.Poll(fds, int(l.PollTimeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return goserverrors.NewIOError("poll", err)
	}

	if n > 0 {
		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			if ln, ok := l.listeners[int(pfd.Fd)]; ok {
				l.acceptOne(ln)
				continue
			}
			l.serviceConn(int(pfd.Fd), pfd.Revents)
		}
	}

	l.scanIdleTimeouts()
	return nil
}

func (l *Loop) buildPollSet() []unix.PollFd {
	fds := make([]unix.PollFd, 0, len(l.listeners)+len(l.conns))
	for fd := range l.listeners {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	for fd, c := range l.conns {
		var events int16
		switch c.Phase {
		case fsm.ReadingRequest:
			events = unix.POLLIN
		case fsm.WritingResponse:
			events = unix.POLLOUT
		default:
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	return fds
}

func (l *Loop) acceptOne(ln *Listener) {
	nfd, sa, err := unix.Accept4(ln.Fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			l.Log.WithError(err).Warn("accept failed")
		}
		return
	}

	if len(l.conns) >= l.Capacity {
		unix.Close(nfd)
		l.Stats.RejectedTotal.Add(1)
		l.Log.WithField("endpoint", ln.Endpoint).Warn("connection rejected: at capacity")
		return
	}

	remote := remoteAddrString(sa)
	c := fsm.New(nfd, l.listenerServers[ln.Fd], remote)
	l.conns[nfd] = c
	l.Stats.AcceptedTotal.Add(1)
	l.Stats.Active.Add(1)
	l.Log.WithFields(logrus.Fields{"fd": nfd, "remote": remote}).Info("connection accepted")
}

func (l *Loop) serviceConn(fd int, revents int16) {
	c, ok := l.conns[fd]
	if !ok {
		return
	}

	if revents&(unix.POLLHUP|unix.POLLERR) != 0 && revents&(unix.POLLIN|unix.POLLOUT) == 0 {
		l.closeConn(fd, c)
		return
	}

	switch c.Phase {
	case fsm.ReadingRequest:
		l.handleReadable(fd, c)
	case fsm.WritingResponse:
		l.handleWritable(fd, c)
	}
}

func (l *Loop) handleReadable(fd int, c *fsm.Conn) {
	buf := make([]byte, 64*1024)
	n, err := unix.Read(fd, buf)
	if n > 0 {
		c.Inbound.Append(buf[:n])
		c.Touch()
	}
	if n == 0 && err == nil {
		// Peer EOF.
		l.closeConn(fd, c)
		return
	}
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			// Transient; retry at next readiness.
		} else {
			l.Log.WithError(err).WithField("fd", fd).Info("read error, abandoning connection")
			l.closeConn(fd, c)
			return
		}
	}

	l.tryFrame(fd, c)
}

// tryFrame attempts to complete request framing from whatever bytes
// c.Inbound holds. A generous frame-time body limit
// (the widest of any candidate server/location) avoids needing the
// matched virtual host before the Host header itself has been parsed;
// process re-checks the precise per-location limit once a location is
// resolved.
func (l *Loop) tryFrame(fd int, c *fsm.Conn) {
	limit := frameLimit(resolveRefs(c.ServerRefs))

	status, req, consumed, err := httpmsg.ParseRequest(c.Inbound.Bytes(), limit)
	switch status {
	case httpmsg.NeedMore:
		return
	case httpmsg.Malformed:
		c.Timer.EndParse()
		server := config.SelectByHost(resolveRefs(c.ServerRefs), "")
		resp := handler.ErrorPage(goserverrors.StatusCode(err), server)
		c.Request = nil
		c.SetResponse(resp)
	case httpmsg.Complete:
		c.Timer.EndParse()
		c.Inbound.Consume(consumed)
		c.Request = req
		l.maybeSpillBody(c)
		c.Phase = fsm.Processing
		l.process(c)
	}
}

// maybeSpillBody stages c.Request.Body to a disk-backed spill file once
// it exceeds constants.DefaultBodyMemLimit. CGI dispatch reuses the staged file as its child's stdin directly instead
// of writing a second copy; a spill failure is logged and otherwise
// ignored, since the body is still available from memory either way.
func (l *Loop) maybeSpillBody(c *fsm.Conn) {
	body := c.Request.Body
	if int64(len(body)) <= constants.DefaultBodyMemLimit {
		return
	}
	buf, err := buffer.SpillTo("", constants.TempFilePrefix+"_body_*")
	if err != nil {
		l.Log.WithError(err).Warn("failed to spill large request body to disk")
		return
	}
	if _, err := buf.Write(body); err != nil {
		l.Log.WithError(err).Warn("failed to write spilled request body")
		buf.Close()
		return
	}
	c.SpillBodyTo(buf)
}

// resolveRefs dereferences a connection's candidate server refs, dropping
// any that resolve to nil (an index outside its Registry). A SIGHUP
// reload does not make a ref resolve to nil: each ref keeps resolving
// against the Registry generation it was taken from.
func resolveRefs(refs []config.Ref) []*config.ServerConfig {
	out := make([]*config.ServerConfig, 0, len(refs))
	for _, ref := range refs {
		if s := ref.Resolve(); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func frameLimit(candidates []*config.ServerConfig) int64 {
	if len(candidates) == 0 {
		return int64(constants.DefaultClientMaxBodySize)
	}
	var limit int64
	for _, s := range candidates {
		if s.ClientMaxBodySize > limit {
			limit = s.ClientMaxBodySize
		}
		for _, loc := range s.Locations {
			if loc.HasClientMaxBody && loc.ClientMaxBodySize > limit {
				limit = loc.ClientMaxBodySize
			}
		}
	}
	return limit
}

// process runs the handler pipeline synchronously once a request has
// finished framing. Handlers only open fds; actual data moves during
// WRITING_RESPONSE as the socket signals writability.
func (l *Loop) process(c *fsm.Conn) {
	req := c.Request
	server := c.SelectServer()
	if server == nil {
		l.finish(c, handler.ErrorPage(500, nil))
		return
	}

	c.Timer.StartRoute()
	loc, err := route.Resolve(server, req.Path)
	if err == nil {
		err = route.CheckMethod(loc, req.Method)
	}
	c.Timer.EndRoute()
	if err != nil {
		l.finish(c, handler.ErrorPage(goserverrors.StatusCode(err), server))
		return
	}

	c.Timer.StartHandle()
	if loc.RedirectTarget != "" {
		resp := httpmsg.NewResponse(loc.RedirectCode)
		resp.AddHeader("Location", loc.RedirectTarget)
		l.finish(c, resp)
		return
	}

	limit := server.ClientMaxBodySize
	if loc.HasClientMaxBody {
		limit = loc.ClientMaxBodySize
	}
	if int64(len(req.Body)) > limit {
		l.finish(c, handler.ErrorPage(413, server))
		return
	}

	fsPath, err := l.Static.ResolvePath(req, loc)
	if err != nil {
		l.finish(c, handler.ErrorPage(goserverrors.StatusCode(err), server))
		return
	}

	cgiParams := handler.CGIParams{
		ScriptPath:     fsPath,
		ServerName:     virtualHostName(server),
		ServerPort:     server.Port,
		ServerSoftware: constants.ServerSoftware,
		RemoteAddr:     c.RemoteAddr,
		BodyPath:       c.TempBodyPath,
	}

	var resp *httpmsg.Response
	switch {
	case loc.CGIPass != "" && (req.Method == "GET" || req.Method == "POST" || req.Method == "HEAD"):
		// A cgi_pass location sends everything to its handler; the
		// extension table never applies here.
		resp, err = l.Post.CGI.Execute(handler.ExecParams{
			Request:        req,
			Handler:        loc.CGIPass,
			ScriptPath:     cgiParams.ScriptPath,
			ServerName:     cgiParams.ServerName,
			ServerPort:     cgiParams.ServerPort,
			ServerSoftware: cgiParams.ServerSoftware,
			RemoteAddr:     cgiParams.RemoteAddr,
			BodyPath:       cgiParams.BodyPath,
		})
		if err == nil && req.Method == "HEAD" {
			c.SuppressBody = true
		}
	default:
		resp, err = l.dispatchByMethod(c, req, loc, server, fsPath, cgiParams)
	}

	if err != nil {
		l.finish(c, handler.ErrorPage(goserverrors.StatusCode(err), server))
		return
	}
	l.finish(c, resp)
}

func (l *Loop) dispatchByMethod(c *fsm.Conn, req *httpmsg.Request, loc *config.LocationConfig, server *config.ServerConfig, fsPath string, cgiParams handler.CGIParams) (*httpmsg.Response, error) {
	var resp *httpmsg.Response
	var err error
	switch req.Method {
	case "GET", "HEAD":
		resp, err = l.Static.Serve(fsPath, req.Path, loc)
		if err == nil && req.Method == "HEAD" {
			c.SuppressBody = true
		}
	case "DELETE":
		resp, err = l.Static.Delete(fsPath)
	case "PUT":
		resp = handler.HandlePut()
	case "POST":
		resp, err = l.Post.Handle(req, loc, server, fsPath, cgiParams)
	default:
		err = goserverrors.NewPolicyError("dispatch", "unsupported method", req.Method)
	}
	return resp, err
}

// virtualHostName returns the matched server's primary name for the CGI
// SERVER_NAME variable.
func virtualHostName(s *config.ServerConfig) string {
	if len(s.ServerNames) > 0 {
		return s.ServerNames[0]
	}
	return s.Host
}

// finish attaches resp as c's outbound response and transitions to
// WRITING_RESPONSE. Every exit path out of process (errors as well as a
// handler's successful response) calls finish exactly once, so EndHandle
// here safely closes the "handler" timing phase regardless of which
// branch produced resp; it is a no-op in the timing breakdown if
// StartHandle was never reached (an error resolved before dispatch).
func (l *Loop) finish(c *fsm.Conn, resp *httpmsg.Response) {
	c.Timer.EndHandle()
	l.decorateCookies(c, resp)
	c.SetResponse(resp)
}

func (l *Loop) handleWritable(fd int, c *fsm.Conn) {
	buf := c.PendingWrite()
	if len(buf) == 0 {
		if c.WriteDone() {
			l.finishWrite(fd, c)
		}
		return
	}

	n, err := unix.Write(fd, buf)
	if n > 0 {
		c.Advance(n)
		c.Touch()
		l.Stats.BytesServed.Add(uint64(n))
	}
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return
		}
		// ECONNRESET, EPIPE, EBADF, or peer closed mid-response: abandon
		// the connection, logged at INFO only.
		l.Log.WithError(err).WithField("fd", fd).Info("write error, abandoning connection")
		l.closeConn(fd, c)
		return
	}

	if c.WriteDone() {
		l.finishWrite(fd, c)
	}
}

func (l *Loop) finishWrite(fd int, c *fsm.Conn) {
	c.Timer.EndWrite()
	l.Log.WithField("fd", fd).WithField("timing", c.Timer.Metrics()).Debug("request complete")

	if !c.KeepAlive {
		l.closeConn(fd, c)
		return
	}
	c.ResetForNextRequest()
}

func (l *Loop) closeConn(fd int, c *fsm.Conn) {
	c.Close()
	unix.Close(fd)
	delete(l.conns, fd)
	l.Stats.Active.Add(-1)
}

func (l *Loop) scanIdleTimeouts() {
	for fd, c := range l.conns {
		if c.IdleFor() > l.connTimeout(c) {
			l.Log.WithField("fd", fd).Info("idle timeout, closing connection")
			l.closeConn(fd, c)
		}
	}
}

// connTimeout returns c's idle allowance: the governing server's
// client_timeout while a request is still being received, the fixed
// idle/keep-alive timeout otherwise.
func (l *Loop) connTimeout(c *fsm.Conn) time.Duration {
	if c.Phase == fsm.ReadingRequest {
		if s := c.SelectServer(); s != nil && s.ClientTimeoutSec > 0 {
			return time.Duration(s.ClientTimeoutSec) * time.Second
		}
		return constants.DefaultClientTimeout
	}
	return constants.DefaultIdleTimeout
}
