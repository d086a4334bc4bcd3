package handler

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/webserv/goserv/internal/httpmsg"
	"github.com/webserv/goserv/pkg/buffer"
	"github.com/webserv/goserv/pkg/constants"
	goserverrors "github.com/webserv/goserv/pkg/errors"
)

// CgiEngine forks a CGI/1.1 handler, feeds it the request body, drains
// its output under a wall-clock timeout, and parses the CGI header
// block into a Response. Spawning goes through os/exec; pipe draining
// and child reaping use golang.org/x/sys/unix directly so the drain
// loop never blocks.
type CgiEngine struct {
	// Timeout bounds wall-clock time from process start to forced
	// termination. Defaults to constants.CGITimeout.
	Timeout time.Duration
}

// NewCgiEngine returns a CgiEngine with the default 30s timeout.
func NewCgiEngine() *CgiEngine {
	return &CgiEngine{Timeout: constants.CGITimeout}
}

// ExecParams bundles everything Execute needs to build a CGI
// environment and dispatch.
type ExecParams struct {
	Request        *httpmsg.Request
	Handler        string // CGI executable path
	ScriptPath     string // resolved filesystem path to the script
	ServerName     string
	ServerPort     int
	ServerSoftware string
	RemoteAddr     string
	WorkDir        string // cwd for the child; empty means inherit

	// BodyPath names an already-staged spill file backing Request.Body
	// (set once a large body crosses constants.DefaultBodyMemLimit);
	// when non-empty, Execute opens it
	// directly as the child's stdin instead of spilling a second copy.
	BodyPath string
}

// Execute runs the CGI handler described by p and returns the resulting
// HttpResponse, or a structured error (never both).
func (e *CgiEngine) Execute(p ExecParams) (*httpmsg.Response, error) {
	bodyFile, ownsBodyFile, err := openOrSpillBody(p)
	if err != nil {
		return nil, goserverrors.NewCGIError("spill-body", "failed to stage request body", err)
	}
	defer func() {
		bodyFile.Close()
		if ownsBodyFile {
			os.Remove(bodyFile.Name())
		}
	}()

	cmd := exec.Command(p.Handler, p.ScriptPath)
	cmd.Env = buildEnv(p)
	if p.WorkDir != "" {
		cmd.Dir = p.WorkDir
	}
	cmd.Stdin = bodyFile

	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		return nil, goserverrors.NewCGIError("pipe", "failed to create output pipe", err)
	}
	growPipeBuffer(pipeW)
	cmd.Stdout = pipeW
	cmd.Stderr = pipeW

	if err := cmd.Start(); err != nil {
		pipeR.Close()
		pipeW.Close()
		return nil, goserverrors.NewCGIError("fork", "failed to start CGI handler", err)
	}
	pipeW.Close() // parent holds only the read end now

	if err := unix.SetNonblock(int(pipeR.Fd()), true); err != nil {
		pipeR.Close()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return nil, goserverrors.NewCGIError("setnonblock", "failed to set pipe non-blocking", err)
	}

	outSpill, err := buffer.SpillTo("", constants.TempFilePrefix+"_cgi_out_*")
	if err != nil {
		pipeR.Close()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return nil, goserverrors.NewCGIError("spill-output", "failed to create output spill file", err)
	}
	defer outSpill.Close()

	exitCode, timedOut, drainErr := drainUntilDone(cmd, pipeR, outSpill, e.Timeout)
	pipeR.Close()

	if timedOut {
		return nil, goserverrors.NewTimeoutError("cgi-exec", e.Timeout)
	}
	if drainErr != nil {
		return nil, goserverrors.NewCGIError("drain", "failed reading CGI output", drainErr)
	}
	if exitCode != 0 {
		return nil, goserverrors.NewCGIError("exit", fmt.Sprintf("CGI handler exited with status %d", exitCode), nil)
	}

	return parseCGIOutput(outSpill)
}

// growPipeBuffer best-effort bumps the output pipe's buffer to 1 MiB
// via F_SETPIPE_SZ. A failure (unsupported platform, insufficient
// privilege) is not fatal; the default pipe size still works, just with
// more round-trips through drainUntilDone's poll loop.
func growPipeBuffer(pipeW *os.File) {
	_, _ = unix.FcntlInt(pipeW.Fd(), unix.F_SETPIPE_SZ, 1<<20)
}

// openOrSpillBody opens p.BodyPath read-only when the connection already
// staged the request body on disk, avoiding a second copy for a large
// payload; otherwise it falls back to spillBody. The bool result reports
// whether the caller owns (and must remove) the returned file.
func openOrSpillBody(p ExecParams) (*os.File, bool, error) {
	if p.BodyPath != "" {
		f, err := os.Open(p.BodyPath)
		if err != nil {
			return nil, false, err
		}
		return f, false, nil
	}
	f, err := spillBody(p.Request.Body)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// spillBody writes body to a fresh temp file and rewinds it.
func spillBody(body []byte) (*os.File, error) {
	f, err := os.CreateTemp("", constants.TempFilePrefix+"_cgi_in_*")
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}

// drainUntilDone polls the CGI output pipe non-blockingly, copying
// bytes into outSpill, while separately polling for child exit via
// WNOHANG. It returns the child's exit code, whether the wall-clock
// timeout fired, and any I/O error.
func drainUntilDone(cmd *exec.Cmd, pipeR *os.File, outSpill *buffer.Buffer, timeout time.Duration) (exitCode int, timedOut bool, err error) {
	deadline := time.Now().Add(timeout)
	fd := int(pipeR.Fd())
	readBuf := make([]byte, 64*1024)

	var reaped bool
	var eofSeen bool

	for {
		if time.Now().After(deadline) {
			_ = cmd.Process.Signal(syscall.SIGTERM)
			// Give the child a brief grace period, then hard-kill and reap
			// to avoid leaving a zombie.
			time.Sleep(50 * time.Millisecond)
			_ = cmd.Process.Kill()
			_, _ = unix.Wait4(cmd.Process.Pid, nil, 0, nil)
			return 0, true, nil
		}

		if !reaped {
			var ws unix.WaitStatus
			wpid, werr := unix.Wait4(cmd.Process.Pid, &ws, unix.WNOHANG, nil)
			if werr == nil && wpid == cmd.Process.Pid {
				reaped = true
				exitCode = ws.ExitStatus()
			}
		}

		pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, perr := unix.Poll(pollFds, 100)
		if perr != nil && perr != unix.EINTR {
			return 0, false, perr
		}
		if n > 0 && pollFds[0].Revents&(unix.POLLIN|unix.POLLHUP) != 0 {
			for {
				rn, rerr := unix.Read(fd, readBuf)
				if rn > 0 {
					if _, werr := outSpill.Write(readBuf[:rn]); werr != nil {
						return 0, false, werr
					}
					continue
				}
				if rn == 0 {
					eofSeen = true
					break
				}
				if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
					break
				}
				if rerr == unix.EINTR {
					continue
				}
				return 0, false, rerr
			}
		}

		if reaped && (eofSeen || n == 0) {
			// Either EOF was observed on the pipe, or the child has
			// already exited and there is no further readiness to wait
			// for; either way nothing more will arrive.
			return exitCode, false, nil
		}
	}
}

// parseCGIOutput scans outSpill for the header/body boundary
// ("\r\n\r\n" or "\n\n"), parses each header line (a Status:
// pseudo-header overrides the HTTP status; others are forwarded), and
// attaches the remainder as a streaming body.
func parseCGIOutput(spill *buffer.Buffer) (*httpmsg.Response, error) {
	raw, err := os.ReadFile(spill.Path())
	if err != nil {
		return nil, goserverrors.NewCGIError("read-spill", "failed to reread CGI output", err)
	}

	headerEnd, sepLen := findHeaderTerminator(raw)
	if headerEnd < 0 {
		return nil, goserverrors.NewCGIError("parse-headers", "missing CGI header terminator", nil)
	}

	resp := httpmsg.NewResponse(200)
	for _, line := range strings.Split(string(raw[:headerEnd]), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Status:") {
			rest := strings.TrimSpace(strings.TrimPrefix(line, "Status:"))
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				if code, err := strconv.Atoi(fields[0]); err == nil && code >= 100 && code < 600 {
					resp.StatusCode = code
				}
			}
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		resp.AddHeader(name, value)
	}

	bodyStart := headerEnd + sepLen
	bodyBytes := raw[bodyStart:]

	f, err := os.CreateTemp("", constants.TempFilePrefix+"_cgi_body_*")
	if err != nil {
		return nil, goserverrors.NewCGIError("stage-body", "failed to stage CGI response body", err)
	}
	os.Remove(f.Name()) // unlink immediately; fd stays valid until Close
	if _, err := f.Write(bodyBytes); err != nil {
		f.Close()
		return nil, goserverrors.NewCGIError("stage-body", "failed to write CGI response body", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, goserverrors.NewCGIError("stage-body", "failed to rewind CGI response body", err)
	}

	resp.AttachFile(httpmsg.NewFileSource(f, int64(len(bodyBytes))))
	return resp, nil
}

// findHeaderTerminator returns the offset of the first "\r\n\r\n" or
// "\n\n" in raw and the terminator's length, or (-1, 0) if neither is
// present.
func findHeaderTerminator(raw []byte) (int, int) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return i, 4
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return i, 2
	}
	return -1, 0
}

// buildEnv constructs the CGI/1.1 environment, plus HTTP_<HEADER>
// entries for every request header.
func buildEnv(p ExecParams) []string {
	req := p.Request
	env := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL=HTTP/1.1",
		"SERVER_SOFTWARE=" + p.ServerSoftware,
		"SERVER_NAME=" + p.ServerName,
		"SERVER_PORT=" + strconv.Itoa(p.ServerPort),
		"REQUEST_METHOD=" + req.Method,
		"REQUEST_URI=" + requestURI(req),
		"SCRIPT_NAME=" + req.Path,
		"SCRIPT_FILENAME=" + p.ScriptPath,
		"PATH_INFO=" + req.Path,
		"PATH_TRANSLATED=" + p.ScriptPath,
		"QUERY_STRING=" + req.QueryString,
		"REMOTE_ADDR=" + p.RemoteAddr,
		"REDIRECT_STATUS=200",
	}

	if req.Method == "POST" {
		env = append(env, "CONTENT_LENGTH="+req.Header("Content-Length"))
		if ct := req.Header("Content-Type"); ct != "" {
			env = append(env, "CONTENT_TYPE="+ct)
		}
	}

	for _, name := range req.HeaderNames() {
		envName := "HTTP_" + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
		env = append(env, envName+"="+req.Header(name))
	}

	return env
}

func requestURI(req *httpmsg.Request) string {
	if req.QueryString == "" {
		return req.Path
	}
	return req.Path + "?" + req.QueryString
}
