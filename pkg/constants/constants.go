// Package constants defines the magic numbers and default values shared
// across the server: timeouts, limits, and filesystem conventions.
package constants

import "time"

// Connection and request timeouts.
const (
	// DefaultIdleTimeout closes a connection idle (no read or write
	// activity) for this long. Also used as the keep-alive timeout
	// between a completed response and the next request.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultClientTimeout bounds total request receipt when a server
	// block does not override client_timeout.
	DefaultClientTimeout = 60 * time.Second

	// CGITimeout is the wall-clock budget given to a CGI child before
	// it is SIGTERM'd and the request fails with 504.
	CGITimeout = 30 * time.Second

	// SessionTTL is the inactivity window after which a session expires.
	SessionTTL = 1800 * time.Second

	// PollTimeout bounds a single readiness-wait iteration of the event
	// loop so idle-timeout scans and signal handling stay responsive.
	PollTimeout = 1 * time.Second
)

// Body and buffer limits.
const (
	// DefaultClientMaxBodySize is used when neither server nor location
	// overrides client_max_body_size.
	DefaultClientMaxBodySize = 1 * 1024 * 1024 // 1MB

	// DefaultBodyMemLimit is the in-memory threshold before a request
	// body spills to disk. CGI output is always disk-backed.
	DefaultBodyMemLimit = 4 * 1024 * 1024 // 4MB

	// UploadChunkSize is the fixed chunk size used when writing
	// uploaded parts to disk.
	UploadChunkSize = 64 * 1024

	// MaxHeaderBytes is the nominal header-block size. ParseRequest does
	// not read it: it bounds an unterminated header block at the body
	// limit plus its own 64 KiB allowance.
	MaxHeaderBytes = 64 * 1024
)

// Process-wide identification and filesystem conventions.
const (
	// ServerSoftware is sent as the CGI SERVER_SOFTWARE variable and as
	// the value of the "server" cookie.
	ServerSoftware = "goserv/1.0"

	// DefaultConfigPath is used when no config path is given on the
	// command line.
	DefaultConfigPath = "config/default.conf"

	// TempFilePrefix names spill files under os.TempDir as
	// /tmp/<prefix>_XXXXXX.
	TempFilePrefix = "goserv"

	// MaxClientsHeadroom is subtracted from the process's
	// file-descriptor limit to decide the admission-control capacity,
	// leaving fds free for listeners, spill files, and CGI pipes.
	MaxClientsHeadroom = 10
)
