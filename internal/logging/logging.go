// Package logging constructs the single *logrus.Logger that cmd/webserv
// and the event loop log through: built once in cmd/webserv and passed
// to eventloop.NewLoop, never a package-level var. Handlers, the CGI
// engine and the session store take no logger and do not log.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Options configures the logger cmd/webserv builds from CLI flags or
// config defaults.
type Options struct {
	// Level is one of logrus's level names ("debug", "info", "warn",
	// "error"); an unrecognized or empty value falls back to "info".
	Level string

	// JSON selects the JSON formatter; otherwise a human-readable text
	// formatter with full timestamps is used.
	JSON bool

	// Output is where log lines are written; nil defaults to os.Stdout.
	Output io.Writer

	// FilePath, when set, appends log lines to the named file instead of
	// Output, creating the file's directory on demand. A file that
	// cannot be opened falls back to Output/stdout with a warning.
	FilePath string
}

// New returns a configured *logrus.Logger. Levels used across the
// server: ERROR for config/bind failures and a failed reload, WARN for
// admission-control rejection, accept failures and body-spill failures,
// INFO for listening endpoints, reloads, accepted connections, idle
// timeouts and connections abandoned on I/O errors, DEBUG for
// per-request timing. CGI runs and timeouts are not logged.
func New(opts Options) *logrus.Logger {
	log := logrus.New()

	switch {
	case opts.FilePath != "":
		if f, err := openLogFile(opts.FilePath); err == nil {
			log.SetOutput(f)
		} else {
			log.SetOutput(os.Stdout)
			defer log.WithError(err).Warn("cannot open log file, logging to stdout")
		}
	case opts.Output != nil:
		log.SetOutput(opts.Output)
	default:
		log.SetOutput(os.Stdout)
	}

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

// openLogFile opens path for appending, creating its directory on
// demand.
func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// ForConn returns a *logrus.Entry tagged with a connection id, so log
// lines from one connection can be correlated. The event loop does not
// call it; it tags its own lines with an "fd" field instead.
func ForConn(log *logrus.Logger, connID int) *logrus.Entry {
	return log.WithField("conn", connID)
}
