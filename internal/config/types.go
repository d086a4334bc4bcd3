// Package config loads the block-structured configuration grammar into
// ServerConfig/LocationConfig values the rest of the server consumes.
// Parsing is line-oriented: `server { ... }` blocks with nested
// `location` and `cgi` blocks, `;` or end-of-line directive terminators,
// and `#` line comments.
package config

import "strconv"

// LocationConfig is an immutable, URL-pattern-scoped override of server
// settings: allowed methods, filesystem root, autoindex behavior, body
// limits, CGI dispatch, and redirects.
type LocationConfig struct {
	// Path is the location's match pattern. A leading "~" marks a
	// suffix pattern; otherwise Path is matched as an exact or
	// longest-prefix URL prefix.
	Path string

	// Methods is the set of allowed HTTP methods. Empty means GET only.
	Methods map[string]bool

	Root              string
	Index             []string
	Autoindex         bool
	ClientMaxBodySize int64
	HasClientMaxBody  bool // whether this location overrides the server default
	CGIPass           string
	RedirectCode      int
	RedirectTarget    string
}

// AllowsMethod reports whether m is in the location's allowed method set.
func (l *LocationConfig) AllowsMethod(m string) bool {
	if len(l.Methods) == 0 {
		return m == "GET"
	}
	return l.Methods[m]
}

// IsSuffixPattern reports whether Path uses the "~suffix" regex form.
func (l *LocationConfig) IsSuffixPattern() bool {
	return len(l.Path) > 0 && l.Path[0] == '~'
}

// ServerConfig is one `server { ... }` block: listening endpoint, virtual
// host names, defaults, error pages, locations, and CGI extension mapping.
// Immutable after Parse returns.
type ServerConfig struct {
	Host              string
	Port              int
	ServerNames       []string
	Root              string
	Index             []string
	ClientTimeoutSec  int
	ClientMaxBodySize int64
	ErrorPages        map[int]string
	Locations         []LocationConfig
	CGIHandlers       map[string]string // extension (with leading '.') -> handler path

	// CookieSecureAttrs enables the HttpOnly/Secure/SameSite=Lax
	// attributes on every Set-Cookie this server emits. Off by default
	// so existing deployments keep their cookie behavior.
	CookieSecureAttrs bool

	// SourcePath is the config file this server block was parsed from,
	// kept for diagnostics and SIGHUP reload logging.
	SourcePath string
}

// NewServerConfig returns a ServerConfig populated with the defaults a
// bare `server {}` block gets.
func NewServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "0.0.0.0",
		Port:              80,
		Root:              "www",
		Index:             []string{"index.html"},
		ClientTimeoutSec:  60,
		ClientMaxBodySize: 1024 * 1024,
		ErrorPages: map[int]string{
			404: "/404.html",
			500: "/500.html",
		},
		CGIHandlers: map[string]string{},
	}
}

// CGIHandlerFor returns the configured handler for a file extension
// (including its leading dot) and whether one is configured.
func (s *ServerConfig) CGIHandlerFor(ext string) (string, bool) {
	h, ok := s.CGIHandlers[ext]
	return h, ok
}

// MatchesHost reports whether name appears in ServerNames. An empty
// ServerNames list matches any host (default server for its endpoint).
func (s *ServerConfig) MatchesHost(name string) bool {
	if len(s.ServerNames) == 0 {
		return true
	}
	for _, n := range s.ServerNames {
		if n == name {
			return true
		}
	}
	return false
}

// Endpoint returns the "host:port" listening address for this server.
func (s *ServerConfig) Endpoint() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
