package config

import (
	"strconv"
	"strings"

	"github.com/webserv/goserv/pkg/errors"
)

// Parse loads one or more `server { ... }` blocks from path into
// ServerConfig values.
func Parse(path string) ([]ServerConfig, error) {
	lx, err := newLexer(path)
	if err != nil {
		return nil, err
	}

	var configs []ServerConfig
	for lx.hasMore() {
		line := lx.current()

		switch {
		case strings.Contains(line, "server"):
			srv := NewServerConfig()
			srv.SourcePath = path
			if err := parseServerBlock(lx, &srv); err != nil {
				return nil, err
			}
			configs = append(configs, srv)
		case line == "cgi {":
			if len(configs) == 0 {
				return nil, errors.NewConfigError("cgi block must be inside or after a server block", nil)
			}
			if err := parseCGIBlock(lx, &configs[len(configs)-1]); err != nil {
				return nil, err
			}
		default:
			return nil, errors.NewConfigError("unexpected directive outside server block at line "+strconv.Itoa(lx.lineNo())+": "+line, nil)
		}
	}

	if len(configs) == 0 {
		return nil, errors.NewConfigError("no server blocks found in "+path, nil)
	}
	return configs, nil
}

func parseServerBlock(lx *lexer, srv *ServerConfig) error {
	line := lx.current()
	if strings.Contains(line, "server") {
		lx.advance()
		if lx.hasMore() && (strings.TrimSpace(lx.current()) == "{" || strings.TrimSpace(lx.current()) == "server {") {
			lx.advance()
		}
	}

	for lx.hasMore() {
		line = lx.current()
		if isBlockEnd(line) {
			lx.advance()
			return nil
		}
		switch {
		case strings.HasPrefix(line, "location"):
			loc, err := parseLocationBlock(lx)
			if err != nil {
				return err
			}
			srv.Locations = append(srv.Locations, loc)
		case strings.HasPrefix(line, "cgi") && strings.Contains(line, "{"):
			if err := parseCGIBlock(lx, srv); err != nil {
				return err
			}
		default:
			if err := parseServerDirective(line, srv); err != nil {
				return err
			}
			lx.advance()
		}
	}
	return errors.NewConfigError("unexpected end of file in server block", nil)
}

func parseServerDirective(line string, srv *ServerConfig) error {
	line = stripTrailingSemicolon(line)
	name, value := splitDirective(line)

	switch name {
	case "host":
		srv.Host = value
	case "port":
		p, err := strconv.Atoi(value)
		if err != nil {
			return errors.NewConfigError("invalid port "+value, err)
		}
		srv.Port = p
	case "server_name":
		srv.ServerNames = strings.Fields(value)
	case "root":
		srv.Root = value
	case "index":
		srv.Index = strings.Fields(value)
	case "client_timeout":
		t, err := strconv.Atoi(value)
		if err != nil {
			return errors.NewConfigError("invalid client_timeout "+value, err)
		}
		srv.ClientTimeoutSec = t
	case "client_max_body_size":
		n, err := parseSize(value)
		if err != nil {
			return err
		}
		srv.ClientMaxBodySize = n
	case "error_page":
		return parseErrorPage(value, srv)
	case "cookie_secure_attrs":
		srv.CookieSecureAttrs = value == "on"
	}
	return nil
}

func parseErrorPage(value string, srv *ServerConfig) error {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return errors.NewConfigError("error_page requires <code> <path>, got "+value, nil)
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return errors.NewConfigError("invalid error_page code "+fields[0], err)
	}
	if srv.ErrorPages == nil {
		srv.ErrorPages = map[int]string{}
	}
	srv.ErrorPages[code] = fields[1]
	return nil
}

func parseLocationBlock(lx *lexer) (LocationConfig, error) {
	loc := LocationConfig{
		Root:      "www",
		Methods:   map[string]bool{"GET": true},
		Autoindex: false,
	}

	header := lx.current()
	fields := strings.Fields(header)
	if len(fields) > 0 && fields[len(fields)-1] == "{" {
		fields = fields[:len(fields)-1]
	}
	// "location ~ .php$" spells the suffix marker and pattern as two
	// tokens; rejoin them so Path carries both.
	switch {
	case len(fields) >= 3 && fields[1] == "~":
		loc.Path = "~" + fields[2]
	case len(fields) >= 2:
		loc.Path = fields[1]
	}
	lx.advance()

	// Skip forward to the opening brace, tolerating "location /x {" on
	// one line or the brace on its own line.
	if !strings.Contains(header, "{") {
		for lx.hasMore() && !strings.Contains(lx.current(), "{") {
			lx.advance()
		}
		if lx.hasMore() {
			lx.advance()
		}
	}

	for lx.hasMore() {
		line := lx.current()
		if isBlockEnd(line) {
			lx.advance()
			return loc, nil
		}

		name, value := splitDirective(stripTrailingSemicolon(line))
		switch name {
		case "root":
			loc.Root = value
		case "index":
			loc.Index = strings.Fields(value)
		case "autoindex":
			loc.Autoindex = value == "on"
		case "client_max_body_size":
			n, err := parseSize(value)
			if err != nil {
				return loc, err
			}
			loc.ClientMaxBodySize = n
			loc.HasClientMaxBody = true
		case "allowed_methods":
			loc.Methods = map[string]bool{}
			for _, m := range strings.Fields(value) {
				loc.Methods[strings.ToUpper(m)] = true
			}
		case "cgi_pass":
			loc.CGIPass = value
		case "return":
			if err := parseReturn(value, &loc); err != nil {
				return loc, err
			}
		}
		lx.advance()
	}
	return loc, errors.NewConfigError("unexpected end of file in location block", nil)
}

func parseReturn(value string, loc *LocationConfig) error {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return errors.NewConfigError("return requires <code> <url>, got "+value, nil)
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil || (code != 301 && code != 302) {
		return errors.NewConfigError("return only supports 301/302, got "+fields[0], err)
	}
	loc.RedirectCode = code
	loc.RedirectTarget = stripTrailingSemicolon(fields[1])
	return nil
}

func parseCGIBlock(lx *lexer, srv *ServerConfig) error {
	lx.advance()
	if srv.CGIHandlers == nil {
		srv.CGIHandlers = map[string]string{}
	}
	for lx.hasMore() {
		line := lx.current()
		if isBlockEnd(line) {
			lx.advance()
			return nil
		}
		ext, handler := splitDirective(line)
		if ext == "" {
			return errors.NewConfigError("empty cgi extension directive", nil)
		}
		if ext[0] != '.' {
			ext = "." + ext
		}
		srv.CGIHandlers[ext] = stripTrailingSemicolon(handler)
		lx.advance()
	}
	return errors.NewConfigError("unexpected end of file in cgi block", nil)
}
