// Package route resolves a request path against a server's configured
// locations.
package route

import (
	"strings"

	"github.com/webserv/goserv/internal/config"
	goserverrors "github.com/webserv/goserv/pkg/errors"
)

// Resolve picks the location within server that governs path, in
// priority order: suffix pattern, then exact, then longest-prefix.
// It returns a *goserverrors.Error (ErrorTypeNotFound, 404) if no location
// matches.
func Resolve(server *config.ServerConfig, path string) (*config.LocationConfig, error) {
	if loc := matchSuffix(server.Locations, path); loc != nil {
		return loc, nil
	}
	if loc := matchExact(server.Locations, path); loc != nil {
		return loc, nil
	}
	if loc := matchLongestPrefix(server.Locations, path); loc != nil {
		return loc, nil
	}
	return nil, goserverrors.NewNotFoundError(path)
}

// matchSuffix returns the first location whose path begins with "~"
// whose suffix pattern (with any trailing "$" anchor stripped) is a
// suffix of path.
func matchSuffix(locations []config.LocationConfig, path string) *config.LocationConfig {
	for i := range locations {
		loc := &locations[i]
		if !loc.IsSuffixPattern() {
			continue
		}
		pattern := strings.TrimPrefix(loc.Path, "~")
		pattern = strings.TrimSpace(pattern)
		pattern = strings.TrimSuffix(pattern, "$")
		if pattern != "" && strings.HasSuffix(path, pattern) {
			return loc
		}
	}
	return nil
}

// matchExact returns the first location whose path equals path exactly.
func matchExact(locations []config.LocationConfig, path string) *config.LocationConfig {
	for i := range locations {
		loc := &locations[i]
		if loc.IsSuffixPattern() {
			continue
		}
		if loc.Path == path {
			return loc
		}
	}
	return nil
}

// matchLongestPrefix returns the location with the longest Path that is
// a proper prefix of path, among non-suffix locations.
func matchLongestPrefix(locations []config.LocationConfig, path string) *config.LocationConfig {
	var best *config.LocationConfig
	bestLen := -1
	for i := range locations {
		loc := &locations[i]
		if loc.IsSuffixPattern() {
			continue
		}
		if loc.Path == "/" {
			if bestLen < 1 {
				best = loc
				bestLen = 1
			}
			continue
		}
		if strings.HasPrefix(path, loc.Path) && len(loc.Path) > bestLen {
			best = loc
			bestLen = len(loc.Path)
		}
	}
	return best
}

// CheckMethod enforces the location's allowed-method set after
// resolution. Returns a *goserverrors.Error (ErrorTypePolicy, 405)
// when disallowed.
func CheckMethod(loc *config.LocationConfig, method string) error {
	if loc.AllowsMethod(method) {
		return nil
	}
	return goserverrors.NewMethodNotAllowedError(method, loc.Path)
}
