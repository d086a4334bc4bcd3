package route

import (
	"testing"

	"github.com/webserv/goserv/internal/config"
	goserverrors "github.com/webserv/goserv/pkg/errors"
)

func server(locs ...config.LocationConfig) *config.ServerConfig {
	return &config.ServerConfig{Locations: locs}
}

func TestResolveExactMatch(t *testing.T) {
	s := server(
		config.LocationConfig{Path: "/"},
		config.LocationConfig{Path: "/api"},
	)
	loc, err := Resolve(s, "/api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Path != "/api" {
		t.Fatalf("got %q, want /api", loc.Path)
	}
}

func TestResolveLongestPrefix(t *testing.T) {
	s := server(
		config.LocationConfig{Path: "/"},
		config.LocationConfig{Path: "/api"},
		config.LocationConfig{Path: "/api/v2"},
	)
	loc, err := Resolve(s, "/api/v2/users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Path != "/api/v2" {
		t.Fatalf("got %q, want /api/v2 (longest prefix)", loc.Path)
	}
}

func TestResolveSuffixBeatsPrefix(t *testing.T) {
	s := server(
		config.LocationConfig{Path: "/"},
		config.LocationConfig{Path: "~.php$", CGIPass: "/usr/bin/php-cgi"},
	)
	loc, err := Resolve(s, "/scripts/index.php")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.CGIPass != "/usr/bin/php-cgi" {
		t.Fatalf("expected suffix-regex location to win, got %+v", loc)
	}
}

func TestResolveNoMatchIs404(t *testing.T) {
	s := server(config.LocationConfig{Path: "/api"})
	_, err := Resolve(s, "/other")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if goserverrors.StatusCode(err) != 404 {
		t.Fatalf("status = %d, want 404", goserverrors.StatusCode(err))
	}
}

func TestResolveRootFallback(t *testing.T) {
	s := server(
		config.LocationConfig{Path: "/"},
		config.LocationConfig{Path: "/api"},
	)
	loc, err := Resolve(s, "/anything/else")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Path != "/" {
		t.Fatalf("got %q, want / (root fallback)", loc.Path)
	}
}

func TestCheckMethodDisallowed(t *testing.T) {
	loc := config.LocationConfig{Path: "/api", Methods: map[string]bool{"GET": true}}
	err := CheckMethod(&loc, "DELETE")
	if err == nil {
		t.Fatal("expected method-not-allowed error")
	}
	if goserverrors.StatusCode(err) != 405 {
		t.Fatalf("status = %d, want 405", goserverrors.StatusCode(err))
	}
}

func TestCheckMethodAllowed(t *testing.T) {
	loc := config.LocationConfig{Path: "/api", Methods: map[string]bool{"GET": true}}
	if err := CheckMethod(&loc, "GET"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
