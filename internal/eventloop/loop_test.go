package eventloop

import (
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/webserv/goserv/internal/config"
	"github.com/webserv/goserv/internal/fsm"
	"github.com/webserv/goserv/internal/httpmsg"
	"github.com/webserv/goserv/internal/session"
	"github.com/webserv/goserv/pkg/constants"
)

func TestAdmissionCapacityIsPositive(t *testing.T) {
	if got := admissionCapacity(); got <= 0 {
		t.Fatalf("expected a positive capacity, got %d", got)
	}
}

func TestStatsSnapshot(t *testing.T) {
	var s Stats
	s.AcceptedTotal.Add(3)
	s.RejectedTotal.Add(1)
	s.Active.Add(2)
	s.BytesServed.Add(512)

	snap := s.Snapshot()
	if snap.AcceptedTotal != 3 || snap.RejectedTotal != 1 || snap.Active != 2 || snap.BytesServed != 512 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestFrameLimitWidensAcrossCandidates(t *testing.T) {
	narrow := &config.ServerConfig{ClientMaxBodySize: 1024}
	wide := &config.ServerConfig{
		ClientMaxBodySize: 2048,
		Locations: []config.LocationConfig{
			{HasClientMaxBody: true, ClientMaxBodySize: 8192},
		},
	}

	got := frameLimit([]*config.ServerConfig{narrow, wide})
	if got != 8192 {
		t.Fatalf("expected widest candidate limit 8192, got %d", got)
	}
}

func TestFrameLimitFallsBackToDefault(t *testing.T) {
	got := frameLimit(nil)
	if got <= 0 {
		t.Fatalf("expected a positive default limit, got %d", got)
	}
}

func TestResolveRefsDropsNilEntries(t *testing.T) {
	registry := config.NewRegistry([]config.ServerConfig{
		{ServerNames: []string{"a.example"}},
	})
	refs := []config.Ref{registry.RefFor(0), registry.RefFor(99)}

	resolved := resolveRefs(refs)
	if len(resolved) != 1 || resolved[0].ServerNames[0] != "a.example" {
		t.Fatalf("expected one resolved server, got %+v", resolved)
	}
}

func TestMaybeSpillBodyLeavesSmallBodyInMemory(t *testing.T) {
	l := &Loop{Log: logrus.New()}
	c := fsm.New(3, nil, "")
	c.Request = &httpmsg.Request{Body: []byte("small body")}

	l.maybeSpillBody(c)

	if c.TempBodyPath != "" {
		t.Fatalf("expected no spill for a small body, got path %q", c.TempBodyPath)
	}
}

func TestMaybeSpillBodyStagesLargeBodyToDisk(t *testing.T) {
	l := &Loop{Log: logrus.New()}
	c := fsm.New(3, nil, "")
	big := make([]byte, constants.DefaultBodyMemLimit+1)
	c.Request = &httpmsg.Request{Body: big}

	l.maybeSpillBody(c)

	if c.TempBodyPath == "" {
		t.Fatal("expected a large body to be spilled to disk")
	}
	data, err := os.ReadFile(c.TempBodyPath)
	if err != nil {
		t.Fatalf("reading spill file: %v", err)
	}
	if len(data) != len(big) {
		t.Fatalf("spill file has %d bytes, want %d", len(data), len(big))
	}

	spillPath := c.TempBodyPath
	c.ResetForNextRequest()
	if c.TempBodyPath != "" {
		t.Fatal("expected TempBodyPath to be cleared after ResetForNextRequest")
	}
	if _, err := os.Stat(spillPath); err == nil {
		t.Fatal("expected spill file to be removed after ResetForNextRequest")
	}
}

func TestDecorateCookiesSetsSessionOnFirstVisit(t *testing.T) {
	l := &Loop{Sessions: session.NewStore(), Log: logrus.New()}
	c := fsm.New(3, nil, "127.0.0.1:1")
	resp := httpmsg.NewResponse(200)

	l.decorateCookies(c, resp)

	headers := string(resp.HeaderBlock())
	if !strings.Contains(headers, "Set-Cookie: server=") {
		t.Fatalf("expected server cookie to be set, got %q", headers)
	}
	if !strings.Contains(headers, "Set-Cookie: visits=1") {
		t.Fatalf("expected visits=1 on first visit, got %q", headers)
	}
	if !strings.Contains(headers, "Set-Cookie: session_id=") {
		t.Fatalf("expected a new session_id cookie on first visit, got %q", headers)
	}
}

func TestDecorateCookiesHonorsCookieSecureAttrs(t *testing.T) {
	registry := config.NewRegistry([]config.ServerConfig{
		{CookieSecureAttrs: true},
	})
	l := &Loop{Sessions: session.NewStore(), Log: logrus.New()}
	c := fsm.New(3, []config.Ref{registry.RefFor(0)}, "127.0.0.1:1")
	resp := httpmsg.NewResponse(200)

	l.decorateCookies(c, resp)

	headers := string(resp.HeaderBlock())
	if !strings.Contains(headers, "HttpOnly; Secure; SameSite=Lax") {
		t.Fatalf("expected secure cookie attributes when server opts in, got %q", headers)
	}
}
