package eventloop

import (
	"strconv"

	"github.com/webserv/goserv/internal/fsm"
	"github.com/webserv/goserv/internal/httpmsg"
	"github.com/webserv/goserv/internal/session"
	"github.com/webserv/goserv/pkg/constants"
)

// decorateCookies attaches the cookies every response carries:
// server=<id>, visits=<n> (incremented per request against the
// caller's session), and session_id=<32char> when a new session had to
// be created.
func (l *Loop) decorateCookies(c *fsm.Conn, resp *httpmsg.Response) {
	id := ""
	if c.Request != nil {
		id = c.Request.Cookies["session_id"]
	}

	secureAttrs := false
	if server := c.SelectServer(); server != nil {
		secureAttrs = server.CookieSecureAttrs
	}

	var sess *session.Session
	isNew := false
	if id != "" {
		if s, ok := l.Sessions.Get(id); ok {
			sess = s
		}
	}
	if sess == nil {
		sess = l.Sessions.Create()
		isNew = true
	}

	visits := 1
	if v := sess.Get("visits"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			visits = n + 1
		}
	}
	sess.Set("visits", strconv.Itoa(visits))

	resp.SetCookieWithAttrs("server", constants.ServerSoftware, "/", "", secureAttrs)
	resp.SetCookieWithAttrs("visits", strconv.Itoa(visits), "/", "", secureAttrs)
	if isNew {
		resp.SetCookieWithAttrs("session_id", sess.ID, "/", "", secureAttrs)
	}
}
