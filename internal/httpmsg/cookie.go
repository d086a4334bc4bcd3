package httpmsg

import "strings"

// parseCookies splits a Cookie header value of the form
// "name=value; name=value" into a map.
func parseCookies(header string) map[string]string {
	cookies := make(map[string]string)
	if header == "" {
		return cookies
	}
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if eq := strings.IndexByte(part, '='); eq >= 0 {
			name := part[:eq]
			value := part[eq+1:]
			cookies[name] = value
		}
	}
	return cookies
}

// SetCookie describes one Set-Cookie header to emit on a response.
type SetCookie struct {
	Name    string
	Value   string
	Path    string
	Expires string // pre-formatted Expires value, empty for a session cookie

	// SecureAttrs adds HttpOnly, Secure, and SameSite=Lax. Opt-in via
	// the cookie_secure_attrs directive; off by default.
	SecureAttrs bool
}

// String renders the cookie in "name=value; Path=p; Expires=e" form,
// omitting attributes that are empty, and appending HttpOnly/Secure/
// SameSite=Lax when SecureAttrs is set.
func (c SetCookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Expires != "" {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires)
	}
	if c.SecureAttrs {
		b.WriteString("; HttpOnly; Secure; SameSite=Lax")
	}
	return b.String()
}
