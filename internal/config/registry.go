package config

// Registry is a process-lifetime arena of ServerConfig values. ClientState
// references its owning server by index into a Registry rather than by
// pointer, so a SIGHUP reload can publish a new Registry generation
// without dangling
// references from in-flight connections, which keep running against the
// generation they started with.
type Registry struct {
	servers []*ServerConfig
}

// NewRegistry builds a Registry from parsed ServerConfig values.
func NewRegistry(servers []ServerConfig) *Registry {
	r := &Registry{servers: make([]*ServerConfig, len(servers))}
	for i := range servers {
		s := servers[i]
		r.servers[i] = &s
	}
	return r
}

// Ref is a non-owning reference to a ServerConfig: an index into a
// specific Registry generation.
type Ref struct {
	registry *Registry
	index    int
}

// RefFor returns a Ref to the server at index i.
func (r *Registry) RefFor(i int) Ref {
	return Ref{registry: r, index: i}
}

// Resolve dereferences a Ref back to its ServerConfig.
func (ref Ref) Resolve() *ServerConfig {
	if ref.registry == nil || ref.index < 0 || ref.index >= len(ref.registry.servers) {
		return nil
	}
	return ref.registry.servers[ref.index]
}

// All returns every ServerConfig in the registry.
func (r *Registry) All() []*ServerConfig {
	return r.servers
}

// RefsForEndpoint returns a Ref to every ServerConfig listening on
// endpoint, in declaration order. Callers that must outlive a future
// SIGHUP-triggered Registry swap (the event loop's per-connection
// virtual-host candidate list) hold these instead of raw
// *ServerConfig pointers.
func (r *Registry) RefsForEndpoint(endpoint string) []Ref {
	var out []Ref
	for i, s := range r.servers {
		if s.Endpoint() == endpoint {
			out = append(out, r.RefFor(i))
		}
	}
	return out
}

// ForEndpoint returns every ServerConfig listening on the given
// "host:port" endpoint, in declaration order (first declared wins ties).
func (r *Registry) ForEndpoint(endpoint string) []*ServerConfig {
	var out []*ServerConfig
	for _, s := range r.servers {
		if s.Endpoint() == endpoint {
			out = append(out, s)
		}
	}
	return out
}

// SelectByHost picks the ServerConfig among candidates whose ServerNames
// contains host. Falls back to the first-declared candidate when none
// match or host is empty.
func SelectByHost(candidates []*ServerConfig, host string) *ServerConfig {
	if len(candidates) == 0 {
		return nil
	}
	for _, c := range candidates {
		if c.MatchesHost(host) {
			return c
		}
	}
	return candidates[0]
}
