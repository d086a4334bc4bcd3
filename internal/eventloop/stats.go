package eventloop

import "sync/atomic"

// Stats tracks process-lifetime counters for the connections this Loop
// has served: accepted, admission-rejected, and currently active
// connection counts plus total bytes written to client sockets.
type Stats struct {
	AcceptedTotal atomic.Uint64
	RejectedTotal atomic.Uint64
	Active        atomic.Int64
	BytesServed   atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats, safe to log or expose
// without holding a reference to the live counters.
type Snapshot struct {
	AcceptedTotal uint64
	RejectedTotal uint64
	Active        int64
	BytesServed   uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		AcceptedTotal: s.AcceptedTotal.Load(),
		RejectedTotal: s.RejectedTotal.Load(),
		Active:        s.Active.Load(),
		BytesServed:   s.BytesServed.Load(),
	}
}
