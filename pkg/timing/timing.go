// Package timing provides per-request timing breakdowns for the server
// side of a request: how long framing, routing, handler execution, and
// response write-out each took.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures a per-request server-side timing breakdown.
type Metrics struct {
	// ParseTime is the time spent framing the request (request-line,
	// headers, body) across one or more event-loop reads.
	ParseTime time.Duration `json:"parse_time"`

	// RouteTime is the time spent resolving the location and dispatching
	// to a handler.
	RouteTime time.Duration `json:"route_time"`

	// HandlerTime is the time spent inside the static/upload/CGI handler
	// producing a response.
	HandlerTime time.Duration `json:"handler_time"`

	// WriteTime is the time spent draining the response to the socket,
	// across one or more writability events.
	WriteTime time.Duration `json:"write_time"`

	// TotalTime is the total end-to-end time from first byte read to
	// last byte written.
	TotalTime time.Duration `json:"total_time"`
}

// Timer measures the phases of a single request's lifecycle.
type Timer struct {
	start       time.Time
	parseStart  time.Time
	parseEnd    time.Time
	routeStart  time.Time
	routeEnd    time.Time
	handleStart time.Time
	handleEnd   time.Time
	writeStart  time.Time
	writeEnd    time.Time
}

// NewTimer creates a new timing measurement session, started now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// StartParse marks the beginning of request framing.
func (t *Timer) StartParse() { t.parseStart = time.Now() }

// EndParse marks the end of request framing.
func (t *Timer) EndParse() { t.parseEnd = time.Now() }

// StartRoute marks the beginning of location resolution.
func (t *Timer) StartRoute() { t.routeStart = time.Now() }

// EndRoute marks the end of location resolution.
func (t *Timer) EndRoute() { t.routeEnd = time.Now() }

// StartHandle marks the beginning of handler execution.
func (t *Timer) StartHandle() { t.handleStart = time.Now() }

// EndHandle marks the end of handler execution.
func (t *Timer) EndHandle() { t.handleEnd = time.Now() }

// StartWrite marks the beginning of response write-out.
func (t *Timer) StartWrite() { t.writeStart = time.Now() }

// EndWrite marks the end of response write-out.
func (t *Timer) EndWrite() { t.writeEnd = time.Now() }

// Metrics returns the calculated timing breakdown. Phases that were never
// started/ended report a zero duration.
func (t *Timer) Metrics() Metrics {
	m := Metrics{TotalTime: time.Since(t.start)}

	if !t.parseStart.IsZero() && !t.parseEnd.IsZero() {
		m.ParseTime = t.parseEnd.Sub(t.parseStart)
	}
	if !t.routeStart.IsZero() && !t.routeEnd.IsZero() {
		m.RouteTime = t.routeEnd.Sub(t.routeStart)
	}
	if !t.handleStart.IsZero() && !t.handleEnd.IsZero() {
		m.HandlerTime = t.handleEnd.Sub(t.handleStart)
	}
	if !t.writeStart.IsZero() && !t.writeEnd.IsZero() {
		m.WriteTime = t.writeEnd.Sub(t.writeStart)
	}
	return m
}

// String provides a human-readable representation of the metrics, suitable
// for a logrus field value.
func (m Metrics) String() string {
	return fmt.Sprintf("parse=%v route=%v handler=%v write=%v total=%v",
		m.ParseTime, m.RouteTime, m.HandlerTime, m.WriteTime, m.TotalTime)
}
