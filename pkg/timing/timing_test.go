package timing

import (
	"testing"
	"time"
)

func TestTimerMetrics(t *testing.T) {
	timer := NewTimer()

	timer.StartParse()
	time.Sleep(time.Millisecond)
	timer.EndParse()

	timer.StartRoute()
	time.Sleep(time.Millisecond)
	timer.EndRoute()

	timer.StartHandle()
	time.Sleep(time.Millisecond)
	timer.EndHandle()

	timer.StartWrite()
	time.Sleep(time.Millisecond)
	timer.EndWrite()

	m := timer.Metrics()
	if m.ParseTime <= 0 {
		t.Errorf("expected positive ParseTime, got %v", m.ParseTime)
	}
	if m.RouteTime <= 0 {
		t.Errorf("expected positive RouteTime, got %v", m.RouteTime)
	}
	if m.HandlerTime <= 0 {
		t.Errorf("expected positive HandlerTime, got %v", m.HandlerTime)
	}
	if m.WriteTime <= 0 {
		t.Errorf("expected positive WriteTime, got %v", m.WriteTime)
	}
	if m.TotalTime < m.ParseTime+m.RouteTime+m.HandlerTime+m.WriteTime {
		t.Errorf("expected TotalTime to cover all phases: total=%v sum of phases exceeds it", m.TotalTime)
	}
}

func TestMetricsUnmeasuredPhaseIsZero(t *testing.T) {
	timer := NewTimer()
	m := timer.Metrics()
	if m.ParseTime != 0 || m.RouteTime != 0 || m.HandlerTime != 0 || m.WriteTime != 0 {
		t.Fatalf("expected all unmeasured phases to be zero, got %+v", m)
	}
}
