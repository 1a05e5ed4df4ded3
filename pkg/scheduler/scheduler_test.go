package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTicker_RunsPeriodically(t *testing.T) {
	s := NewTicker()

	var runs atomic.Int32
	h := s.ScheduleRecurring(0, 10*time.Millisecond, func() {
		runs.Add(1)
	})
	defer h.Cancel()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if runs.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runs.Load())
	}
}

func TestTicker_CancelStopsExecution(t *testing.T) {
	s := NewTicker()

	var runs atomic.Int32
	h := s.ScheduleRecurring(0, 5*time.Millisecond, func() {
		runs.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	h.Cancel()
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)

	// One in-flight execution may still land after Cancel; no more after that.
	if got := runs.Load(); got > after+1 {
		t.Errorf("task kept running after cancel: %d -> %d", after, got)
	}

	if !h.Canceled() {
		t.Error("Canceled should report true after Cancel")
	}
}

func TestTicker_CancelIdempotent(t *testing.T) {
	s := NewTicker()
	h := s.ScheduleRecurring(time.Hour, time.Hour, func() {})

	h.Cancel()
	h.Cancel() // must not panic on a closed stop channel

	if !h.Canceled() {
		t.Error("handle should be canceled")
	}
}

func TestTicker_InitialDelayHonored(t *testing.T) {
	s := NewTicker()

	var runs atomic.Int32
	h := s.ScheduleRecurring(time.Hour, time.Hour, func() {
		runs.Add(1)
	})
	defer h.Cancel()

	time.Sleep(20 * time.Millisecond)
	if runs.Load() != 0 {
		t.Error("task should not run before initial delay")
	}
}

func TestManual_TickRunsTasks(t *testing.T) {
	m := NewManual()

	var runs int
	m.ScheduleRecurring(0, time.Second, func() { runs++ })
	m.ScheduleRecurring(0, time.Second, func() { runs++ })

	m.Tick()
	m.Tick()

	if runs != 4 {
		t.Errorf("runs = %d, want 4", runs)
	}
}

func TestManual_CanceledTasksSkipped(t *testing.T) {
	m := NewManual()

	var runs int
	h := m.ScheduleRecurring(0, time.Second, func() { runs++ })
	m.Tick()
	h.Cancel()
	m.Tick()

	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
	if m.Active() != 0 {
		t.Errorf("Active = %d, want 0", m.Active())
	}
}

func TestHandle_UniqueIDs(t *testing.T) {
	m := NewManual()
	a := m.ScheduleRecurring(0, time.Second, func() {})
	b := m.ScheduleRecurring(0, time.Second, func() {})

	if a.ID() == b.ID() {
		t.Error("handles should have unique ids")
	}
	if a.ID() == "" {
		t.Error("handle id should not be empty")
	}
}
