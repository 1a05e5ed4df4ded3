// Package scheduler provides recurring task scheduling for the sidebar
// engine. Cancellation is cooperative: a task that is already mid-execution
// when its handle is canceled finishes that execution.
package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Handle is a cancelable registration for a recurring task.
type Handle interface {
	// ID returns the unique registration id.
	ID() string

	// Cancel stops future executions. Canceling an already-canceled
	// handle is a no-op.
	Cancel()

	// Canceled reports whether the handle has been canceled.
	Canceled() bool
}

// Scheduler runs recurring tasks. Implementations must be safe for
// concurrent use.
type Scheduler interface {
	// ScheduleRecurring runs task after initialDelay and then once per
	// period until the returned handle is canceled.
	ScheduleRecurring(initialDelay, period time.Duration, task func()) Handle
}

type handle struct {
	id       string
	canceled atomic.Bool
	stop     chan struct{}
}

func newHandle() *handle {
	return &handle{
		id:   ulid.Make().String(),
		stop: make(chan struct{}),
	}
}

func (h *handle) ID() string { return h.id }

func (h *handle) Cancel() {
	if h.canceled.Swap(true) {
		return
	}
	close(h.stop)
}

func (h *handle) Canceled() bool { return h.canceled.Load() }

// Ticker is a real-time Scheduler backed by time.Ticker. Each registration
// runs on its own goroutine.
type Ticker struct{}

// NewTicker creates a real-time scheduler.
func NewTicker() *Ticker {
	return &Ticker{}
}

func (t *Ticker) ScheduleRecurring(initialDelay, period time.Duration, task func()) Handle {
	if period <= 0 {
		period = time.Millisecond
	}

	h := newHandle()
	go func() {
		timer := time.NewTimer(initialDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-h.stop:
			return
		}
		if h.Canceled() {
			return
		}
		task()

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if h.Canceled() {
					return
				}
				task()
			case <-h.stop:
				return
			}
		}
	}()
	return h
}
