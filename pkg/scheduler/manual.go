package scheduler

import (
	"sync"
	"time"
)

// Manual is a deterministic Scheduler for tests. Registered tasks run only
// when the test calls Tick; delays and periods are ignored.
type Manual struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	handle *handle
	task   func()
}

// NewManual creates a test scheduler.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) ScheduleRecurring(initialDelay, period time.Duration, task func()) Handle {
	h := newHandle()
	m.mu.Lock()
	m.tasks = append(m.tasks, &manualTask{handle: h, task: task})
	m.mu.Unlock()
	return h
}

// Tick runs every active registration once, in registration order. Canceled
// registrations are dropped.
func (m *Manual) Tick() {
	m.mu.Lock()
	live := m.tasks[:0]
	var run []func()
	for _, mt := range m.tasks {
		if mt.handle.Canceled() {
			continue
		}
		live = append(live, mt)
		run = append(run, mt.task)
	}
	m.tasks = live
	m.mu.Unlock()

	// Run outside the lock; a task may register or cancel handles.
	for _, task := range run {
		task()
	}
}

// Active returns the number of registrations that are not canceled.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mt := range m.tasks {
		if !mt.handle.Canceled() {
			n++
		}
	}
	return n
}
