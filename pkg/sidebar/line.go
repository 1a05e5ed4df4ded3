package sidebar

import (
	"sync"

	"github.com/google/uuid"

	"github.com/odvcencio/sideboard/pkg/scheduler"
)

// Updater produces the text shown to one viewer. Dynamic lines are
// re-evaluated on every broadcast; static lines are evaluated once per
// change.
type Updater[R any] func(viewer uuid.UUID) (R, error)

// Line is a single text slot of a sidebar with an assigned display rank.
// Lines are created through the owning Sidebar and keep their display id for
// the life of that sidebar; ids are never reused.
type Line[R any] struct {
	displayID string
	static    bool
	updater   Updater[R]

	mu     sync.Mutex
	rank   int
	ranked bool
	task   scheduler.Handle
}

// DisplayID returns the stable protocol-level row key for this line.
func (l *Line[R]) DisplayID() string { return l.displayID }

// Static reports whether the line's text is constant per change rather than
// re-evaluated per viewer.
func (l *Line[R]) Static() bool { return l.static }

// Rank returns the line's display rank. The second result is false while no
// row has been created for this line yet.
func (l *Line[R]) Rank() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rank, l.ranked
}

func (l *Line[R]) setRank(rank int) {
	l.mu.Lock()
	l.rank = rank
	l.ranked = true
	l.mu.Unlock()
}

// hasActiveTask reports whether the line drives its own update cadence.
// While true, the global recompute pass leaves the line's broadcast alone.
func (l *Line[R]) hasActiveTask() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.task != nil && !l.task.Canceled()
}

func (l *Line[R]) setTask(h scheduler.Handle) {
	l.mu.Lock()
	l.task = h
	l.mu.Unlock()
}

// value evaluates the line's text for one viewer.
func (l *Line[R]) value(viewer uuid.UUID) (R, error) {
	return l.updater(viewer)
}
