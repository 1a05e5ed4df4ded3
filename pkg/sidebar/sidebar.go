// Package sidebar implements a per-viewer scoreboard sidebar: a titled,
// ordered list of text lines kept in sync across many remote viewers through
// incremental row operations. Mutations and scheduled ticks recompute line
// ranks and broadcast only what changed; viewers can attach and detach at
// any time and always converge on the latest committed state.
package sidebar

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	sberrors "github.com/odvcencio/sideboard/pkg/errors"
	"github.com/odvcencio/sideboard/pkg/observability"
	"github.com/odvcencio/sideboard/pkg/scheduler"
	"github.com/odvcencio/sideboard/pkg/text"
)

const (
	objectivePrefix    = "PS-"
	objectiveSuffixLen = 3

	defaultTitlePeriod = 50 * time.Millisecond

	// maxBroadcastConcurrency bounds the per-broadcast fan-out so a slow
	// transport cannot spawn one goroutine per viewer unchecked.
	maxBroadcastConcurrency = 16
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Sidebar is the aggregate root: an ordered line registry, a concurrent
// viewer set, a title source, and the broadcast machinery tying them to a
// Transport. Structural mutation (lines, title, tasks) is serialized through
// an internal mutex; viewer membership has its own concurrency-safe set.
type Sidebar[R any] struct {
	objectiveID string

	transport Transport[R]
	provider  text.Provider[R]
	sched     scheduler.Scheduler
	log       *observability.Logger

	viewers *viewerSet

	mu          sync.Mutex
	lines       []*Line[R]
	lineSeq     int
	title       R
	titleFrame  string
	titleIter   text.Iterator
	titleTask   scheduler.Handle
	titlePeriod time.Duration
	tasks       map[string]scheduler.Handle
	destroyed   bool
}

// Option configures a Sidebar.
type Option func(*options)

type options struct {
	entropy     *rand.Rand
	logger      *observability.Logger
	titlePeriod time.Duration
}

// WithEntropy sets the randomness source for the objective id suffix, so
// tests can assert deterministic ids.
func WithEntropy(r *rand.Rand) Option {
	return func(o *options) { o.entropy = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTitlePeriod sets how often an animated title advances one frame.
func WithTitlePeriod(d time.Duration) Option {
	return func(o *options) { o.titlePeriod = d }
}

// New creates a sidebar with a static legacy-message title.
func New[R any](title string, provider text.Provider[R], transport Transport[R], sched scheduler.Scheduler, opts ...Option) (*Sidebar[R], error) {
	s, err := newSidebar(provider, transport, sched, opts...)
	if err != nil {
		return nil, err
	}
	rendered, err := provider.FromLegacyMessage(title)
	if err != nil {
		return nil, sberrors.Wrap(err, sberrors.ErrCodeInvalidInput, "render title")
	}
	s.title = rendered
	s.titleFrame = title
	return s, nil
}

// NewAnimated creates a sidebar whose title is driven by a frame iterator.
// The iterator is advanced once per title period; the first frame is pulled
// immediately.
func NewAnimated[R any](titleIter text.Iterator, provider text.Provider[R], transport Transport[R], sched scheduler.Scheduler, opts ...Option) (*Sidebar[R], error) {
	if titleIter == nil {
		return nil, sberrors.New(sberrors.ErrCodeInvalidInput, "title iterator is required")
	}
	s, err := newSidebar(provider, transport, sched, opts...)
	if err != nil {
		return nil, err
	}

	frame := titleIter.Next()
	rendered, err := provider.FromLegacyMessage(frame)
	if err != nil {
		return nil, sberrors.Wrap(err, sberrors.ErrCodeInvalidInput, "render title frame")
	}
	s.title = rendered
	s.titleFrame = frame

	s.mu.Lock()
	s.installTitleIterLocked(titleIter)
	s.mu.Unlock()
	return s, nil
}

func newSidebar[R any](provider text.Provider[R], transport Transport[R], sched scheduler.Scheduler, opts ...Option) (*Sidebar[R], error) {
	if provider == nil {
		return nil, sberrors.New(sberrors.ErrCodeInvalidInput, "text provider is required")
	}
	if transport == nil {
		return nil, sberrors.New(sberrors.ErrCodeInvalidInput, "transport is required")
	}
	if sched == nil {
		return nil, sberrors.New(sberrors.ErrCodeInvalidInput, "scheduler is required")
	}

	o := options{titlePeriod: defaultTitlePeriod}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.NewLogger("sidebar", slog.LevelInfo)
	}

	objectiveID := objectivePrefix + randomAlphabetic(objectiveSuffixLen, o.entropy)

	return &Sidebar[R]{
		objectiveID: objectiveID,
		transport:   transport,
		provider:    provider,
		sched:       sched,
		log:         o.logger.WithSidebar(objectiveID),
		viewers:     newViewerSet(),
		titlePeriod: o.titlePeriod,
		tasks:       make(map[string]scheduler.Handle),
	}, nil
}

// randomAlphabetic draws n letters from r, or from the process-global source
// when r is nil. The random suffix keeps concurrently active sidebars on one
// connection from clashing on objective ids.
func randomAlphabetic(n int, r *rand.Rand) string {
	out := make([]byte, n)
	for i := range out {
		if r != nil {
			out[i] = alphabet[r.IntN(len(alphabet))]
		} else {
			out[i] = alphabet[rand.IntN(len(alphabet))]
		}
	}
	return string(out)
}

// ObjectiveID returns the unique per-instance objective identifier.
func (s *Sidebar[R]) ObjectiveID() string { return s.objectiveID }

// Title returns the currently displayed rendered title.
func (s *Sidebar[R]) Title() R {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Sidebar[R]) checkDestroyedLocked() error {
	if s.destroyed {
		return sberrors.New(sberrors.ErrCodeSidebarDestroyed, "sidebar has been destroyed").
			WithContext("objective_id", s.objectiveID)
	}
	return nil
}

// --- lines ---

// AddTextLine appends a line with static legacy-message text.
func (s *Sidebar[R]) AddTextLine(msg string) (*Line[R], error) {
	rendered, err := s.provider.FromLegacyMessage(msg)
	if err != nil {
		return nil, sberrors.Wrap(err, sberrors.ErrCodeInvalidInput, "render line text")
	}
	return s.AddLine(rendered)
}

// AddLine appends a line with a static rendered value.
func (s *Sidebar[R]) AddLine(value R) (*Line[R], error) {
	return s.addLine(func(uuid.UUID) (R, error) { return value, nil }, true)
}

// AddUpdatableLine appends a line whose text is re-evaluated per viewer on
// every broadcast.
func (s *Sidebar[R]) AddUpdatableLine(updater Updater[R]) (*Line[R], error) {
	if updater == nil {
		return nil, sberrors.New(sberrors.ErrCodeInvalidInput, "line updater is required")
	}
	return s.addLine(updater, false)
}

// AddBlankLine appends an empty line.
func (s *Sidebar[R]) AddBlankLine() (*Line[R], error) {
	return s.AddTextLine("")
}

func (s *Sidebar[R]) addLine(updater Updater[R], static bool) (*Line[R], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDestroyedLocked(); err != nil {
		return nil, err
	}

	// Monotonic ids: a line added after removals never reuses the row key
	// of a previously removed line.
	s.lineSeq++
	line := &Line[R]{
		displayID: fmt.Sprintf("%s%d", s.objectiveID, s.lineSeq),
		static:    static,
		updater:   updater,
	}
	s.lines = append(s.lines, line)
	return line, nil
}

// RemoveLine removes the line from the sidebar. If the line had a row, the
// row is removed for every viewer and remaining lines re-pack their ranks.
func (s *Sidebar[R]) RemoveLine(line *Line[R]) error {
	if line == nil {
		return sberrors.New(sberrors.ErrCodeInvalidInput, "line is required")
	}

	s.mu.Lock()
	if err := s.checkDestroyedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	idx := s.indexOfLocked(line)
	if idx < 0 {
		s.mu.Unlock()
		return sberrors.New(sberrors.ErrCodeInvalidInput, "line is not part of this sidebar").
			WithContext("row_id", line.displayID)
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.mu.Unlock()

	if _, ranked := line.Rank(); !ranked {
		return nil
	}

	err := s.broadcast("row_remove", func(viewer uuid.UUID) error {
		return s.transport.RemoveRow(viewer, s.objectiveID, line.displayID)
	})
	if rerr := s.UpdateAllLines(); rerr != nil {
		err = stderrors.Join(err, rerr)
	}
	return err
}

// ShiftLine moves the line to the given index and re-packs all ranks.
func (s *Sidebar[R]) ShiftLine(line *Line[R], offset int) error {
	if line == nil {
		return sberrors.New(sberrors.ErrCodeInvalidInput, "line is required")
	}

	s.mu.Lock()
	if err := s.checkDestroyedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	idx := s.indexOfLocked(line)
	if idx < 0 {
		s.mu.Unlock()
		return sberrors.New(sberrors.ErrCodeInvalidInput, "line is not part of this sidebar").
			WithContext("row_id", line.displayID)
	}
	if offset < 0 || offset >= len(s.lines) {
		s.mu.Unlock()
		return sberrors.New(sberrors.ErrCodeInvalidInput, "offset out of range").
			WithContext("offset", offset).
			WithContext("lines", len(s.lines))
	}

	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.lines = append(s.lines[:offset], append([]*Line[R]{line}, s.lines[offset:]...)...)
	s.mu.Unlock()

	return s.UpdateAllLines()
}

// Lines returns the lines in registry order.
func (s *Sidebar[R]) Lines() []*Line[R] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Line[R], len(s.lines))
	copy(out, s.lines)
	return out
}

// MaxLine returns the line with the highest assigned rank. Lines without a
// rank are excluded; the second result is false when none qualify.
func (s *Sidebar[R]) MaxLine() (*Line[R], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  *Line[R]
		rank  int
		found bool
	)
	for _, line := range s.lines {
		r, ok := line.Rank()
		if !ok {
			continue
		}
		if !found || r > rank {
			best, rank, found = line, r, true
		}
	}
	return best, found
}

// MinLine returns the line with the lowest assigned rank.
func (s *Sidebar[R]) MinLine() (*Line[R], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  *Line[R]
		rank  int
		found bool
	)
	for _, line := range s.lines {
		r, ok := line.Rank()
		if !ok {
			continue
		}
		if !found || r < rank {
			best, rank, found = line, r, true
		}
	}
	return best, found
}

func (s *Sidebar[R]) indexOfLocked(line *Line[R]) int {
	for i, l := range s.lines {
		if l == line {
			return i
		}
	}
	return -1
}

// --- recompute and per-line updates ---

// rowOp is one pending operation produced by a recompute pass.
type rowOp[R any] struct {
	line     *Line[R]
	create   bool
	prevRank int
	newRank  int
}

// UpdateAllLines reassigns descending ranks to every line and broadcasts the
// create/update operations needed to bring viewers in sync. Lines driving
// their own update cadence are skipped.
func (s *Sidebar[R]) UpdateAllLines() error {
	_, span := observability.Tracer().Start(context.Background(), "sidebar.recompute")
	defer span.End()

	s.mu.Lock()
	if err := s.checkDestroyedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	ops := s.recomputeLocked()
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("sidebar.changed_lines", len(ops)))
	return s.dispatch(ops, uuid.Nil)
}

// recomputeLocked walks the registry in order assigning ranks from
// len(lines) downward. All ranks are applied before any operation is
// delivered, so MaxLine/MinLine never observe a half-applied pass.
func (s *Sidebar[R]) recomputeLocked() []rowOp[R] {
	rank := len(s.lines)
	ops := make([]rowOp[R], 0, len(s.lines))
	for _, line := range s.lines {
		cur, ranked := line.Rank()
		if !ranked {
			line.setRank(rank)
			ops = append(ops, rowOp[R]{line: line, create: true, newRank: rank})
			rank--
			continue
		}
		if line.hasActiveTask() {
			// The line's own ticker owns its broadcast; don't touch it.
			continue
		}
		if cur != rank {
			line.setRank(rank)
			ops = append(ops, rowOp[R]{line: line, prevRank: cur, newRank: rank})
		}
		rank--
	}
	return ops
}

// dispatch broadcasts the recompute operations, one fan-out per changed
// line. exclude skips a viewer that will receive its full row set directly.
func (s *Sidebar[R]) dispatch(ops []rowOp[R], exclude uuid.UUID) error {
	var errs []error
	for _, op := range ops {
		var err error
		if op.create {
			err = s.broadcastExcluding("row_create", exclude, func(viewer uuid.UUID) error {
				value, verr := op.line.value(viewer)
				if verr != nil {
					return verr
				}
				return s.transport.CreateRow(viewer, s.objectiveID, op.line.displayID, op.newRank, value)
			})
		} else {
			err = s.broadcastExcluding("row_update", exclude, func(viewer uuid.UUID) error {
				value, verr := op.line.value(viewer)
				if verr != nil {
					return verr
				}
				return s.transport.UpdateRow(viewer, s.objectiveID, op.line.displayID, op.prevRank, op.newRank, value)
			})
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// UpdateLine re-broadcasts a single line at its current rank. No-op for
// lines that have no row yet.
func (s *Sidebar[R]) UpdateLine(line *Line[R]) error {
	if line == nil {
		return sberrors.New(sberrors.ErrCodeInvalidInput, "line is required")
	}

	s.mu.Lock()
	if err := s.checkDestroyedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.indexOfLocked(line) < 0 {
		s.mu.Unlock()
		return sberrors.New(sberrors.ErrCodeInvalidInput, "line is not part of this sidebar").
			WithContext("row_id", line.displayID)
	}
	s.mu.Unlock()

	rank, ranked := line.Rank()
	if !ranked {
		return nil
	}

	return s.broadcast("row_update", func(viewer uuid.UUID) error {
		value, err := line.value(viewer)
		if err != nil {
			return err
		}
		return s.transport.UpdateRow(viewer, s.objectiveID, line.displayID, rank, rank, value)
	})
}

// UpdateLinesPeriodically schedules a recurring global recompute. The handle
// is owned by the sidebar and canceled on Destroy.
func (s *Sidebar[R]) UpdateLinesPeriodically(delay, period time.Duration) (scheduler.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDestroyedLocked(); err != nil {
		return nil, err
	}

	h := s.sched.ScheduleRecurring(delay, period, func() {
		if err := s.UpdateAllLines(); err != nil && !sberrors.IsCode(err, sberrors.ErrCodeSidebarDestroyed) {
			s.log.Warn("periodic line refresh failed", slog.String("error", err.Error()))
		}
	})
	s.tasks[h.ID()] = h
	return h, nil
}

// UpdateLinePeriodically gives one line a private recurring update. While
// the handle is active the global recompute pass skips the line entirely.
func (s *Sidebar[R]) UpdateLinePeriodically(line *Line[R], delay, period time.Duration) (scheduler.Handle, error) {
	if line == nil {
		return nil, sberrors.New(sberrors.ErrCodeInvalidInput, "line is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDestroyedLocked(); err != nil {
		return nil, err
	}
	if s.indexOfLocked(line) < 0 {
		return nil, sberrors.New(sberrors.ErrCodeInvalidInput, "line is not part of this sidebar").
			WithContext("row_id", line.displayID)
	}

	h := s.sched.ScheduleRecurring(delay, period, func() {
		if err := s.UpdateLine(line); err != nil && !sberrors.IsCode(err, sberrors.ErrCodeSidebarDestroyed) {
			s.log.Warn("line refresh failed",
				slog.String("row_id", line.displayID),
				slog.String("error", err.Error()))
		}
	})
	line.setTask(h)
	s.tasks[h.ID()] = h
	return h, nil
}

// ToLineUpdater adapts a frame iterator into a per-viewer line updater.
// Every evaluation advances the iterator by one frame.
func (s *Sidebar[R]) ToLineUpdater(it text.Iterator) Updater[R] {
	return func(uuid.UUID) (R, error) {
		return s.provider.FromLegacyMessage(it.Next())
	}
}

// --- title ---

// SetTitle installs a static title, canceling any active title ticker, and
// broadcasts it immediately.
func (s *Sidebar[R]) SetTitle(title string) error {
	rendered, err := s.provider.FromLegacyMessage(title)
	if err != nil {
		return sberrors.Wrap(err, sberrors.ErrCodeInvalidInput, "render title")
	}

	s.mu.Lock()
	if derr := s.checkDestroyedLocked(); derr != nil {
		s.mu.Unlock()
		return derr
	}
	s.cancelTitleTickerLocked()
	s.title = rendered
	s.titleFrame = title
	s.mu.Unlock()

	return s.broadcast("title", func(viewer uuid.UUID) error {
		return s.transport.UpdateObjectiveTitle(viewer, s.objectiveID, rendered)
	})
}

// SetTitleIterator installs an animated title source, canceling any
// previously active ticker first. Exactly one title-driving task is active
// per sidebar at a time.
func (s *Sidebar[R]) SetTitleIterator(it text.Iterator) error {
	if it == nil {
		return sberrors.New(sberrors.ErrCodeInvalidInput, "title iterator is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDestroyedLocked(); err != nil {
		return err
	}
	s.installTitleIterLocked(it)
	return nil
}

func (s *Sidebar[R]) installTitleIterLocked(it text.Iterator) {
	s.cancelTitleTickerLocked()
	s.titleIter = it
	h := s.sched.ScheduleRecurring(0, s.titlePeriod, s.tickTitle)
	s.titleTask = h
	s.tasks[h.ID()] = h
}

func (s *Sidebar[R]) cancelTitleTickerLocked() {
	if s.titleTask != nil {
		s.titleTask.Cancel()
		delete(s.tasks, s.titleTask.ID())
		s.titleTask = nil
	}
	s.titleIter = nil
}

// tickTitle advances the animated title one frame and broadcasts it if it
// changed. Runs on the scheduler's goroutine.
func (s *Sidebar[R]) tickTitle() {
	s.mu.Lock()
	if s.destroyed || s.titleIter == nil {
		s.mu.Unlock()
		return
	}
	next := s.titleIter.Next()
	if next == s.titleFrame {
		s.mu.Unlock()
		return
	}
	rendered, err := s.provider.FromLegacyMessage(next)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("title frame render failed", slog.String("error", err.Error()))
		return
	}
	s.titleFrame = next
	s.title = rendered
	s.mu.Unlock()

	observability.TitleUpdates.Inc()
	if err := s.broadcast("title", func(viewer uuid.UUID) error {
		return s.transport.UpdateObjectiveTitle(viewer, s.objectiveID, rendered)
	}); err != nil {
		s.log.Warn("title broadcast failed", slog.String("error", err.Error()))
	}
}

// --- viewers ---

// AddViewer attaches a viewer and syncs the full current state to it:
// objective first, then every line's row, then the reveal. Attaching an
// already-attached viewer is a no-op.
func (s *Sidebar[R]) AddViewer(id uuid.UUID) error {
	if id == uuid.Nil {
		return sberrors.New(sberrors.ErrCodeInvalidInput, "viewer id is required")
	}

	s.mu.Lock()
	if err := s.checkDestroyedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if !s.viewers.Add(id) {
		return nil
	}

	_, span := observability.Tracer().Start(context.Background(), "sidebar.add_viewer")
	defer span.End()

	// Bring ranks current before the first sync. The new viewer is excluded
	// from the recompute broadcasts: it receives its full row set below, so
	// it must not see a second create for freshly ranked lines.
	s.mu.Lock()
	ops := s.recomputeLocked()
	title := s.title
	lines := make([]*Line[R], len(s.lines))
	copy(lines, s.lines)
	s.mu.Unlock()

	var errs []error
	if err := s.dispatch(ops, id); err != nil {
		errs = append(errs, err)
	}

	deliver := func(op string, err error) {
		if err != nil {
			errs = append(errs, sberrors.Wrap(err, sberrors.ErrCodeViewerDelivery, "deliver "+op).
				WithContext("viewer", id.String()).
				WithRetryable(true))
		}
	}

	deliver("objective_create", s.transport.CreateObjective(id, s.objectiveID, title))
	for _, line := range lines {
		rank, ranked := line.Rank()
		if !ranked {
			continue
		}
		value, err := line.value(id)
		if err != nil {
			deliver("row_create", err)
			continue
		}
		deliver("row_create", s.transport.CreateRow(id, s.objectiveID, line.displayID, rank, value))
	}
	deliver("objective_display", s.transport.DisplayObjective(id, s.objectiveID))

	observability.ActiveViewers.Set(float64(s.viewers.Len()))
	s.log.Info("viewer attached", slog.String("viewer_id", id.String()))

	return stderrors.Join(errs...)
}

// RemoveViewer detaches a viewer, tearing down every row and the objective
// for that viewer only. Detaching an unknown viewer is a no-op.
func (s *Sidebar[R]) RemoveViewer(id uuid.UUID) error {
	if id == uuid.Nil {
		return sberrors.New(sberrors.ErrCodeInvalidInput, "viewer id is required")
	}

	if !s.viewers.Remove(id) {
		return nil
	}
	observability.ActiveViewers.Set(float64(s.viewers.Len()))

	var errs []error
	// Defensive repack so remaining viewers stay consistent.
	if err := s.UpdateAllLines(); err != nil && !sberrors.IsCode(err, sberrors.ErrCodeSidebarDestroyed) {
		errs = append(errs, err)
	}

	s.mu.Lock()
	lines := make([]*Line[R], len(s.lines))
	copy(lines, s.lines)
	s.mu.Unlock()

	deliver := func(op string, err error) {
		if err != nil {
			errs = append(errs, sberrors.Wrap(err, sberrors.ErrCodeViewerDelivery, "deliver "+op).
				WithContext("viewer", id.String()).
				WithRetryable(true))
		}
	}

	for _, line := range lines {
		if _, ranked := line.Rank(); !ranked {
			continue
		}
		deliver("row_remove", s.transport.RemoveRow(id, s.objectiveID, line.displayID))
	}
	deliver("objective_remove", s.transport.RemoveObjective(id, s.objectiveID))

	s.log.Info("viewer detached", slog.String("viewer_id", id.String()))
	return stderrors.Join(errs...)
}

// RemoveViewers detaches every current viewer, iterating a snapshot of the
// membership.
func (s *Sidebar[R]) RemoveViewers() error {
	var errs []error
	for _, id := range s.viewers.Snapshot() {
		if err := s.RemoveViewer(id); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Viewers returns a snapshot of the current viewer identities.
func (s *Sidebar[R]) Viewers() []uuid.UUID {
	return s.viewers.Snapshot()
}

// --- teardown ---

// Destroy cancels every owned scheduled task, tears down protocol state for
// every current viewer, and leaves the sidebar unusable. Idempotent: a
// second call is a no-op.
func (s *Sidebar[R]) Destroy() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.cancelTitleTickerLocked()
	for _, h := range s.tasks {
		h.Cancel()
	}
	s.tasks = make(map[string]scheduler.Handle)
	s.mu.Unlock()

	err := s.RemoveViewers()

	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()

	s.log.Info("sidebar destroyed")
	return err
}

// --- broadcast ---

func (s *Sidebar[R]) broadcast(op string, fn func(viewer uuid.UUID) error) error {
	return s.broadcastExcluding(op, uuid.Nil, fn)
}

// broadcastExcluding applies fn to every current viewer except exclude.
// Unresolvable viewers are pruned first; every remaining viewer is attempted
// and failures are collected into a single aggregate error.
func (s *Sidebar[R]) broadcastExcluding(op string, exclude uuid.UUID, fn func(viewer uuid.UUID) error) error {
	start := time.Now()

	if pruned := s.viewers.Prune(s.transport.Resolve); pruned > 0 {
		observability.PrunedViewers.Add(float64(pruned))
		observability.ActiveViewers.Set(float64(s.viewers.Len()))
		s.log.Debug("pruned unresolvable viewers", slog.Int("count", pruned))
	}

	snapshot := s.viewers.Snapshot()

	var (
		failMu    sync.Mutex
		failures  []error
		attempted int
	)
	g := new(errgroup.Group)
	g.SetLimit(maxBroadcastConcurrency)
	for _, viewer := range snapshot {
		if viewer == exclude {
			continue
		}
		attempted++
		g.Go(func() error {
			if err := fn(viewer); err != nil {
				observability.BroadcastFailures.WithLabelValues(op).Inc()
				failMu.Lock()
				failures = append(failures, sberrors.Wrap(err, sberrors.ErrCodeViewerDelivery, "deliver "+op).
					WithContext("viewer", viewer.String()).
					WithRetryable(true))
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	observability.Broadcasts.WithLabelValues(op).Inc()
	observability.BroadcastDuration.Observe(time.Since(start).Seconds())

	return sberrors.NewBroadcast(op, attempted, failures)
}
