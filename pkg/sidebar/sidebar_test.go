package sidebar_test

import (
	stderrors "errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sberrors "github.com/odvcencio/sideboard/pkg/errors"
	"github.com/odvcencio/sideboard/pkg/scheduler"
	"github.com/odvcencio/sideboard/pkg/sidebar"
	"github.com/odvcencio/sideboard/pkg/text"
	"github.com/odvcencio/sideboard/pkg/transport/memory"
	"github.com/odvcencio/sideboard/pkg/transport/wire"
)

type fixture struct {
	sb    *sidebar.Sidebar[string]
	tr    *memory.Transport
	sched *scheduler.Manual
}

func newFixture(t *testing.T, opts ...sidebar.Option) *fixture {
	t.Helper()
	tr := memory.New()
	sched := scheduler.NewManual()
	sb, err := sidebar.New[string]("&6Stats", text.Plain{}, tr, sched, opts...)
	require.NoError(t, err)
	return &fixture{sb: sb, tr: tr, sched: sched}
}

func TestNewValidatesCollaborators(t *testing.T) {
	tr := memory.New()
	sched := scheduler.NewManual()

	_, err := sidebar.New[string]("t", nil, tr, sched)
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeInvalidInput))

	_, err = sidebar.New[string]("t", text.Plain{}, nil, sched)
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeInvalidInput))

	_, err = sidebar.New[string]("t", text.Plain{}, tr, nil)
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeInvalidInput))
}

func TestObjectiveIDDeterministicWithEntropy(t *testing.T) {
	mk := func() string {
		f := newFixture(t, sidebar.WithEntropy(rand.New(rand.NewPCG(7, 7))))
		return f.sb.ObjectiveID()
	}
	first := mk()
	assert.Equal(t, first, mk())
	assert.Len(t, first, len("PS-")+3)
	assert.Equal(t, "PS-", first[:3])
}

func TestDescendingRankAssignment(t *testing.T) {
	f := newFixture(t)
	a, err := f.sb.AddTextLine("alpha")
	require.NoError(t, err)
	b, err := f.sb.AddTextLine("beta")
	require.NoError(t, err)
	c, err := f.sb.AddTextLine("gamma")
	require.NoError(t, err)

	require.NoError(t, f.sb.UpdateAllLines())

	rank, ok := a.Rank()
	require.True(t, ok)
	assert.Equal(t, 3, rank)
	rank, _ = b.Rank()
	assert.Equal(t, 2, rank)
	rank, _ = c.Rank()
	assert.Equal(t, 1, rank)
}

func TestShiftLineRepacksRanks(t *testing.T) {
	f := newFixture(t)
	a, _ := f.sb.AddTextLine("alpha")
	b, _ := f.sb.AddTextLine("beta")
	c, _ := f.sb.AddTextLine("gamma")
	require.NoError(t, f.sb.UpdateAllLines())

	require.NoError(t, f.sb.ShiftLine(c, 0))

	rank, _ := c.Rank()
	assert.Equal(t, 3, rank)
	rank, _ = a.Rank()
	assert.Equal(t, 2, rank)
	rank, _ = b.Rank()
	assert.Equal(t, 1, rank)
}

func TestShiftLineOffsetOutOfRange(t *testing.T) {
	f := newFixture(t)
	a, _ := f.sb.AddTextLine("alpha")
	assert.True(t, sberrors.IsCode(f.sb.ShiftLine(a, -1), sberrors.ErrCodeInvalidInput))
	assert.True(t, sberrors.IsCode(f.sb.ShiftLine(a, 1), sberrors.ErrCodeInvalidInput))
}

func TestAddViewerSyncsFullState(t *testing.T) {
	f := newFixture(t)
	f.sb.AddTextLine("alpha")
	f.sb.AddTextLine("beta")

	viewer := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))

	frames := f.tr.Frames(viewer)
	require.NotEmpty(t, frames)
	assert.Equal(t, wire.OpObjectiveCreate, frames[0].Op)
	assert.Equal(t, wire.OpObjectiveDisplay, frames[len(frames)-1].Op)
	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpRowCreate), 2)

	state := f.tr.ObjectiveState(viewer, f.sb.ObjectiveID())
	require.NotNil(t, state)
	assert.True(t, state.Displayed)
	assert.Equal(t, "Stats", state.Title)
	assert.Len(t, state.Rows, 2)
}

func TestAddViewerIdempotent(t *testing.T) {
	f := newFixture(t)
	f.sb.AddTextLine("alpha")
	f.sb.AddTextLine("beta")
	f.sb.AddTextLine("gamma")

	viewer := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))
	require.NoError(t, f.sb.AddViewer(viewer))
	require.NoError(t, f.sb.AddViewer(viewer))

	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpObjectiveCreate), 1)
	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpRowCreate), 3)
	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpObjectiveDisplay), 1)
	assert.Len(t, f.sb.Viewers(), 1)
}

func TestAddViewerNilID(t *testing.T) {
	f := newFixture(t)
	err := f.sb.AddViewer(uuid.Nil)
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeInvalidInput))
}

func TestRemoveViewerTearsDownState(t *testing.T) {
	f := newFixture(t)
	f.sb.AddTextLine("alpha")
	f.sb.AddTextLine("beta")

	viewer := uuid.New()
	other := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))
	require.NoError(t, f.sb.AddViewer(other))

	require.NoError(t, f.sb.RemoveViewer(viewer))

	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpRowRemove), 2)
	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpObjectiveRemove), 1)
	// The other viewer keeps its objective untouched.
	assert.Empty(t, f.tr.FramesByOp(other, wire.OpObjectiveRemove))
	assert.Len(t, f.sb.Viewers(), 1)

	// Detach is idempotent: no further frames for an unknown viewer.
	before := len(f.tr.Frames(viewer))
	require.NoError(t, f.sb.RemoveViewer(viewer))
	assert.Len(t, f.tr.Frames(viewer), before)
}

func TestUpdateAllLinesBroadcastsOnlyChanges(t *testing.T) {
	f := newFixture(t)
	viewer := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))

	a, _ := f.sb.AddTextLine("alpha")
	require.NoError(t, f.sb.UpdateAllLines())
	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpRowCreate), 1)

	// Ranks are already correct; a second pass sends nothing.
	require.NoError(t, f.sb.UpdateAllLines())
	assert.Len(t, f.tr.Frames(viewer), 3) // objective create + display + one row create

	_ = a
}

func TestRemoveLineRepacksAndRemoves(t *testing.T) {
	f := newFixture(t)
	a, _ := f.sb.AddTextLine("alpha")
	b, _ := f.sb.AddTextLine("beta")
	c, _ := f.sb.AddTextLine("gamma")
	require.NoError(t, f.sb.UpdateAllLines())

	viewer := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))

	require.NoError(t, f.sb.RemoveLine(a))

	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpRowRemove), 1)
	rank, _ := b.Rank()
	assert.Equal(t, 2, rank)
	rank, _ = c.Rank()
	assert.Equal(t, 1, rank)
	assert.Len(t, f.sb.Lines(), 2)
}

func TestRemoveLineNotMember(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)
	foreign, _ := other.sb.AddTextLine("foreign")
	err := f.sb.RemoveLine(foreign)
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeInvalidInput))
}

func TestUpdateLineRequiresMembership(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)
	foreign, _ := other.sb.AddTextLine("foreign")
	err := f.sb.UpdateLine(foreign)
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeInvalidInput))
}

func TestUpdateLineUnrankedIsNoop(t *testing.T) {
	f := newFixture(t)
	viewer := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))
	line, _ := f.sb.AddTextLine("pending")

	before := len(f.tr.Frames(viewer))
	require.NoError(t, f.sb.UpdateLine(line))
	assert.Len(t, f.tr.Frames(viewer), before)
}

func TestPrivateScheduleSkipsGlobalRecompute(t *testing.T) {
	f := newFixture(t)
	a, _ := f.sb.AddTextLine("alpha")
	b, _ := f.sb.AddTextLine("beta")
	require.NoError(t, f.sb.UpdateAllLines())

	h, err := f.sb.UpdateLinePeriodically(a, 0, time.Second)
	require.NoError(t, err)

	viewer := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))

	// Move b above a: a keeps its rank because its own task owns it.
	require.NoError(t, f.sb.ShiftLine(b, 0))

	rankA, _ := a.Rank()
	rankB, _ := b.Rank()
	assert.Equal(t, 2, rankA, "line with private schedule keeps its rank")
	assert.Equal(t, 2, rankB, "shifted line takes the top rank slot")

	// After the task is canceled the next pass repacks a normally.
	h.Cancel()
	require.NoError(t, f.sb.UpdateAllLines())
	rankA, _ = a.Rank()
	assert.Equal(t, 1, rankA)
}

func TestUpdatableLinePerViewerValues(t *testing.T) {
	f := newFixture(t)
	v1 := uuid.New()
	v2 := uuid.New()

	_, err := f.sb.AddUpdatableLine(func(viewer uuid.UUID) (string, error) {
		if viewer == v1 {
			return "first", nil
		}
		return "second", nil
	})
	require.NoError(t, err)

	require.NoError(t, f.sb.AddViewer(v1))
	require.NoError(t, f.sb.AddViewer(v2))

	frames1 := f.tr.FramesByOp(v1, wire.OpRowCreate)
	frames2 := f.tr.FramesByOp(v2, wire.OpRowCreate)
	require.Len(t, frames1, 1)
	require.Len(t, frames2, 1)
	assert.Equal(t, "first", frames1[0].Value)
	assert.Equal(t, "second", frames2[0].Value)
}

func TestBroadcastPrunesUnresolvableViewers(t *testing.T) {
	f := newFixture(t)
	stale := uuid.New()
	live := uuid.New()
	require.NoError(t, f.sb.AddViewer(stale))
	require.NoError(t, f.sb.AddViewer(live))

	f.tr.SetUnresolvable(stale, true)

	require.NoError(t, f.sb.SetTitle("&aUpdated"))

	assert.Len(t, f.sb.Viewers(), 1)
	assert.Empty(t, f.tr.FramesByOp(stale, wire.OpTitleUpdate))
	assert.Len(t, f.tr.FramesByOp(live, wire.OpTitleUpdate), 1)
}

func TestBroadcastFailureIsolation(t *testing.T) {
	f := newFixture(t)
	bad := uuid.New()
	good := uuid.New()
	require.NoError(t, f.sb.AddViewer(bad))
	require.NoError(t, f.sb.AddViewer(good))

	f.tr.FailWith(bad, memory.FailClosed())

	err := f.sb.SetTitle("&aUpdated")
	require.Error(t, err)

	var bcast *sberrors.BroadcastError
	require.True(t, stderrors.As(err, &bcast))
	assert.Equal(t, 2, bcast.Attempted)
	assert.Len(t, bcast.Failures, 1)
	assert.True(t, sberrors.IsCode(bcast.Failures[0], sberrors.ErrCodeViewerDelivery))

	// The healthy viewer was still delivered to.
	assert.Len(t, f.tr.FramesByOp(good, wire.OpTitleUpdate), 1)
}

func TestSetTitleCancelsIterator(t *testing.T) {
	tr := memory.New()
	sched := scheduler.NewManual()
	iter, err := text.FramesOf("one", "two", "three")
	require.NoError(t, err)

	sb, err := sidebar.NewAnimated[string](iter, text.Plain{}, tr, sched)
	require.NoError(t, err)
	assert.Equal(t, 1, sched.Active())

	require.NoError(t, sb.SetTitle("static"))
	assert.Equal(t, 0, sched.Active())
	assert.Equal(t, "static", sb.Title())
}

func TestAnimatedTitleAdvancesPerTick(t *testing.T) {
	tr := memory.New()
	sched := scheduler.NewManual()
	iter, err := text.FramesOf("one", "two")
	require.NoError(t, err)

	sb, err := sidebar.NewAnimated[string](iter, text.Plain{}, tr, sched)
	require.NoError(t, err)
	assert.Equal(t, "one", sb.Title())

	viewer := uuid.New()
	require.NoError(t, sb.AddViewer(viewer))

	sched.Tick()
	assert.Equal(t, "two", sb.Title())
	assert.Len(t, tr.FramesByOp(viewer, wire.OpTitleUpdate), 1)

	sched.Tick()
	assert.Equal(t, "one", sb.Title())
	assert.Len(t, tr.FramesByOp(viewer, wire.OpTitleUpdate), 2)
}

func TestSetTitleIteratorReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	it1, err := text.FramesOf("a", "b")
	require.NoError(t, err)
	it2, err := text.FramesOf("x", "y")
	require.NoError(t, err)

	require.NoError(t, f.sb.SetTitleIterator(it1))
	require.NoError(t, f.sb.SetTitleIterator(it2))
	assert.Equal(t, 1, f.sched.Active(), "exactly one title task active")
}

func TestUpdateLinesPeriodically(t *testing.T) {
	f := newFixture(t)
	viewer := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))

	_, err := f.sb.UpdateLinesPeriodically(0, time.Second)
	require.NoError(t, err)

	f.sb.AddTextLine("deferred")
	f.sched.Tick()

	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpRowCreate), 1)
}

func TestToLineUpdaterAdvancesIterator(t *testing.T) {
	f := newFixture(t)
	iter, err := text.FramesOf("f1", "f2")
	require.NoError(t, err)

	up := f.sb.ToLineUpdater(iter)
	v, err := up(uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "f1", v)
	v, _ = up(uuid.New())
	assert.Equal(t, "f2", v)
}

func TestDestroyIdempotent(t *testing.T) {
	f := newFixture(t)
	f.sb.AddTextLine("alpha")
	line, _ := f.sb.AddTextLine("beta")
	require.NoError(t, f.sb.UpdateAllLines())

	_, err := f.sb.UpdateLinesPeriodically(0, time.Second)
	require.NoError(t, err)
	_, err = f.sb.UpdateLinePeriodically(line, 0, time.Second)
	require.NoError(t, err)

	viewer := uuid.New()
	require.NoError(t, f.sb.AddViewer(viewer))

	require.NoError(t, f.sb.Destroy())
	assert.Equal(t, 0, f.sched.Active())
	assert.Empty(t, f.sb.Viewers())
	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpObjectiveRemove), 1)

	require.NoError(t, f.sb.Destroy())
	assert.Len(t, f.tr.FramesByOp(viewer, wire.OpObjectiveRemove), 1)
}

func TestDestroyedSidebarRejectsMutations(t *testing.T) {
	f := newFixture(t)
	line, _ := f.sb.AddTextLine("alpha")
	require.NoError(t, f.sb.Destroy())

	_, err := f.sb.AddTextLine("late")
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeSidebarDestroyed))
	assert.True(t, sberrors.IsCode(f.sb.UpdateAllLines(), sberrors.ErrCodeSidebarDestroyed))
	assert.True(t, sberrors.IsCode(f.sb.SetTitle("x"), sberrors.ErrCodeSidebarDestroyed))
	assert.True(t, sberrors.IsCode(f.sb.AddViewer(uuid.New()), sberrors.ErrCodeSidebarDestroyed))
	assert.True(t, sberrors.IsCode(f.sb.RemoveLine(line), sberrors.ErrCodeSidebarDestroyed))
	_, err = f.sb.UpdateLinesPeriodically(0, time.Second)
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeSidebarDestroyed))
}

func TestMaxMinLine(t *testing.T) {
	f := newFixture(t)

	_, ok := f.sb.MaxLine()
	assert.False(t, ok)

	a, _ := f.sb.AddTextLine("alpha")
	c, _ := f.sb.AddTextLine("gamma")

	// Unranked lines are excluded until a recompute assigns ranks.
	_, ok = f.sb.MinLine()
	assert.False(t, ok)

	require.NoError(t, f.sb.UpdateAllLines())

	maxLine, ok := f.sb.MaxLine()
	require.True(t, ok)
	assert.Same(t, a, maxLine)
	minLine, ok := f.sb.MinLine()
	require.True(t, ok)
	assert.Same(t, c, minLine)
}

func TestDisplayIDsNeverReused(t *testing.T) {
	f := newFixture(t)
	a, _ := f.sb.AddTextLine("alpha")
	require.NoError(t, f.sb.RemoveLine(a))
	b, _ := f.sb.AddTextLine("beta")
	assert.NotEqual(t, a.DisplayID(), b.DisplayID())
}

func TestConcurrentViewerChurn(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.sb.AddTextLine("line")
	}
	require.NoError(t, f.sb.UpdateAllLines())

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 32)
	for i := range ids {
		ids[i] = uuid.New()
	}
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.sb.AddViewer(id)
			_ = f.sb.UpdateAllLines()
			_ = f.sb.RemoveViewer(id)
		}()
	}
	wg.Wait()

	assert.Empty(t, f.sb.Viewers())
}
