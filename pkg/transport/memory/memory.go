// Package memory provides an in-process recording Transport for tests and
// embedded use. It keeps the protocol state the way a remote viewer would
// see it and records every delivered frame in order.
package memory

import (
	"sync"

	"github.com/google/uuid"

	sberrors "github.com/odvcencio/sideboard/pkg/errors"
	"github.com/odvcencio/sideboard/pkg/transport/wire"
)

// Row is one protocol row as a viewer sees it.
type Row struct {
	Rank  int
	Value string
}

// Objective is the titled board container as a viewer sees it.
type Objective struct {
	Title     string
	Displayed bool
	Rows      map[string]Row
}

// Transport records per-viewer protocol state. Safe for concurrent use.
type Transport struct {
	mu           sync.Mutex
	objectives   map[uuid.UUID]map[string]*Objective
	frames       map[uuid.UUID][]wire.Frame
	unresolvable map[uuid.UUID]bool
	failures     map[uuid.UUID]error
}

// New creates an empty recording transport.
func New() *Transport {
	return &Transport{
		objectives:   make(map[uuid.UUID]map[string]*Objective),
		frames:       make(map[uuid.UUID][]wire.Frame),
		unresolvable: make(map[uuid.UUID]bool),
		failures:     make(map[uuid.UUID]error),
	}
}

func (t *Transport) deliver(viewer uuid.UUID, f wire.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.failures[viewer]; err != nil {
		return err
	}
	t.frames[viewer] = append(t.frames[viewer], f)
	return nil
}

func (t *Transport) objective(viewer uuid.UUID, objectiveID string) *Objective {
	views, ok := t.objectives[viewer]
	if !ok {
		views = make(map[string]*Objective)
		t.objectives[viewer] = views
	}
	obj, ok := views[objectiveID]
	if !ok {
		obj = &Objective{Rows: make(map[string]Row)}
		views[objectiveID] = obj
	}
	return obj
}

func (t *Transport) CreateObjective(viewer uuid.UUID, objectiveID string, title string) error {
	if err := t.deliver(viewer, wire.Frame{Op: wire.OpObjectiveCreate, ObjectiveID: objectiveID, Value: title}); err != nil {
		return err
	}
	t.mu.Lock()
	t.objective(viewer, objectiveID).Title = title
	t.mu.Unlock()
	return nil
}

func (t *Transport) DisplayObjective(viewer uuid.UUID, objectiveID string) error {
	if err := t.deliver(viewer, wire.Frame{Op: wire.OpObjectiveDisplay, ObjectiveID: objectiveID}); err != nil {
		return err
	}
	t.mu.Lock()
	t.objective(viewer, objectiveID).Displayed = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) RemoveObjective(viewer uuid.UUID, objectiveID string) error {
	if err := t.deliver(viewer, wire.Frame{Op: wire.OpObjectiveRemove, ObjectiveID: objectiveID}); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.objectives[viewer], objectiveID)
	t.mu.Unlock()
	return nil
}

func (t *Transport) UpdateObjectiveTitle(viewer uuid.UUID, objectiveID string, title string) error {
	if err := t.deliver(viewer, wire.Frame{Op: wire.OpTitleUpdate, ObjectiveID: objectiveID, Value: title}); err != nil {
		return err
	}
	t.mu.Lock()
	t.objective(viewer, objectiveID).Title = title
	t.mu.Unlock()
	return nil
}

func (t *Transport) CreateRow(viewer uuid.UUID, objectiveID, rowID string, rank int, value string) error {
	if err := t.deliver(viewer, wire.Frame{Op: wire.OpRowCreate, ObjectiveID: objectiveID, RowID: rowID, Rank: rank, Value: value}); err != nil {
		return err
	}
	t.mu.Lock()
	t.objective(viewer, objectiveID).Rows[rowID] = Row{Rank: rank, Value: value}
	t.mu.Unlock()
	return nil
}

func (t *Transport) UpdateRow(viewer uuid.UUID, objectiveID, rowID string, prevRank, newRank int, value string) error {
	if err := t.deliver(viewer, wire.Frame{Op: wire.OpRowUpdate, ObjectiveID: objectiveID, RowID: rowID, Rank: newRank, PrevRank: prevRank, Value: value}); err != nil {
		return err
	}
	t.mu.Lock()
	t.objective(viewer, objectiveID).Rows[rowID] = Row{Rank: newRank, Value: value}
	t.mu.Unlock()
	return nil
}

func (t *Transport) RemoveRow(viewer uuid.UUID, objectiveID, rowID string) error {
	if err := t.deliver(viewer, wire.Frame{Op: wire.OpRowRemove, ObjectiveID: objectiveID, RowID: rowID}); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.objective(viewer, objectiveID).Rows, rowID)
	t.mu.Unlock()
	return nil
}

// Resolve reports whether the viewer is still reachable.
func (t *Transport) Resolve(viewer uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.unresolvable[viewer]
}

// SetUnresolvable marks a viewer as gone; the next broadcast prunes it.
func (t *Transport) SetUnresolvable(viewer uuid.UUID, gone bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unresolvable[viewer] = gone
}

// FailWith injects a delivery error for all subsequent operations to viewer.
// Pass nil to clear.
func (t *Transport) FailWith(viewer uuid.UUID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.failures, viewer)
		return
	}
	t.failures[viewer] = err
}

// Frames returns every frame delivered to viewer, in order.
func (t *Transport) Frames(viewer uuid.UUID) []wire.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]wire.Frame, len(t.frames[viewer]))
	copy(out, t.frames[viewer])
	return out
}

// FramesByOp returns frames of one operation type delivered to viewer.
func (t *Transport) FramesByOp(viewer uuid.UUID, op wire.Op) []wire.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []wire.Frame
	for _, f := range t.frames[viewer] {
		if f.Op == op {
			out = append(out, f)
		}
	}
	return out
}

// Rows returns the viewer's current rows for an objective, keyed by row id.
func (t *Transport) Rows(viewer uuid.UUID, objectiveID string) map[string]Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	views, ok := t.objectives[viewer]
	if !ok {
		return nil
	}
	obj, ok := views[objectiveID]
	if !ok {
		return nil
	}
	out := make(map[string]Row, len(obj.Rows))
	for id, row := range obj.Rows {
		out[id] = row
	}
	return out
}

// ObjectiveState returns a copy of the viewer's objective, or nil if absent.
func (t *Transport) ObjectiveState(viewer uuid.UUID, objectiveID string) *Objective {
	t.mu.Lock()
	defer t.mu.Unlock()
	views, ok := t.objectives[viewer]
	if !ok {
		return nil
	}
	obj, ok := views[objectiveID]
	if !ok {
		return nil
	}
	rows := make(map[string]Row, len(obj.Rows))
	for id, row := range obj.Rows {
		rows[id] = row
	}
	return &Objective{Title: obj.Title, Displayed: obj.Displayed, Rows: rows}
}

// FailClosed returns a canned transport-closed error, for failure injection.
func FailClosed() error {
	return sberrors.New(sberrors.ErrCodeTransportClosed, "transport closed")
}
