package sidebar

import (
	"github.com/google/uuid"
)

// Transport delivers objective and row state to individual viewers. The
// wire encoding is the transport's concern; the engine only decides what to
// send to whom. Implementations must be safe for concurrent use: broadcasts
// fan out from multiple goroutines.
type Transport[R any] interface {
	// CreateObjective creates the titled board container for one viewer.
	CreateObjective(viewer uuid.UUID, objectiveID string, title R) error

	// DisplayObjective reveals the objective to the viewer. Called after
	// the viewer's rows exist so an empty board is never visible.
	DisplayObjective(viewer uuid.UUID, objectiveID string) error

	// RemoveObjective tears down the objective for one viewer.
	RemoveObjective(viewer uuid.UUID, objectiveID string) error

	// UpdateObjectiveTitle replaces the displayed title for one viewer.
	UpdateObjectiveTitle(viewer uuid.UUID, objectiveID string, title R) error

	// CreateRow creates a new protocol row at the given rank.
	CreateRow(viewer uuid.UUID, objectiveID, rowID string, rank int, value R) error

	// UpdateRow moves an existing row from prevRank to newRank.
	UpdateRow(viewer uuid.UUID, objectiveID, rowID string, prevRank, newRank int, value R) error

	// RemoveRow deletes a row for one viewer.
	RemoveRow(viewer uuid.UUID, objectiveID, rowID string) error

	// Resolve reports whether the viewer identity is still reachable.
	// Broadcasts prune viewers for which this returns false.
	Resolve(viewer uuid.UUID) bool
}
