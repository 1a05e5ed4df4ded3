package errors

import (
	"fmt"
	"strings"
)

// BroadcastError aggregates the per-viewer delivery failures of a single
// broadcast. It is returned only after every viewer in the broadcast was
// attempted; callers may treat it as partial success.
type BroadcastError struct {
	// Op names the broadcast operation ("title", "row_create", ...).
	Op string
	// Attempted is the number of viewers the broadcast was delivered to.
	Attempted int
	// Failures holds one VIEWER_DELIVERY error per failed viewer.
	Failures []error
}

// NewBroadcast builds the aggregate error for a partially failed broadcast.
// Returns nil when failures is empty.
func NewBroadcast(op string, attempted int, failures []error) error {
	if len(failures) == 0 {
		return nil
	}
	return &BroadcastError{Op: op, Attempted: attempted, Failures: failures}
}

// Error implements the error interface
func (e *BroadcastError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s broadcast failed for %d of %d viewers",
		ErrCodeBroadcastFailed, e.Op, len(e.Failures), e.Attempted))
	for _, f := range e.Failures {
		sb.WriteString("\n  ")
		sb.WriteString(f.Error())
	}
	return sb.String()
}

// Unwrap exposes the per-viewer failures to errors.Is/As
func (e *BroadcastError) Unwrap() []error {
	return e.Failures
}
