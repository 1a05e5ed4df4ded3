// Package wire defines the JSON frame model that concrete transports use to
// deliver objective and row operations to viewers. The engine itself never
// depends on this package; it speaks the Transport interface.
package wire

import (
	"encoding/json"
	"time"
)

// Op identifies a protocol frame type.
type Op string

const (
	OpObjectiveCreate  Op = "objective_create"
	OpObjectiveDisplay Op = "objective_display"
	OpObjectiveRemove  Op = "objective_remove"
	OpTitleUpdate      Op = "title_update"
	OpRowCreate        Op = "row_create"
	OpRowUpdate        Op = "row_update"
	OpRowRemove        Op = "row_remove"
)

// Frame is one operation delivered to one viewer.
type Frame struct {
	Op          Op        `json:"op"`
	ObjectiveID string    `json:"objective_id"`
	RowID       string    `json:"row_id,omitempty"`
	Rank        int       `json:"rank,omitempty"`
	PrevRank    int       `json:"prev_rank,omitempty"`
	Value       string    `json:"value,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Encode serializes the frame to JSON, stamping the timestamp if unset.
func (f Frame) Encode() ([]byte, error) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	return json.Marshal(f)
}

// Decode parses a JSON frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
