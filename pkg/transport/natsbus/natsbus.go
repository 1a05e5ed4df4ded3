// Package natsbus delivers sidebar protocol frames over NATS subjects, one
// subject per viewer. A gateway process subscribes on behalf of its viewers
// and forwards frames to the actual client connections, which lets a single
// sidebar engine serve viewers spread across multiple edge processes.
package natsbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	sberrors "github.com/odvcencio/sideboard/pkg/errors"
	"github.com/odvcencio/sideboard/pkg/transport/wire"
)

// Config controls the NATS connection and subject layout.
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	Timeout       time.Duration
}

// DefaultConfig returns a config suitable for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "sideboard",
		SubjectPrefix: "sideboard.viewer",
		Timeout:       30 * time.Second,
	}
}

// Transport publishes wire frames to per-viewer NATS subjects. Resolve is
// tied to presence registration: a gateway announces a viewer with Announce
// and withdraws it with Withdraw; unannounced viewers are considered gone.
type Transport struct {
	conn    *nats.Conn
	config  Config
	ownConn bool
	closed  atomic.Bool

	mu      sync.RWMutex
	present map[uuid.UUID]bool
}

// New connects to NATS and returns a transport.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "sideboard.viewer"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, sberrors.Wrap(err, sberrors.ErrCodeTransportClosed, "nats connect")
	}

	t := NewFromConn(conn, cfg)
	t.ownConn = true
	return t, nil
}

// NewFromConn wraps an existing connection. Useful for testing with an
// embedded server; the caller keeps ownership of the connection.
func NewFromConn(conn *nats.Conn, cfg Config) *Transport {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "sideboard.viewer"
	}
	return &Transport{
		conn:    conn,
		config:  cfg,
		present: make(map[uuid.UUID]bool),
	}
}

// Announce registers a viewer as present, making Resolve return true.
func (t *Transport) Announce(viewer uuid.UUID) {
	t.mu.Lock()
	t.present[viewer] = true
	t.mu.Unlock()
}

// Withdraw removes a viewer's presence.
func (t *Transport) Withdraw(viewer uuid.UUID) {
	t.mu.Lock()
	delete(t.present, viewer)
	t.mu.Unlock()
}

// Subject returns the NATS subject frames for the viewer are published to.
func (t *Transport) Subject(viewer uuid.UUID) string {
	return t.config.SubjectPrefix + "." + viewer.String()
}

// Resolve reports whether the viewer is announced and the connection is up.
func (t *Transport) Resolve(viewer uuid.UUID) bool {
	if t.closed.Load() || t.conn.Status() != nats.CONNECTED {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.present[viewer]
}

// Close drains presence and, when the transport owns the connection, closes
// it.
func (t *Transport) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	t.present = make(map[uuid.UUID]bool)
	t.mu.Unlock()
	if t.ownConn {
		t.conn.Close()
	}
}

func (t *Transport) CreateObjective(viewer uuid.UUID, objectiveID string, title string) error {
	return t.publish(viewer, wire.Frame{Op: wire.OpObjectiveCreate, ObjectiveID: objectiveID, Value: title})
}

func (t *Transport) DisplayObjective(viewer uuid.UUID, objectiveID string) error {
	return t.publish(viewer, wire.Frame{Op: wire.OpObjectiveDisplay, ObjectiveID: objectiveID})
}

func (t *Transport) RemoveObjective(viewer uuid.UUID, objectiveID string) error {
	return t.publish(viewer, wire.Frame{Op: wire.OpObjectiveRemove, ObjectiveID: objectiveID})
}

func (t *Transport) UpdateObjectiveTitle(viewer uuid.UUID, objectiveID string, title string) error {
	return t.publish(viewer, wire.Frame{Op: wire.OpTitleUpdate, ObjectiveID: objectiveID, Value: title})
}

func (t *Transport) CreateRow(viewer uuid.UUID, objectiveID, rowID string, rank int, value string) error {
	return t.publish(viewer, wire.Frame{Op: wire.OpRowCreate, ObjectiveID: objectiveID, RowID: rowID, Rank: rank, Value: value})
}

func (t *Transport) UpdateRow(viewer uuid.UUID, objectiveID, rowID string, prevRank, newRank int, value string) error {
	return t.publish(viewer, wire.Frame{Op: wire.OpRowUpdate, ObjectiveID: objectiveID, RowID: rowID, Rank: newRank, PrevRank: prevRank, Value: value})
}

func (t *Transport) RemoveRow(viewer uuid.UUID, objectiveID, rowID string) error {
	return t.publish(viewer, wire.Frame{Op: wire.OpRowRemove, ObjectiveID: objectiveID, RowID: rowID})
}

func (t *Transport) publish(viewer uuid.UUID, f wire.Frame) error {
	if t.closed.Load() {
		return sberrors.New(sberrors.ErrCodeTransportClosed, "transport is closed")
	}
	data, err := f.Encode()
	if err != nil {
		return err
	}
	if err := t.conn.Publish(t.Subject(viewer), data); err != nil {
		return sberrors.Wrap(err, sberrors.ErrCodeTransportClosed, "publish frame").
			WithContext("subject", t.Subject(viewer))
	}
	return nil
}
