// Package ws delivers sidebar protocol frames to browser viewers over
// WebSocket connections. Each attached viewer owns one connection; frames
// are JSON-encoded wire frames pushed through a buffered per-viewer channel.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	sberrors "github.com/odvcencio/sideboard/pkg/errors"
	"github.com/odvcencio/sideboard/pkg/observability"
	"github.com/odvcencio/sideboard/pkg/transport/wire"
)

const (
	sendBuffer   = 100
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
)

// Hub fans sidebar frames out to connected WebSocket viewers. It implements
// the sidebar transport contract: Resolve reports false once a viewer's
// connection is gone, so stale viewers get pruned on the next broadcast.
type Hub struct {
	logger   *observability.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[uuid.UUID]*viewerConn

	// onDisconnect, when set, runs after a viewer's connection closes.
	onDisconnect func(uuid.UUID)
}

type viewerConn struct {
	id      uuid.UUID
	conn    *websocket.Conn
	send    chan wire.Frame
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// NewHub creates an empty hub.
func NewHub(logger *observability.Logger) *Hub {
	if logger == nil {
		logger = observability.NewLogger("ws_hub", slog.LevelInfo)
	}
	return &Hub{
		logger: logger,
		conns:  make(map[uuid.UUID]*viewerConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// OnDisconnect registers a callback invoked after a viewer's connection
// closes for any reason. Set it before serving traffic.
func (h *Hub) OnDisconnect(fn func(uuid.UUID)) {
	h.mu.Lock()
	h.onDisconnect = fn
	h.mu.Unlock()
}

// Attach upgrades the request to a WebSocket connection and registers it
// under the given viewer id. An existing connection for the same viewer is
// replaced.
func (h *Hub) Attach(viewer uuid.UUID, w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return sberrors.Wrap(err, sberrors.ErrCodeTransportClosed, "websocket upgrade failed")
	}

	vc := &viewerConn{
		id:   viewer,
		conn: conn,
		send: make(chan wire.Frame, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if prev, ok := h.conns[viewer]; ok {
		prev.close()
	}
	h.conns[viewer] = vc
	h.mu.Unlock()

	observability.WebsocketConnections.Inc()
	h.logger.Info("viewer connection established",
		slog.String("viewer_id", viewer.String()),
		slog.String("remote_addr", r.RemoteAddr),
	)

	go vc.writePump()
	go h.readPump(vc)
	return nil
}

// Detach closes and removes a viewer's connection if one exists.
func (h *Hub) Detach(viewer uuid.UUID) {
	h.mu.Lock()
	vc, ok := h.conns[viewer]
	if ok {
		delete(h.conns, viewer)
	}
	h.mu.Unlock()
	if ok {
		vc.close()
	}
}

// Resolve reports whether the viewer currently has a live connection.
func (h *Hub) Resolve(viewer uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[viewer]
	return ok
}

// Viewers returns the ids of all currently connected viewers.
func (h *Hub) Viewers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	return out
}

// Shutdown closes every connection. The hub can keep accepting new
// attachments afterward; callers stop routing to it instead.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*viewerConn, 0, len(h.conns))
	for _, vc := range h.conns {
		conns = append(conns, vc)
	}
	h.conns = make(map[uuid.UUID]*viewerConn)
	h.mu.Unlock()

	for _, vc := range conns {
		vc.close()
	}
}

// --- sidebar transport contract ---

func (h *Hub) CreateObjective(viewer uuid.UUID, objectiveID string, title string) error {
	return h.push(viewer, wire.Frame{Op: wire.OpObjectiveCreate, ObjectiveID: objectiveID, Value: title})
}

func (h *Hub) DisplayObjective(viewer uuid.UUID, objectiveID string) error {
	return h.push(viewer, wire.Frame{Op: wire.OpObjectiveDisplay, ObjectiveID: objectiveID})
}

func (h *Hub) RemoveObjective(viewer uuid.UUID, objectiveID string) error {
	return h.push(viewer, wire.Frame{Op: wire.OpObjectiveRemove, ObjectiveID: objectiveID})
}

func (h *Hub) UpdateObjectiveTitle(viewer uuid.UUID, objectiveID string, title string) error {
	return h.push(viewer, wire.Frame{Op: wire.OpTitleUpdate, ObjectiveID: objectiveID, Value: title})
}

func (h *Hub) CreateRow(viewer uuid.UUID, objectiveID, rowID string, rank int, value string) error {
	return h.push(viewer, wire.Frame{Op: wire.OpRowCreate, ObjectiveID: objectiveID, RowID: rowID, Rank: rank, Value: value})
}

func (h *Hub) UpdateRow(viewer uuid.UUID, objectiveID, rowID string, prevRank, newRank int, value string) error {
	return h.push(viewer, wire.Frame{Op: wire.OpRowUpdate, ObjectiveID: objectiveID, RowID: rowID, Rank: newRank, PrevRank: prevRank, Value: value})
}

func (h *Hub) RemoveRow(viewer uuid.UUID, objectiveID, rowID string) error {
	return h.push(viewer, wire.Frame{Op: wire.OpRowRemove, ObjectiveID: objectiveID, RowID: rowID})
}

func (h *Hub) push(viewer uuid.UUID, f wire.Frame) error {
	f.Timestamp = time.Now().UTC()

	h.mu.RLock()
	vc, ok := h.conns[viewer]
	h.mu.RUnlock()
	if !ok {
		return sberrors.New(sberrors.ErrCodeTransportClosed, "viewer has no connection").
			WithContext("viewer", viewer.String())
	}

	select {
	case vc.send <- f:
		return nil
	default:
		// Channel full: the viewer is too slow to keep up. Drop the frame
		// rather than block the broadcast; the next full sync repairs it.
		observability.WebsocketBackpressureDrops.Inc()
		h.logger.Warn("viewer send buffer full, dropping frame",
			slog.String("viewer_id", viewer.String()),
			slog.String("op", string(f.Op)),
		)
		return nil
	}
}

// readPump drains client messages to keep pong handling alive. Viewers never
// send application data; any read error ends the connection.
func (h *Hub) readPump(vc *viewerConn) {
	defer func() {
		h.remove(vc)
		vc.close()
	}()

	vc.conn.SetReadLimit(512)
	vc.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	vc.conn.SetPongHandler(func(string) error {
		vc.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := vc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn("viewer read error",
					slog.String("viewer_id", vc.id.String()),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

func (vc *viewerConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		vc.conn.Close()
	}()

	for {
		select {
		case f := <-vc.send:
			vc.writeMu.Lock()
			vc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := vc.conn.WriteJSON(f)
			vc.writeMu.Unlock()
			if err != nil {
				return
			}

		case <-ticker.C:
			vc.writeMu.Lock()
			vc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := vc.conn.WriteMessage(websocket.PingMessage, nil)
			vc.writeMu.Unlock()
			if err != nil {
				return
			}

		case <-vc.done:
			vc.writeMu.Lock()
			_ = vc.conn.WriteMessage(websocket.CloseMessage, []byte{})
			vc.writeMu.Unlock()
			return
		}
	}
}

func (vc *viewerConn) close() {
	vc.once.Do(func() { close(vc.done) })
}

// remove unregisters the connection and fires the disconnect callback once.
func (h *Hub) remove(vc *viewerConn) {
	h.mu.Lock()
	cur, ok := h.conns[vc.id]
	if ok && cur == vc {
		delete(h.conns, vc.id)
	} else {
		ok = false
	}
	fn := h.onDisconnect
	h.mu.Unlock()

	observability.WebsocketConnections.Dec()
	if ok && fn != nil {
		fn(vc.id)
	}
}
