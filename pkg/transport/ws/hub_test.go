package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sideboard/pkg/transport/wire"
)

func dialHub(t *testing.T, h *Hub, viewer uuid.UUID) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, h.Attach(viewer, w, r))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitResolved(t *testing.T, h *Hub, viewer uuid.UUID, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Resolve(viewer) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("viewer %s resolve state never became %v", viewer, want)
}

func TestHubDeliversFrames(t *testing.T) {
	h := NewHub(nil)
	viewer := uuid.New()
	conn := dialHub(t, h, viewer)
	waitResolved(t, h, viewer, true)

	require.NoError(t, h.CreateObjective(viewer, "PS-abc", "Stats"))
	require.NoError(t, h.CreateRow(viewer, "PS-abc", "PS-abc1", 3, "alpha"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wire.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, wire.OpObjectiveCreate, f.Op)
	assert.Equal(t, "PS-abc", f.ObjectiveID)
	assert.Equal(t, "Stats", f.Value)
	assert.False(t, f.Timestamp.IsZero())

	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, wire.OpRowCreate, f.Op)
	assert.Equal(t, "PS-abc1", f.RowID)
	assert.Equal(t, 3, f.Rank)
}

func TestHubResolveUnknownViewer(t *testing.T) {
	h := NewHub(nil)
	assert.False(t, h.Resolve(uuid.New()))

	err := h.CreateObjective(uuid.New(), "PS-abc", "Stats")
	require.Error(t, err)
}

func TestHubDetach(t *testing.T) {
	h := NewHub(nil)
	viewer := uuid.New()
	dialHub(t, h, viewer)
	waitResolved(t, h, viewer, true)

	h.Detach(viewer)
	waitResolved(t, h, viewer, false)
}

func TestHubDisconnectCallback(t *testing.T) {
	h := NewHub(nil)

	var mu sync.Mutex
	var gone []uuid.UUID
	h.OnDisconnect(func(id uuid.UUID) {
		mu.Lock()
		gone = append(gone, id)
		mu.Unlock()
	})

	viewer := uuid.New()
	conn := dialHub(t, h, viewer)
	waitResolved(t, h, viewer, true)

	conn.Close()
	waitResolved(t, h, viewer, false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(gone)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gone, 1)
	assert.Equal(t, viewer, gone[0])
}

func TestHubShutdownClosesAll(t *testing.T) {
	h := NewHub(nil)
	v1 := uuid.New()
	v2 := uuid.New()
	dialHub(t, h, v1)
	dialHub(t, h, v2)
	waitResolved(t, h, v1, true)
	waitResolved(t, h, v2, true)

	h.Shutdown()
	assert.Empty(t, h.Viewers())
}
