package natsbus

import (
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	sberrors "github.com/odvcencio/sideboard/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, "sideboard.viewer", cfg.SubjectPrefix)
	assert.NotZero(t, cfg.Timeout)
}

func TestSubjectLayout(t *testing.T) {
	tr := NewFromConn(&nats.Conn{}, Config{SubjectPrefix: "sb.viewer"})
	viewer := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	assert.Equal(t, "sb.viewer.11111111-2222-3333-4444-555555555555", tr.Subject(viewer))
}

func TestNewFromConnDefaultsPrefix(t *testing.T) {
	tr := NewFromConn(&nats.Conn{}, Config{})
	assert.Equal(t, "sideboard.viewer", tr.config.SubjectPrefix)
}

func TestPresenceLifecycle(t *testing.T) {
	tr := NewFromConn(&nats.Conn{}, Config{})
	viewer := uuid.New()

	// Unannounced viewers never resolve, regardless of connection state.
	assert.False(t, tr.Resolve(viewer))

	tr.Announce(viewer)
	tr.mu.RLock()
	present := tr.present[viewer]
	tr.mu.RUnlock()
	assert.True(t, present)

	tr.Withdraw(viewer)
	assert.False(t, tr.Resolve(viewer))
}

func TestClosedTransportRejectsPublish(t *testing.T) {
	tr := NewFromConn(&nats.Conn{}, Config{})
	tr.Close()

	err := tr.CreateObjective(uuid.New(), "PS-abc", "Stats")
	assert.True(t, sberrors.IsCode(err, sberrors.ErrCodeTransportClosed))
	assert.False(t, tr.Resolve(uuid.New()))

	// Close is idempotent.
	tr.Close()
}
