package player

import (
	"testing"
	"time"

	"github.com/gomokusrv/arbiter/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddGetRemove(t *testing.T) {
	reg := NewRegistry()
	p := New("c1", nil, time.Now())
	reg.Add(p)

	got, ok := reg.Get("c1")
	require.True(t, ok)
	assert.Same(t, p, got)

	reg.Remove("c1")
	_, ok = reg.Get("c1")
	assert.False(t, ok)
}

func TestRegistry_Add_DuplicateClientIDPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Add(New("dup", nil, time.Now()))
	assert.Panics(t, func() {
		reg.Add(New("dup", nil, time.Now()))
	})
}

func TestRegistry_SessionTokenUniqueness(t *testing.T) {
	reg := NewRegistry()
	assert.True(t, reg.BindToken("alice", "tok-1"))
	assert.False(t, reg.BindToken("bob", "tok-1"), "token already owned by alice")
	assert.True(t, reg.BindToken("alice", "tok-1"), "rebinding the same owner is fine")

	id, ok := reg.ClientIDForToken("tok-1")
	require.True(t, ok)
	assert.Equal(t, "alice", id)
}

func TestPlayer_ConnectedAndClearWriter(t *testing.T) {
	p := New("c1", fakeWriter{}, time.Now())
	assert.True(t, p.Connected())

	now := time.Now()
	p.ClearWriter(now)
	assert.False(t, p.Connected())
	require.NotNil(t, p.DisconnectedAt)
	assert.Equal(t, now, *p.DisconnectedAt)
}

type fakeWriter struct{}

func (fakeWriter) Send(_ protocol.Envelope) error { return nil }
func (fakeWriter) Close() error                   { return nil }
