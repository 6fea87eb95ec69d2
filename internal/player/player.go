// Package player tracks registered connections: the global player registry
// (spec §3 "Player registration", §4.3.1). A Player's fields are mutated
// by the session server's dispatcher goroutine, same concurrency contract as
// internal/room; the Registry itself is locked because players are added
// from their connection goroutines.
package player

import (
	"sync/atomic"
	"time"

	"github.com/gomokusrv/arbiter/internal/protocol"
)

// Writer is the narrow surface the session server's per-connection writer
// offers the rest of the server; it decouples internal/player from any
// concrete transport. A Player's Writer is nil exactly when its connection
// is presently dropped (spec §3 invariant).
type Writer interface {
	// Send enqueues env for delivery on this connection's writer.
	// Implementations must not block the dispatcher for long; the session
	// server's writer is a buffered channel drained by a dedicated
	// goroutine (spec §4.3.1).
	Send(env protocol.Envelope) error
	Close() error
}

// Player is one registered connection (spec §3).
type Player struct {
	ClientID     string
	Name         string
	SessionToken string
	RoomID       string // empty when in the lobby

	DisconnectedAt *time.Time

	// lastActivity is read by the reaper goroutine concurrently with the
	// dispatcher goroutine's writes on every inbound message, so it is kept
	// as a unix-nano atomic rather than a plain time.Time field.
	lastActivity atomic.Int64

	writer Writer
}

// New creates a freshly-accepted player with no name yet (set on
// lobby_join) and no session token yet (minted on lobby_join).
func New(clientID string, w Writer, now time.Time) *Player {
	p := &Player{
		ClientID: clientID,
		writer:   w,
	}
	p.lastActivity.Store(now.UnixNano())
	return p
}

// Writer returns the player's current writer handle, or nil if the
// connection is presently dropped.
func (p *Player) Writer() Writer { return p.writer }

// SetWriter installs w as the player's writer handle (used on reconnect).
func (p *Player) SetWriter(w Writer) { p.writer = w }

// ClearWriter marks the player's connection as dropped (spec §4.3.3 step 1).
func (p *Player) ClearWriter(now time.Time) {
	p.writer = nil
	t := now
	p.DisconnectedAt = &t
}

// Connected reports whether the player currently owns a live writer.
func (p *Player) Connected() bool { return p.writer != nil }

// Touch refreshes LastActivity, called on every inbound message (spec
// §4.3.4 reaper uses this to evict idle connections).
func (p *Player) Touch(now time.Time) { p.lastActivity.Store(now.UnixNano()) }

// LastActivity returns the timestamp of the player's most recent inbound
// message, safe to call concurrently with Touch.
func (p *Player) LastActivity() time.Time {
	return time.Unix(0, p.lastActivity.Load())
}

// InLobby reports whether the player is not currently attached to a room.
func (p *Player) InLobby() bool { return p.RoomID == "" }
