// Package room implements the authoritative per-room state machine (spec
// §4.2): players, board mirror, whose turn, move log, timer anchor, pause
// ledger, and lifecycle transitions. A Room is mutated exclusively by the
// session server's single dispatcher goroutine (spec §4.3.1); it carries no
// internal locking, matching the "deliberately no per-room lock" design
// in spec §5.
package room

import (
	"errors"
	"fmt"
	"time"

	"github.com/gomokusrv/arbiter/internal/engine"
)

// MaxPlayers is the fixed roster capacity (spec §3).
const MaxPlayers = 2

// State is a room's position in the lifecycle graph (spec §4.2.1).
type State int

const (
	Waiting State = iota
	Playing
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

var (
	ErrRoomFull     = errors.New("room: full")
	ErrNotInRoom    = errors.New("room: client not in roster")
	ErrWrongState   = errors.New("room: wrong state for this operation")
	ErrNotInitiator = errors.New("room: only the pause initiator may resume")
)

// Seat is one roster slot. Stone is unset (engine.Empty) until the game
// starts.
type Seat struct {
	ClientID string
	Name     string
	Stone    engine.Stone
}

// MoveRecord is one entry in the move log (spec glossary: "Move log").
type MoveRecord struct {
	PlayerName string
	Row, Col   int
}

// Room is the authoritative state for one game room.
type Room struct {
	ID     string
	Name   string
	HostID string

	Roster []Seat
	State  State

	Board              *BoardMirror
	MoveLog            []MoveRecord
	CurrentPlayerIndex int
	Winner             string // client ID of the winning seat, set on Finished

	Timer TimerState

	Paused           bool
	PauseInitiatorID string

	// PauseTokensRemaining and PauseCap are carried for completeness (spec
	// §3 "Pause ledger") but never enforced server-side (spec §4.2.4): the
	// server relays pause/resume unconditionally.
	PauseTokensRemaining map[string]int
	PauseCap             time.Duration

	moveTimeLimit      time.Duration
	defaultPauseTokens int
	engine             engine.Engine
}

// New creates an empty, Waiting room hosted by hostID/hostName.
func New(id, name, hostID, hostName string, eng engine.Engine, moveTimeLimit time.Duration, pauseTokens int, pauseCap time.Duration) *Room {
	r := &Room{
		ID:                   id,
		Name:                 name,
		HostID:               hostID,
		State:                Waiting,
		Board:                NewBoardMirror(),
		PauseTokensRemaining: make(map[string]int),
		PauseCap:             pauseCap,
		moveTimeLimit:        moveTimeLimit,
		defaultPauseTokens:   pauseTokens,
		engine:               eng,
	}
	r.Roster = append(r.Roster, Seat{ClientID: hostID, Name: hostName})
	r.PauseTokensRemaining[hostID] = pauseTokens
	return r
}

// IsFull reports whether the roster has reached MaxPlayers.
func (r *Room) IsFull() bool { return len(r.Roster) >= MaxPlayers }

// IsEmpty reports whether the roster has no members (room should be
// destroyed, spec §3 lifecycle).
func (r *Room) IsEmpty() bool { return len(r.Roster) == 0 }

// SeatIndex returns the roster index of clientID, or (-1, false).
func (r *Room) SeatIndex(clientID string) (int, bool) {
	for i, s := range r.Roster {
		if s.ClientID == clientID {
			return i, true
		}
	}
	return -1, false
}

// Join appends clientID/name to the roster (spec §4.3.2 room_join). Returns
// ErrRoomFull if the room is already at capacity; joining never changes
// state by itself — StartGame is called separately once the room fills, so
// the dispatcher can build the game_started payloads from the caller side.
func (r *Room) Join(clientID, name string) error {
	if r.IsFull() {
		return ErrRoomFull
	}
	r.Roster = append(r.Roster, Seat{ClientID: clientID, Name: name})
	r.PauseTokensRemaining[clientID] = r.defaultPauseTokens
	return nil
}

// Leave removes clientID from the roster (spec §4.3.2 room_leave). It
// reports whether the departing client was host; if so and a member
// remains, HostID moves to roster[0]. Checking for an empty room (IsEmpty)
// and notifying the new host are the caller's responsibility.
func (r *Room) Leave(clientID string) (wasHost bool) {
	idx, ok := r.SeatIndex(clientID)
	if !ok {
		return false
	}
	wasHost = r.HostID == clientID
	r.Roster = append(r.Roster[:idx], r.Roster[idx+1:]...)
	delete(r.PauseTokensRemaining, clientID)
	if wasHost && len(r.Roster) > 0 {
		r.HostID = r.Roster[0].ClientID
	}
	return wasHost
}

// StartGame transitions Waiting -> Playing once the roster is full,
// assigning seat 0 = Black (moves first), seat 1 = White (spec §4.3.2
// room_join: "roster[0] member... seat 1 (White) to roster[1]").
func (r *Room) StartGame(now time.Time) error {
	if r.State != Waiting || !r.IsFull() {
		return ErrWrongState
	}
	r.Roster[0].Stone = engine.Black
	r.Roster[1].Stone = engine.White
	r.CurrentPlayerIndex = 0
	r.State = Playing
	r.Timer = NewTimerState(now, r.moveTimeLimit)
	return nil
}

// MoveResult describes the effect of a successfully committed move, for the
// dispatcher to build outbound messages from.
type MoveResult struct {
	MoverSeat   int
	MoverID     string
	MoverName   string
	Row, Col    int
	Terminal    bool
	Status      engine.Status
	WinnerID    string
}

// CommitMove admits a move from clientID (spec §4.2.2). It returns
// (MoveResult, true) on acceptance and (zero, false) when the move is
// silently dropped per the failure semantics in spec §4.2.4 (illegal, wrong
// turn, wrong state, non-member, or paused).
func (r *Room) CommitMove(clientID string, row, col int, now time.Time) (MoveResult, bool) {
	if r.State != Playing || r.Paused {
		return MoveResult{}, false
	}
	seat, ok := r.SeatIndex(clientID)
	if !ok || seat != r.CurrentPlayerIndex {
		return MoveResult{}, false
	}
	if !r.engine.IsLegal(r.Board, row, col) {
		return MoveResult{}, false
	}

	mover := r.Roster[seat]
	r.engine.Apply(r.Board, row, col, mover.Stone)
	r.MoveLog = append(r.MoveLog, MoveRecord{PlayerName: mover.Name, Row: row, Col: col})

	status := r.engine.TerminalStatus(r.Board, engine.Move{Row: row, Col: col, Stone: mover.Stone})
	result := MoveResult{
		MoverSeat: seat,
		MoverID:   mover.ClientID,
		MoverName: mover.Name,
		Row:       row,
		Col:       col,
		Status:    status,
	}

	if winStone, won := status.WinBy(); won {
		result.Terminal = true
		for _, s := range r.Roster {
			if s.Stone == winStone {
				result.WinnerID = s.ClientID
				r.Winner = s.ClientID
			}
		}
		r.State = Finished
	} else if status == engine.Draw {
		result.Terminal = true
		r.State = Finished
	} else {
		r.CurrentPlayerIndex = (r.CurrentPlayerIndex + 1) % MaxPlayers
	}

	r.Timer.Reset(now)
	return result, true
}

// Resign ends the game in clientID's favor of the opponent (spec §4.2.1
// "player_resign from seat S -> FINISHED (winner = opponent of S)").
func (r *Room) Resign(clientID string) (winnerID string, ok bool) {
	if r.State != Playing && r.State != Paused {
		return "", false
	}
	seat, found := r.SeatIndex(clientID)
	if !found {
		return "", false
	}
	opponent := r.Roster[(seat+1)%len(r.Roster)]
	r.Winner = opponent.ClientID
	r.State = Finished
	return opponent.ClientID, true
}

// Forfeit ends the game because disconnectedID dropped its connection mid
// game (spec §4.3.3 graceful-termination policy). The room is left Finished
// with the remaining roster member (if any) declared winner; the caller is
// responsible for removing disconnectedID from the roster first.
func (r *Room) Forfeit(survivorID string) {
	r.Winner = survivorID
	r.State = Finished
}

// Pause transitions Playing -> Paused (spec §4.2.1). Cooperative: any
// roster member may initiate (spec §4.2.4 "tokens are a client-side
// fairness mechanism, not a server-enforced invariant").
func (r *Room) Pause(initiatorID string, now time.Time) error {
	if r.State != Playing {
		return ErrWrongState
	}
	if _, ok := r.SeatIndex(initiatorID); !ok {
		return ErrNotInRoom
	}
	r.Timer.Pause(now)
	r.Paused = true
	r.PauseInitiatorID = initiatorID
	r.State = Paused
	return nil
}

// Resume transitions Paused -> Playing (spec §4.2.1, §4.2.3). The server
// does not enforce the initiator-only rule (spec §4.2.3: "the server does
// not enforce this, the client refuses..."); ResumeEnforced below is
// available for deployments that want server-side enforcement (spec §8 B3
// allows either choice).
func (r *Room) Resume(initiatorID string, remainingTurn time.Duration, now time.Time) error {
	if r.State != Paused {
		return ErrWrongState
	}
	r.Timer.ResumeFrom(now, remainingTurn)
	r.Paused = false
	r.PauseInitiatorID = ""
	r.State = Playing
	return nil
}

// ResumeEnforced behaves like Resume but additionally rejects a resume from
// anyone but the original pause initiator, for deployments opting into
// server-side enforcement of spec §8 B3.
func (r *Room) ResumeEnforced(initiatorID string, remainingTurn time.Duration, now time.Time) error {
	if r.State != Paused {
		return ErrWrongState
	}
	if initiatorID != r.PauseInitiatorID {
		return ErrNotInitiator
	}
	return r.Resume(initiatorID, remainingTurn, now)
}

// ResetForRematch transitions Finished -> Playing with a fresh board (spec
// §4.2.1 "new_game_request + new_game_response(accepted) -> PLAYING").
func (r *Room) ResetForRematch(now time.Time) error {
	if r.State != Finished {
		return ErrWrongState
	}
	r.Board = NewBoardMirror()
	r.MoveLog = nil
	r.Winner = ""
	r.State = Waiting
	return r.StartGame(now)
}

// NewHostID returns the client ID of the roster's current first member,
// used right after Leave when the departing client was host and the room
// survived, to build the room_info "You are now the host!" message
// (spec §8 B4). HostID is already updated by Leave; this is a convenience
// accessor with the same value.
func (r *Room) NewHostID() string {
	if len(r.Roster) == 0 {
		return ""
	}
	return r.Roster[0].ClientID
}

// String implements fmt.Stringer for logging.
func (r *Room) String() string {
	return fmt.Sprintf("room{id=%s name=%q state=%s players=%d}", r.ID, r.Name, r.State, len(r.Roster))
}
