package room

import (
	"testing"
	"time"

	"github.com/gomokusrv/arbiter/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom() *Room {
	return New("room_1", "A", "alice", "Alice", engine.NewGomokuEngine(), 30*time.Second, 2, 30*time.Second)
}

func TestRoom_JoinAndStartGame(t *testing.T) {
	r := newTestRoom()
	require.False(t, r.IsFull())

	require.NoError(t, r.Join("bob", "Bob"))
	assert.True(t, r.IsFull())

	err := r.Join("carol", "Carol")
	assert.ErrorIs(t, err, ErrRoomFull)

	now := time.Now()
	require.NoError(t, r.StartGame(now))
	assert.Equal(t, Playing, r.State)
	assert.Equal(t, engine.Black, r.Roster[0].Stone)
	assert.Equal(t, engine.White, r.Roster[1].Stone)
	assert.Equal(t, 0, r.CurrentPlayerIndex)
	require.NotNil(t, r.Timer.TurnStartEpoch)
	assert.WithinDuration(t, now, *r.Timer.TurnStartEpoch, time.Millisecond)
	assert.Zero(t, r.Timer.ElapsedBeforePause)
}

func TestRoom_CommitMove_TurnFlipAndTimerReset(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	later := time.Now().Add(5 * time.Second)
	result, ok := r.CommitMove("alice", 7, 7, later)
	require.True(t, ok)
	assert.Equal(t, 0, result.MoverSeat)
	assert.False(t, result.Terminal)
	assert.Equal(t, 1, r.CurrentPlayerIndex)
	assert.Equal(t, engine.Black, r.Board.At(7, 7))
	assert.Len(t, r.MoveLog, 1)
	assert.Equal(t, *r.Timer.TurnStartEpoch, later)
	assert.Zero(t, r.Timer.ElapsedBeforePause)
}

func TestRoom_CommitMove_OutOfTurnIsDropped(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	_, ok := r.CommitMove("bob", 0, 0, time.Now())
	assert.False(t, ok, "it's alice's turn (seat 0), bob's move must be dropped")
	assert.Equal(t, engine.Empty, r.Board.At(0, 0))
}

func TestRoom_CommitMove_IllegalDuplicateCellDropped(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	_, ok := r.CommitMove("alice", 7, 7, time.Now())
	require.True(t, ok)
	_, ok = r.CommitMove("bob", 7, 7, time.Now())
	assert.False(t, ok, "occupied cell must be dropped even though it is bob's turn")
}

func TestRoom_CommitMove_NonMemberDropped(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	_, ok := r.CommitMove("mallory", 0, 0, time.Now())
	assert.False(t, ok)
}

func TestRoom_CommitMove_PausedDropped(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))
	require.NoError(t, r.Pause("alice", time.Now()))

	_, ok := r.CommitMove("alice", 0, 0, time.Now())
	assert.False(t, ok)
}

func TestRoom_CommitMove_WinTransitionsToFinished(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	// Alice (black) lines up five on row 0; Bob (white) plays elsewhere.
	for i := 0; i < 4; i++ {
		_, ok := r.CommitMove("alice", 0, i, time.Now())
		require.True(t, ok)
		_, ok = r.CommitMove("bob", 5, i, time.Now())
		require.True(t, ok)
	}
	result, ok := r.CommitMove("alice", 0, 4, time.Now())
	require.True(t, ok)
	assert.True(t, result.Terminal)
	assert.Equal(t, "alice", result.WinnerID)
	assert.Equal(t, Finished, r.State)
	assert.Equal(t, "alice", r.Winner)
}

func TestRoom_Resign_OpponentWins(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	winner, ok := r.Resign("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", winner)
	assert.Equal(t, Finished, r.State)
}

func TestRoom_PauseResume_RebaseFromRemainingTurn(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	require.NoError(t, r.Pause("alice", time.Now()))
	assert.Equal(t, Paused, r.State)
	assert.Nil(t, r.Timer.TurnStartEpoch)

	now := time.Now()
	require.NoError(t, r.Resume("alice", 22500*time.Millisecond, now))
	assert.Equal(t, Playing, r.State)
	assert.Equal(t, 7500*time.Millisecond, r.Timer.ElapsedBeforePause)
	assert.Equal(t, now, *r.Timer.TurnStartEpoch)
}

func TestRoom_ResumeEnforced_RejectsNonInitiator(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))
	require.NoError(t, r.Pause("alice", time.Now()))

	err := r.ResumeEnforced("bob", 10*time.Second, time.Now())
	assert.ErrorIs(t, err, ErrNotInitiator)
}

func TestRoom_Leave_HostTransfer(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))

	wasHost := r.Leave("alice")
	assert.True(t, wasHost)
	assert.False(t, r.IsEmpty())
	assert.Equal(t, "bob", r.HostID)
	assert.Equal(t, "bob", r.NewHostID())
}

func TestRoom_Leave_LastMemberEmptiesRoom(t *testing.T) {
	r := newTestRoom()
	r.Leave("alice")
	assert.True(t, r.IsEmpty())
}

func TestRoom_Forfeit(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	r.Leave("bob")
	r.Forfeit("alice")
	assert.Equal(t, Finished, r.State)
	assert.Equal(t, "alice", r.Winner)
}

func TestRoom_ResetForRematch(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))
	r.Resign("alice")
	require.Equal(t, Finished, r.State)

	require.NoError(t, r.ResetForRematch(time.Now()))
	assert.Equal(t, Playing, r.State)
	assert.Empty(t, r.MoveLog)
	assert.Equal(t, 0, r.Board.StoneCount())
}

func TestRoom_BoardMirrorStoneCountMatchesMoveLog(t *testing.T) {
	r := newTestRoom()
	require.NoError(t, r.Join("bob", "Bob"))
	require.NoError(t, r.StartGame(time.Now()))

	for i := 0; i < 3; i++ {
		_, ok := r.CommitMove("alice", 1, i, time.Now())
		require.True(t, ok)
		_, ok = r.CommitMove("bob", 2, i, time.Now())
		require.True(t, ok)
	}
	assert.Equal(t, len(r.MoveLog), r.Board.StoneCount(), "invariant I2")
}
