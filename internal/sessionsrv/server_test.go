package sessionsrv

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gomokusrv/arbiter/internal/config"
	"github.com/gomokusrv/arbiter/internal/engine"
	"github.com/gomokusrv/arbiter/internal/protocol"
)

// testClient is a minimal real-socket test double for the spec's client
// session (component C4): a raw TCP connection plus a goroutine draining
// inbound envelopes into a channel, matching the "real net.Pipe()/loopback
// TCP" test-tooling guidance over a mocked socket.
type testClient struct {
	conn   net.Conn
	writer *protocol.Writer
	inbox  chan protocol.Envelope

	mu   sync.Mutex
	done bool
}

func newTestClient(t *testing.T, addr net.Addr) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)

	tc := &testClient{
		conn:   conn,
		writer: protocol.NewWriter(conn),
		inbox:  make(chan protocol.Envelope, 32),
	}
	go tc.readLoop()
	t.Cleanup(tc.close)
	return tc
}

func (tc *testClient) readLoop() {
	reader := protocol.NewReader(tc.conn, 64*1024)
	for {
		env, err := reader.ReadMessage()
		if err != nil {
			return
		}
		tc.inbox <- env
	}
}

func (tc *testClient) close() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if !tc.done {
		tc.done = true
		tc.conn.Close()
	}
}

func (tc *testClient) send(t *testing.T, typ protocol.Type, data any) {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, data, 0)
	require.NoError(t, err)
	require.NoError(t, tc.writer.WriteMessage(env))
}

func (tc *testClient) expect(t *testing.T, typ protocol.Type) protocol.Envelope {
	t.Helper()
	select {
	case env := <-tc.inbox:
		require.Equal(t, typ, env.Type, "unexpected message type")
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", typ)
		return protocol.Envelope{}
	}
}

func startTestServer(t *testing.T) (*Server, net.Addr) {
	t.Helper()
	cfg := config.DefaultServer()
	cfg.ReaperDeadline = time.Hour
	cfg.StatsInterval = time.Hour

	srv := New(cfg, &engine.GomokuEngine{}, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go srv.Serve(ctx, ln)
	return srv, ln.Addr()
}

// TestTwoPlayerHappyPath replays spec.md §8 scenario 1: lobby join, room
// create/join, the personalized game_started fan-out, and a move producing
// timer_sync for the mover and game_move for the opponent.
func TestTwoPlayerHappyPath(t *testing.T) {
	_, addr := startTestServer(t)

	alice := newTestClient(t, addr)
	alice.send(t, protocol.TypeLobbyJoin, protocol.LobbyJoinData{PlayerName: "Alice"})
	joined := alice.expect(t, protocol.TypeLobbyJoined)
	var aliceJoined protocol.LobbyJoinedData
	require.NoError(t, joined.Decode(&aliceJoined))
	alice.expect(t, protocol.TypeRoomList)

	alice.send(t, protocol.TypeRoomCreate, protocol.RoomCreateData{RoomName: "A"})
	roomInfo := alice.expect(t, protocol.TypeRoomInfo)
	var info protocol.RoomInfoData
	require.NoError(t, roomInfo.Decode(&info))
	require.Equal(t, 1, info.RoomInfo.Players)

	bob := newTestClient(t, addr)
	bob.send(t, protocol.TypeLobbyJoin, protocol.LobbyJoinData{PlayerName: "Bob"})
	bob.expect(t, protocol.TypeLobbyJoined)
	bob.expect(t, protocol.TypeRoomList)

	bob.send(t, protocol.TypeRoomJoin, protocol.RoomJoinData{RoomID: info.RoomInfo.RoomID})
	bob.expect(t, protocol.TypeRoomInfo)

	aliceRoomInfo := alice.expect(t, protocol.TypeRoomInfo)
	var aliceInfo protocol.RoomInfoData
	require.NoError(t, aliceRoomInfo.Decode(&aliceInfo))
	require.Equal(t, 2, aliceInfo.RoomInfo.Players)

	aliceStarted := alice.expect(t, protocol.TypeGameStarted)
	var aliceGS protocol.GameStartedData
	require.NoError(t, aliceStarted.Decode(&aliceGS))
	require.Equal(t, "black", aliceGS.YourRole)
	require.True(t, aliceGS.YourTurn)

	bobStarted := bob.expect(t, protocol.TypeGameStarted)
	var bobGS protocol.GameStartedData
	require.NoError(t, bobStarted.Decode(&bobGS))
	require.Equal(t, "white", bobGS.YourRole)
	require.False(t, bobGS.YourTurn)

	alice.send(t, protocol.TypeGameMove, protocol.GameMoveData{Row: 7, Col: 7, PlayerID: 1})

	timerSyncEnv := alice.expect(t, protocol.TypeTimerSync)
	var syncData protocol.TimerSyncData
	require.NoError(t, timerSyncEnv.Decode(&syncData))
	require.InDelta(t, 0, syncData.TimerState.ElapsedBeforePause, 0.5)

	move := bob.expect(t, protocol.TypeGameMove)
	var moveData protocol.GameMoveData
	require.NoError(t, move.Decode(&moveData))
	require.Equal(t, "Alice", moveData.Player)
	require.Equal(t, 7, moveData.Row)
	require.Equal(t, 7, moveData.Col)
	require.Equal(t, 1, moveData.PlayerID)
}

// TestDisconnectForfeit replays spec.md §8 scenario 2: a mid-game TCP drop
// produces game_ended_disconnect for the survivor.
func TestDisconnectForfeit(t *testing.T) {
	_, addr := startTestServer(t)

	alice := newTestClient(t, addr)
	alice.send(t, protocol.TypeLobbyJoin, protocol.LobbyJoinData{PlayerName: "Alice"})
	alice.expect(t, protocol.TypeLobbyJoined)
	alice.expect(t, protocol.TypeRoomList)
	alice.send(t, protocol.TypeRoomCreate, protocol.RoomCreateData{RoomName: "A"})
	roomInfo := alice.expect(t, protocol.TypeRoomInfo)
	var info protocol.RoomInfoData
	require.NoError(t, roomInfo.Decode(&info))

	bob := newTestClient(t, addr)
	bob.send(t, protocol.TypeLobbyJoin, protocol.LobbyJoinData{PlayerName: "Bob"})
	bob.expect(t, protocol.TypeLobbyJoined)
	bob.expect(t, protocol.TypeRoomList)
	bob.send(t, protocol.TypeRoomJoin, protocol.RoomJoinData{RoomID: info.RoomInfo.RoomID})
	bob.expect(t, protocol.TypeRoomInfo)
	alice.expect(t, protocol.TypeRoomInfo)
	alice.expect(t, protocol.TypeGameStarted)
	bob.expect(t, protocol.TypeGameStarted)

	bob.close()

	ended := alice.expect(t, protocol.TypeGameEndedDisconnect)
	var data protocol.GameEndedDisconnectData
	require.NoError(t, ended.Decode(&data))
	require.Equal(t, "opponent_disconnected", data.Reason)
	require.Equal(t, "Bob", data.DisconnectedPlayer)
	require.Equal(t, "Alice", data.Winner)
	require.True(t, data.Forfeit)
	require.True(t, data.NoRematch)
}
