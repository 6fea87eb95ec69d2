package clientsrv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gomokusrv/arbiter/internal/protocol"
)

// Config tunes a Session's background loops (spec §4.4.2, §4.4.3).
type Config struct {
	KeepaliveInterval time.Duration // default 30s
	ReconnectAttempts int           // default 12
	ReconnectBackoff  time.Duration // default 5s
	MaxFrameBytes     int           // default protocol.DefaultMaxFrameBytes
}

// DefaultConfig returns the spec-named defaults.
func DefaultConfig() Config {
	return Config{
		KeepaliveInterval: 30 * time.Second,
		ReconnectAttempts: 12,
		ReconnectBackoff:  5 * time.Second,
		MaxFrameBytes:     protocol.DefaultMaxFrameBytes,
	}
}

// Session is the client-side connection to one session server (spec
// component C4). It owns one reader goroutine, one keepalive goroutine, and
// a transient reconnector goroutine spawned only on connection loss while a
// room reference is held.
type Session struct {
	cfg Config

	mu           sync.Mutex
	conn         net.Conn
	writer       *protocol.Writer
	host         string
	port         int
	name         string
	sessionToken string
	roomID       string // empty while in the lobby; spec §4.4.2 reconnect gate
	closed       bool

	stopReader    chan struct{}
	stopKeepalive chan struct{}

	handlersMu sync.RWMutex
	handlers   map[protocol.Type][]func(protocol.Envelope)

	events *eventBus
}

// New constructs an unconnected Session.
func New(cfg Config) *Session {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 30 * time.Second
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 12
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	s := &Session{
		cfg:      cfg,
		handlers: make(map[protocol.Type][]func(protocol.Envelope)),
		events:   newEventBus(),
	}
	s.registerBookkeepingHandlers()
	return s
}

// OnMessage registers handler for every envelope of type typ (spec §4.4.1).
// Multiple handlers for the same type all run, in registration order.
func (s *Session) OnMessage(typ protocol.Type, handler func(protocol.Envelope)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[typ] = append(s.handlers[typ], handler)
}

// OnEvent subscribes to a lifecycle event (spec §4.4.1).
func (s *Session) OnEvent(name EventName, cb func(any)) {
	s.events.on(name, cb)
}

// Connect opens a TCP connection to host:port and starts the reader and
// keepalive loops (spec §4.4.1).
func (s *Session) Connect(host string, port int) error {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 10*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to %s:%d: %w", host, port, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.writer = protocol.NewWriter(conn)
	s.host, s.port = host, port
	s.closed = false
	s.stopReader = make(chan struct{})
	s.stopKeepalive = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(conn, s.stopReader)
	go s.keepaliveLoop(s.stopKeepalive)

	s.events.emit(EventConnect, nil)
	return nil
}

// Disconnect tears the connection down cleanly. suppressEvent is true while
// a reconnection attempt is already driving the lifecycle, so the plain
// "disconnect" callback doesn't fire twice (spec §4.4.1).
func (s *Session) Disconnect() {
	s.disconnect(false)
}

func (s *Session) disconnect(suppressEvent bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	stopReader := s.stopReader
	stopKeepalive := s.stopKeepalive
	s.mu.Unlock()

	if stopReader != nil {
		close(stopReader)
	}
	if stopKeepalive != nil {
		close(stopKeepalive)
	}
	if conn != nil {
		conn.Close()
	}
	if !suppressEvent {
		s.events.emit(EventDisconnect, nil)
	}
}

// Send envelopes data under typ and writes one line (spec §4.4.1). A write
// failure is treated as connection loss.
func (s *Session) Send(typ protocol.Type, data any) bool {
	s.mu.Lock()
	writer := s.writer
	s.mu.Unlock()
	if writer == nil {
		return false
	}
	env, err := protocol.NewEnvelope(typ, data, nowSeconds())
	if err != nil {
		s.events.emit(EventError, err)
		return false
	}
	if err := writer.WriteMessage(env); err != nil {
		s.onConnectionLoss(err)
		return false
	}
	return true
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// --- typed helpers (spec §4.4.1) ---

func (s *Session) JoinLobby(name string) bool {
	return s.Send(protocol.TypeLobbyJoin, protocol.LobbyJoinData{PlayerName: name, SessionToken: s.SessionToken()})
}

func (s *Session) CreateRoom(roomName string) bool {
	return s.Send(protocol.TypeRoomCreate, protocol.RoomCreateData{RoomName: roomName})
}

func (s *Session) JoinRoom(roomID string) bool {
	return s.Send(protocol.TypeRoomJoin, protocol.RoomJoinData{RoomID: roomID})
}

func (s *Session) LeaveRoom() bool {
	return s.Send(protocol.TypeRoomLeave, struct{}{})
}

func (s *Session) GetRooms() bool {
	return s.Send(protocol.TypeRoomList, struct{}{})
}

func (s *Session) SendGameMove(row, col, playerID int) bool {
	return s.Send(protocol.TypeGameMove, protocol.GameMoveData{Row: row, Col: col, PlayerID: playerID})
}

// SessionToken returns the token minted on the last successful lobby_join,
// used to re-authenticate on reconnect (spec §4.4.2).
func (s *Session) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionToken
}

// InRoom reports whether the session currently holds a room reference (spec
// §4.4.2's reconnection gate).
func (s *Session) InRoom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID != ""
}

func (s *Session) readLoop(conn net.Conn, stop chan struct{}) {
	reader := protocol.NewReader(conn, s.cfg.MaxFrameBytes)
	for {
		select {
		case <-stop:
			return
		default:
		}
		env, err := reader.ReadMessage()
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			// Malformed frame: reported and dropped, the connection stays up.
			s.events.emit(EventError, err)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.onConnectionLoss(err)
			} else {
				s.events.emit(EventError, err)
				s.onConnectionLoss(err)
			}
			return
		}
		s.dispatch(env)
	}
}

func (s *Session) dispatch(env protocol.Envelope) {
	s.handlersMu.RLock()
	hs := append([]func(protocol.Envelope){}, s.handlers[env.Type]...)
	s.handlersMu.RUnlock()
	for _, h := range hs {
		h(env)
	}
}

// registerBookkeepingHandlers installs the internal handlers that track
// session_token and room_id from server traffic, independent of whatever
// handlers the UI layer registers for the same message types.
func (s *Session) registerBookkeepingHandlers() {
	s.OnMessage(protocol.TypeLobbyJoined, func(env protocol.Envelope) {
		var data protocol.LobbyJoinedData
		if err := env.Decode(&data); err != nil {
			return
		}
		s.mu.Lock()
		s.sessionToken = data.SessionToken
		s.name = data.Name
		s.mu.Unlock()
	})
	s.OnMessage(protocol.TypeGameStarted, func(env protocol.Envelope) {
		var data protocol.GameStartedData
		if err := env.Decode(&data); err != nil {
			return
		}
		s.mu.Lock()
		s.roomID = data.RoomID
		s.mu.Unlock()
	})
	s.OnMessage(protocol.TypeRoomInfo, func(env protocol.Envelope) {
		var data protocol.RoomInfoData
		if err := env.Decode(&data); err != nil {
			return
		}
		if data.Success {
			s.mu.Lock()
			s.roomID = data.RoomInfo.RoomID
			s.mu.Unlock()
		}
	})
	clearRoom := func(protocol.Envelope) {
		s.mu.Lock()
		s.roomID = ""
		s.mu.Unlock()
	}
	s.OnMessage(protocol.TypeGameEndedDisconnect, clearRoom)
	s.OnMessage(protocol.TypePlayerLeftRoom, func(protocol.Envelope) {})
}

// onConnectionLoss implements spec §4.4.2: reconnect if a room reference is
// held, otherwise a plain disconnect.
func (s *Session) onConnectionLoss(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	holdingRoom := s.roomID != ""
	s.mu.Unlock()

	slog.Warn("connection lost", "error", cause, "holding_room", holdingRoom)

	if !holdingRoom {
		s.disconnect(false)
		return
	}

	s.disconnect(true) // suppress the plain "disconnect" event; reconnectLoop owns the lifecycle now
	s.events.emit(EventConnectionLost, cause)
	go s.reconnectLoop()
}
