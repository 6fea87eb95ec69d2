// Package sessionsrv implements the session server (spec §4.3, component
// C3): per-connection read loops, the global player registry, the lobby,
// message dispatch, graceful-forfeit on disconnect, and the periodic
// reaper.
package sessionsrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gomokusrv/arbiter/internal/config"
	"github.com/gomokusrv/arbiter/internal/engine"
	"github.com/gomokusrv/arbiter/internal/player"
	"github.com/gomokusrv/arbiter/internal/protocol"
	"github.com/gomokusrv/arbiter/internal/room"
)

// HistoryStore is the narrow interface the dispatcher uses to append
// completed matches to the optional archive (SPEC_FULL.md §11.6). A nil
// HistoryStore disables archiving without any other code path changing.
type HistoryStore interface {
	RecordMatch(ctx context.Context, m MatchRecord)
}

// MatchRecord describes one finished room for the archive.
type MatchRecord struct {
	RoomID     string
	Players    []string
	Winner     string
	Reason     string
	MoveCount  int
	StartedAt  time.Time
	FinishedAt time.Time
}

type workItem struct {
	clientID string
	env      protocol.Envelope
}

// Server is the session server (spec component C3).
type Server struct {
	cfg    config.Server
	engine engine.Engine
	clock  func() time.Time

	players *player.Registry
	rooms   *roomRegistry
	history HistoryStore

	// work is the single-consumer dispatch queue (spec §4.3.1): readers
	// enqueue, the dispatcher goroutine is the sole consumer. A Go channel
	// already gives us the "FIFO guarded by one mutex" the spec describes
	// in a language without channels; no extra locking is needed here.
	work chan workItem

	mu       sync.Mutex
	listener net.Listener

	roomStartedAt map[string]time.Time

	// lastSweepRoomCount is read and written only by the reaper goroutine,
	// across successive reapOnce calls (spec §12.2's per-sweep summary).
	lastSweepRoomCount int
}

// New constructs a Server. history may be nil to disable match archiving.
func New(cfg config.Server, eng engine.Engine, history HistoryStore) *Server {
	return &Server{
		cfg:           cfg,
		engine:        eng,
		clock:         time.Now,
		players:       player.NewRegistry(),
		rooms:         newRoomRegistry(),
		history:       history,
		work:          make(chan workItem, 1024),
		roomStartedAt: make(map[string]time.Time),
	}
}

// Addr returns the bound listener address, or nil before Run/Serve starts.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run binds a TCP listener on cfg.BindAddress:cfg.Port and serves it until
// ctx is canceled (spec §6.3).
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the acceptor and dispatcher against an already-bound listener,
// returning when ctx is canceled. Exposed separately so tests can pass a
// net.Listener bound to an ephemeral port (mirrors the teacher's
// Server.Serve split for testability).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		s.dispatchLoop(ctx)
	}()

	go func() {
		defer wg.Done()
		slog.Info("session server started", "address", ln.Addr())
		s.acceptLoop(ctx, ln)
	}()

	go func() {
		defer wg.Done()
		s.runReaper(ctx)
	}()

	go func() {
		defer wg.Done()
		s.runStatsLogger(ctx)
	}()

	wg.Wait()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			slog.Error("accept failed", "error", err)
			continue
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, netConn net.Conn) {
	clientID := newClientID()
	conn := NewConn(netConn, defaultSendQueueSize, defaultWriteTimeout)
	defer conn.Close()

	now := s.clock()
	p := player.New(clientID, conn, now)
	s.players.Add(p)

	slog.Info("new connection", "client", clientID, "remote", netConn.RemoteAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	reader := protocol.NewReader(netConn, s.cfg.MaxFrameBytes)
	idleTimeout := s.cfg.ReadIdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}
	silenceTimeout := s.cfg.SilenceTimeout
	if silenceTimeout <= 0 {
		silenceTimeout = 60 * time.Second
	}
	lastRead := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := netConn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			s.enqueueDisconnect(clientID)
			return
		}
		env, err := reader.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				// Idle read timeout is a local poll of ctx/shutdown, not a
				// connection failure by itself (spec §5); only the 60s
				// silence window or reaper's 90s deadline end the session.
				if time.Since(lastRead) >= silenceTimeout {
					slog.Info("silence timeout, closing connection", "client", clientID)
					s.enqueueDisconnect(clientID)
					return
				}
				continue
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				slog.Warn("malformed frame dropped", "client", clientID, "error", err)
				lastRead = time.Now()
				continue
			}
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				slog.Warn("frame too large, closing connection", "client", clientID)
				s.enqueueDisconnect(clientID)
				return
			}
			if errors.Is(err, io.EOF) {
				slog.Info("client disconnected", "client", clientID)
			} else {
				slog.Warn("read error", "client", clientID, "error", err)
			}
			s.enqueueDisconnect(clientID)
			return
		}
		lastRead = time.Now()
		if env.Type == "" {
			// A zero Envelope with no error only happens on a blank line,
			// which is simply skipped (spec §4.1: "non-empty fragment").
			continue
		}
		s.work <- workItem{clientID: clientID, env: env}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *Server) enqueueDisconnect(clientID string) {
	s.work <- workItem{clientID: clientID, env: protocol.Envelope{Type: typeInternalDisconnect}}
}

// typeInternalDisconnect is a server-local pseudo-type routed through the
// same single-consumer queue as every other message, so a disconnect is
// totally ordered against in-flight room mutations exactly like any other
// event (spec §4.3.1).
const typeInternalDisconnect protocol.Type = "__internal_disconnect"

func (s *Server) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.work:
			s.dispatch(ctx, item)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, item workItem) {
	p, ok := s.players.Get(item.clientID)
	if !ok {
		return // player already fully removed (e.g. duplicate disconnect)
	}
	if item.env.Type != typeInternalDisconnect {
		p.Touch(s.clock())
	}

	switch item.env.Type {
	case typeInternalDisconnect:
		s.handleDisconnect(ctx, p)
	case protocol.TypePing:
		s.handlePing(p)
	case protocol.TypeLobbyJoin:
		s.handleLobbyJoin(p, item.env)
	case protocol.TypeRoomCreate:
		s.handleRoomCreate(p, item.env)
	case protocol.TypeRoomJoin:
		s.handleRoomJoin(p, item.env)
	case protocol.TypeRoomLeave:
		s.handleRoomLeave(ctx, p)
	case protocol.TypeRoomList:
		s.handleRoomListRequest(p)
	case protocol.TypeGameMove:
		s.handleGameMove(ctx, p, item.env)
	case protocol.TypePlayerPause:
		s.handlePlayerPause(p, item.env)
	case protocol.TypePlayerResume:
		s.handlePlayerResume(p, item.env)
	case protocol.TypePlayerResign:
		s.handlePlayerResign(ctx, p, item.env)
	case protocol.TypeNewGameRequest:
		s.handleNewGameRequest(p, item.env)
	case protocol.TypeNewGameResp:
		s.handleNewGameResponse(p, item.env)
	default:
		// Unknown type tag: logged and ignored for forward compatibility
		// (spec §4.1).
		slog.Debug("unknown message type", "client", p.ClientID, "type", item.env.Type)
	}
}

func (s *Server) handlePing(p *player.Player) {
	s.send(p, protocol.TypePong, struct{}{})
}

// send is a small helper shared by every handler: build an envelope, and on
// failure just log — per spec §7 "errors are handled locally... none
// surface across the dispatcher/handler boundary".
func (s *Server) send(p *player.Player, typ protocol.Type, data any) {
	w := p.Writer()
	if w == nil {
		return
	}
	env, err := protocol.NewEnvelope(typ, data, float64(s.clock().UnixNano())/1e9)
	if err != nil {
		slog.Error("encoding outbound message", "type", typ, "error", err)
		return
	}
	if err := w.Send(env); err != nil {
		slog.Warn("send failed", "client", p.ClientID, "type", typ, "error", err)
	}
}

func (s *Server) sendTo(clientID string, typ protocol.Type, data any) {
	p, ok := s.players.Get(clientID)
	if !ok {
		return
	}
	s.send(p, typ, data)
}
