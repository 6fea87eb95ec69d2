package sessionsrv

import (
	"context"
	"log/slog"
	"time"

	"github.com/gomokusrv/arbiter/internal/engine"
	"github.com/gomokusrv/arbiter/internal/player"
	"github.com/gomokusrv/arbiter/internal/protocol"
	"github.com/gomokusrv/arbiter/internal/room"
)

// timerWire snapshots a room's timer anchor into the wire format shared by
// timer_sync and game_move (spec §3, §6.2).
func timerWire(t room.TimerState) protocol.TimerStateWire {
	w := protocol.TimerStateWire{
		ElapsedBeforePause: t.ElapsedBeforePause.Seconds(),
		MoveTimeLimit:      t.MoveTimeLimit.Seconds(),
	}
	if t.TurnStartEpoch != nil {
		epoch := float64(t.TurnStartEpoch.UnixNano()) / 1e9
		w.TurnStartEpoch = &epoch
	}
	return w
}

// handleGameMove implements spec §4.2.2 move admission. The client-supplied
// player_id is never trusted (spec §9 redesign note): the mover's seat is
// derived from the sender's client_id, and the outbound player_id is
// seat+1.
func (s *Server) handleGameMove(ctx context.Context, p *player.Player, env protocol.Envelope) {
	var data protocol.GameMoveData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed game_move", "client", p.ClientID, "error", err)
		return
	}
	r, ok := s.rooms.get(p.RoomID)
	if !ok {
		return
	}

	now := s.clock()
	result, accepted := r.CommitMove(p.ClientID, data.Row, data.Col, now)
	if !accepted {
		slog.Warn("move dropped", "client", p.ClientID, "room", r.ID, "row", data.Row, "col", data.Col)
		return
	}

	wire := timerWire(r.Timer)
	s.send(p, protocol.TypeTimerSync, protocol.TimerSyncData{TimerState: wire})

	for _, seat := range r.Roster {
		if seat.ClientID == result.MoverID {
			continue
		}
		s.sendTo(seat.ClientID, protocol.TypeGameMove, protocol.GameMoveData{
			Player:     result.MoverName,
			Row:        result.Row,
			Col:        result.Col,
			PlayerID:   result.MoverSeat + 1,
			TimerState: wire,
		})
	}

	if result.Terminal {
		slog.Info("game finished", "room", r.ID, "status", result.Status, "winner", result.WinnerID)
		reason := "win"
		if result.Status == engine.Draw {
			reason = "draw"
		}
		s.archiveMatch(ctx, r, reason, s.roomStartedAt[r.ID], len(r.MoveLog))
	}
}

// handlePlayerPause implements spec §4.2.3/§4.2.4: the server updates its
// own authoritative timer anchor (so a later game_move/timer_sync still
// reflects reality) and relays the payload to the peer unchanged — it never
// rewrites pause_timestamp, since the peer must use the initiator's stamp
// rather than its own clock.
func (s *Server) handlePlayerPause(p *player.Player, env protocol.Envelope) {
	var data protocol.PlayerPauseData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed player_pause", "client", p.ClientID, "error", err)
		return
	}
	r, ok := s.rooms.get(p.RoomID)
	if !ok {
		return
	}
	if err := r.Pause(p.ClientID, s.clock()); err != nil {
		// Tokens are client-enforced only (spec §4.2.4); a pause arriving
		// in the wrong room state is simply dropped.
		return
	}
	s.relayToPeers(r, p.ClientID, protocol.TypePlayerPause, data)
}

// handlePlayerResume implements spec §4.2.3: the receiver rebases its own
// timer from the initiator's reported remaining_turn, then relays the
// payload unchanged.
func (s *Server) handlePlayerResume(p *player.Player, env protocol.Envelope) {
	var data protocol.PlayerResumeData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed player_resume", "client", p.ClientID, "error", err)
		return
	}
	r, ok := s.rooms.get(p.RoomID)
	if !ok {
		return
	}
	remaining := time.Duration(data.RemainingTurn * float64(time.Second))
	if err := r.Resume(p.ClientID, remaining, s.clock()); err != nil {
		return
	}
	s.relayToPeers(r, p.ClientID, protocol.TypePlayerResume, data)
}

// handlePlayerResign implements spec §4.2.1/§6.2: resignation ends the game
// in the opponent's favor, the sender gets a resign_ack, and the opponent
// receives the relayed player_resign notice.
func (s *Server) handlePlayerResign(ctx context.Context, p *player.Player, env protocol.Envelope) {
	var data protocol.PlayerResignData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed player_resign", "client", p.ClientID, "error", err)
		return
	}
	r, ok := s.rooms.get(p.RoomID)
	if !ok {
		return
	}
	startedAt := s.roomStartedAt[r.ID]
	moveCount := len(r.MoveLog)

	if _, ok := r.Resign(p.ClientID); !ok {
		return
	}

	s.relayToPeers(r, p.ClientID, protocol.TypePlayerResign, data)
	s.send(p, protocol.TypeResignAck, protocol.ResignAckData{Player: data.Player})

	slog.Info("player resigned", "room", r.ID, "client", p.ClientID, "winner", r.Winner)
	s.archiveMatch(ctx, r, "resign", startedAt, moveCount)
}

// handleNewGameRequest implements spec §6.2: the request is simply
// forwarded to every other roster member.
func (s *Server) handleNewGameRequest(p *player.Player, env protocol.Envelope) {
	var data protocol.NewGameRequestData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed new_game_request", "client", p.ClientID, "error", err)
		return
	}
	r, ok := s.rooms.get(p.RoomID)
	if !ok {
		return
	}
	s.relayToPeers(r, p.ClientID, protocol.TypeNewGameRequest, data)
}

// handleNewGameResponse implements spec §4.2.1 FINISHED -> PLAYING rematch
// transition: the response is relayed to the peer, and when accepted the
// room is reset with a fresh board and both seats receive a new
// game_started.
func (s *Server) handleNewGameResponse(p *player.Player, env protocol.Envelope) {
	var data protocol.NewGameResponseData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed new_game_response", "client", p.ClientID, "error", err)
		return
	}
	r, ok := s.rooms.get(p.RoomID)
	if !ok {
		return
	}
	s.relayToPeers(r, p.ClientID, protocol.TypeNewGameResp, data)

	if !data.Accepted {
		return
	}
	if err := r.ResetForRematch(s.clock()); err != nil {
		slog.Warn("rematch reset rejected", "room", r.ID, "error", err)
		return
	}
	slog.Info("rematch started", "room", r.ID)
	s.roomStartedAt[r.ID] = s.clock()
	s.announceGameStarted(r)
}

// relayToPeers sends data to every roster member except fromID, unchanged.
// Shared by the cooperative pause/resume/resign/rematch handlers, all of
// which are pure relays per spec §6.2.
func (s *Server) relayToPeers(r *room.Room, fromID string, typ protocol.Type, data any) {
	for _, seat := range r.Roster {
		if seat.ClientID == fromID {
			continue
		}
		s.sendTo(seat.ClientID, typ, data)
	}
}
