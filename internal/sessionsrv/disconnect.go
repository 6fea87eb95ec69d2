package sessionsrv

import (
	"context"
	"log/slog"
	"time"

	"github.com/gomokusrv/arbiter/internal/player"
	"github.com/gomokusrv/arbiter/internal/protocol"
	"github.com/gomokusrv/arbiter/internal/room"
)

// handleDisconnect implements the graceful-termination cascade (spec
// §4.3.3). It is reached both from a reader noticing EOF/an error and from
// the reaper evicting a stale connection — both paths funnel through the
// same dispatcher queue so the cascade is never run twice concurrently for
// one player.
func (s *Server) handleDisconnect(ctx context.Context, p *player.Player) {
	now := s.clock()
	if w := p.Writer(); w != nil {
		w.Close()
	}
	p.ClearWriter(now)

	if !p.InLobby() {
		if r, ok := s.rooms.get(p.RoomID); ok {
			if r.State == room.Playing || r.State == room.Paused {
				s.forfeitRoom(ctx, r, p.ClientID)
			} else {
				wasHost := r.Leave(p.ClientID)
				if r.IsEmpty() {
					s.rooms.remove(r.ID)
				} else if wasHost {
					newHost := r.NewHostID()
					for _, seat := range r.Roster {
						msg := protocol.RoomInfoData{Success: true, RoomInfo: roomSummary(r)}
						if seat.ClientID == newHost {
							msg.Message = "You are now the host!"
						}
						s.sendTo(seat.ClientID, protocol.TypeRoomInfo, msg)
					}
				} else {
					for _, seat := range r.Roster {
						s.sendTo(seat.ClientID, protocol.TypePlayerLeftRoom, protocol.PlayerLeftRoomData{PlayerName: p.Name})
					}
				}
				s.broadcastRoomList()
			}
		}
	}

	s.players.Remove(p.ClientID)
	slog.Info("player removed", "client", p.ClientID)
}

// forfeitRoom implements spec §4.3.3 steps 2-3: remove disconnectedID,
// declare the survivor winner, notify them, and destroy the room if it is
// now empty.
func (s *Server) forfeitRoom(ctx context.Context, r *room.Room, disconnectedID string) {
	disconnectedName := ""
	for _, seat := range r.Roster {
		if seat.ClientID == disconnectedID {
			disconnectedName = seat.Name
		}
	}

	startedAt := s.roomStartedAt[r.ID]
	moveCount := len(r.MoveLog)

	r.Leave(disconnectedID)
	var survivorID string
	if len(r.Roster) > 0 {
		survivorID = r.Roster[0].ClientID
	}
	r.Forfeit(survivorID)

	if survivorID != "" {
		s.sendTo(survivorID, protocol.TypeGameEndedDisconnect, protocol.GameEndedDisconnectData{
			Reason:             "opponent_disconnected",
			DisconnectedPlayer: disconnectedName,
			Winner:             winnerName(r, survivorID),
			Message:            disconnectedName + " disconnected. You win!",
			Forfeit:            true,
			NoRematch:          true,
		})
		s.sendTo(survivorID, protocol.TypeRoomInfo, protocol.RoomInfoData{Success: true, RoomInfo: roomSummary(r)})
	}

	s.archiveMatch(ctx, r, "opponent_disconnected", startedAt, moveCount)

	if r.IsEmpty() {
		s.rooms.remove(r.ID)
		slog.Info("room destroyed after forfeit", "room", r.ID)
	}
	s.broadcastRoomList()
}

func winnerName(r *room.Room, clientID string) string {
	for _, seat := range r.Roster {
		if seat.ClientID == clientID {
			return seat.Name
		}
	}
	return ""
}

func (s *Server) archiveMatch(ctx context.Context, r *room.Room, reason string, startedAt time.Time, moveCount int) {
	if s.history == nil {
		return
	}
	players := make([]string, 0, len(r.Roster)+1)
	for _, seat := range r.Roster {
		players = append(players, seat.Name)
	}
	s.history.RecordMatch(ctx, MatchRecord{
		RoomID:     r.ID,
		Players:    players,
		Winner:     winnerName(r, r.Winner),
		Reason:     reason,
		MoveCount:  moveCount,
		StartedAt:  startedAt,
		FinishedAt: s.clock(),
	})
}
