package sessionsrv

import (
	"context"
	"log/slog"

	"github.com/gomokusrv/arbiter/internal/audit"
	"github.com/gomokusrv/arbiter/internal/player"
	"github.com/gomokusrv/arbiter/internal/protocol"
	"github.com/gomokusrv/arbiter/internal/room"
)

// handleLobbyJoin implements spec §4.3.2 lobby_join.
func (s *Server) handleLobbyJoin(p *player.Player, env protocol.Envelope) {
	var data protocol.LobbyJoinData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed lobby_join", "client", p.ClientID, "error", err)
		return
	}
	if data.PlayerName == "" {
		return
	}
	p.Name = data.PlayerName

	token := data.SessionToken
	if token == "" {
		token = newSessionToken()
	}
	if !s.players.BindToken(p.ClientID, token) {
		// Token collision with a different live client: mint a fresh one
		// rather than letting an attempted resume hijack another session.
		token = newSessionToken()
		s.players.BindToken(p.ClientID, token)
	}
	p.SessionToken = token

	slog.Info("lobby join", "client", p.ClientID, "name", p.Name, "token_fp", audit.Fingerprint(token))

	s.send(p, protocol.TypeLobbyJoined, protocol.LobbyJoinedData{
		ClientID:     p.ClientID,
		Name:         p.Name,
		SessionToken: token,
	})
	s.handleRoomListRequest(p)
}

func roomSummary(r *room.Room) protocol.RoomSummary {
	hostName := ""
	for _, seat := range r.Roster {
		if seat.ClientID == r.HostID {
			hostName = seat.Name
			break
		}
	}
	return protocol.RoomSummary{
		RoomID:     r.ID,
		Name:       r.Name,
		HostName:   hostName,
		Players:    len(r.Roster),
		MaxPlayers: room.MaxPlayers,
	}
}

// handleRoomListRequest implements spec §4.3.2 room_list (R2: idempotent,
// no side effects).
func (s *Server) handleRoomListRequest(p *player.Player) {
	rooms := s.rooms.joinable()
	summaries := make([]protocol.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		summaries = append(summaries, roomSummary(r))
	}
	s.send(p, protocol.TypeRoomList, protocol.RoomListData{Rooms: summaries})
}

// broadcastRoomList sends the refreshed room list to every lobby-resident
// player (spec §4.3.2: "those without a room_id").
func (s *Server) broadcastRoomList() {
	rooms := s.rooms.joinable()
	summaries := make([]protocol.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		summaries = append(summaries, roomSummary(r))
	}
	data := protocol.RoomListData{Rooms: summaries}
	s.players.ForEach(func(p *player.Player) {
		if p.InLobby() && p.Connected() {
			s.send(p, protocol.TypeRoomList, data)
		}
	})
}

// handleRoomCreate implements spec §4.3.2 room_create.
func (s *Server) handleRoomCreate(p *player.Player, env protocol.Envelope) {
	if p.Name == "" || !p.InLobby() {
		return
	}
	var data protocol.RoomCreateData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed room_create", "client", p.ClientID, "error", err)
		return
	}
	roomName := data.RoomName
	if roomName == "" {
		roomName = p.Name + "'s room"
	}

	id := newRoomID()
	r := room.New(id, roomName, p.ClientID, p.Name, s.engine,
		s.cfg.DefaultMoveTimeLimit, s.cfg.DefaultPauseTokens, s.cfg.DefaultPauseCap)
	s.rooms.add(r)
	s.roomStartedAt[id] = s.clock()
	p.RoomID = id

	slog.Info("room created", "room", id, "host", p.ClientID)

	s.send(p, protocol.TypeRoomInfo, protocol.RoomInfoData{
		Success:  true,
		RoomInfo: roomSummary(r),
	})
	s.broadcastRoomList()
}

// handleRoomJoin implements spec §4.3.2 room_join, including the immediate
// game-start transition when the roster fills.
func (s *Server) handleRoomJoin(p *player.Player, env protocol.Envelope) {
	if p.Name == "" || !p.InLobby() {
		return
	}
	var data protocol.RoomJoinData
	if err := env.Decode(&data); err != nil {
		slog.Warn("malformed room_join", "client", p.ClientID, "error", err)
		return
	}
	r, ok := s.rooms.get(data.RoomID)
	if !ok || r.IsFull() || r.State != room.Waiting {
		// B1: joining a full (or missing, or already-started) room produces
		// no roster change and no room_info to the joiner.
		return
	}

	if err := r.Join(p.ClientID, p.Name); err != nil {
		return
	}
	p.RoomID = r.ID

	s.send(p, protocol.TypeRoomInfo, protocol.RoomInfoData{Success: true, RoomInfo: roomSummary(r)})
	for _, seat := range r.Roster {
		if seat.ClientID == p.ClientID {
			continue
		}
		s.sendTo(seat.ClientID, protocol.TypeRoomInfo, protocol.RoomInfoData{Success: true, RoomInfo: roomSummary(r)})
	}
	s.broadcastRoomList()

	if r.IsFull() {
		s.startGame(r)
	}
}

func (s *Server) startGame(r *room.Room) {
	if err := r.StartGame(s.clock()); err != nil {
		slog.Error("starting game", "room", r.ID, "error", err)
		return
	}
	slog.Info("game started", "room", r.ID)
	s.announceGameStarted(r)
}

// announceGameStarted sends the personalized game_started payload to both
// seats. Shared by the initial room_join fill (startGame) and an accepted
// new_game_request rematch (handleNewGameResponse), both of which leave the
// room Playing with a freshly reset board.
func (s *Server) announceGameStarted(r *room.Room) {
	black, white := r.Roster[0], r.Roster[1]
	s.sendTo(black.ClientID, protocol.TypeGameStarted, protocol.GameStartedData{
		RoomID:       r.ID,
		YourRole:     "black",
		YourName:     black.Name,
		OpponentName: white.Name,
		Players:      protocol.PlayersWire{Black: black.Name, White: white.Name},
		YourTurn:     true,
	})
	s.sendTo(white.ClientID, protocol.TypeGameStarted, protocol.GameStartedData{
		RoomID:       r.ID,
		YourRole:     "white",
		YourName:     white.Name,
		OpponentName: black.Name,
		Players:      protocol.PlayersWire{Black: black.Name, White: white.Name},
		YourTurn:     false,
	})
}

// handleRoomLeave implements spec §4.3.2 room_leave, including host
// transfer (spec §8 B4).
func (s *Server) handleRoomLeave(ctx context.Context, p *player.Player) {
	if p.InLobby() {
		return
	}
	r, ok := s.rooms.get(p.RoomID)
	if !ok {
		p.RoomID = ""
		return
	}

	departedID := p.ClientID
	p.RoomID = ""

	if r.State == room.Playing || r.State == room.Paused {
		// Mid-game leave is equivalent to the disconnect-forfeit cascade
		// (spec §4.2.1: only disconnect is named, but an explicit leave
		// mid-game must not leave the survivor's game hanging either).
		// forfeitRoom performs the roster removal itself.
		s.forfeitRoom(ctx, r, departedID)
		return
	}

	wasHost := r.Leave(departedID)

	if r.IsEmpty() {
		s.rooms.remove(r.ID)
		slog.Info("room destroyed (empty)", "room", r.ID)
		s.broadcastRoomList()
		return
	}

	if wasHost {
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
