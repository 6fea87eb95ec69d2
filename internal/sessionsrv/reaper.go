package sessionsrv

import (
	"context"
	"log/slog"
	"time"

	"github.com/gomokusrv/arbiter/internal/player"
)

// runReaper implements spec §4.3.4: every ReaperInterval, evict any player
// whose last_activity is older than ReaperDeadline through the same
// disconnect cascade a socket error would take. It is the backstop for
// §5's "90 s (the reaper's check)" deadline, independent of each reader's
// own 60 s local idle-read poll.
func (s *Server) runReaper(ctx context.Context) {
	interval := s.cfg.ReaperInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	deadline := s.cfg.ReaperDeadline
	if deadline <= 0 {
		deadline = 90 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce(deadline)
		}
	}
}

// reapOnce evicts stale players and logs the §12.2 per-sweep summary.
// Evictions are enqueued onto the dispatcher's work queue rather than
// applied here directly (spec §4.3.1: a disconnect is just another work
// item), so any room destruction they cause lands after this sweep
// returns. rooms_destroyed therefore reports the net drop in room count
// since the previous sweep rather than a precise count of this sweep's own
// evictions — still the "rooms destroyed, players evicted, current
// totals" operator heartbeat §12.2 asks for.
func (s *Server) reapOnce(deadline time.Duration) {
	now := s.clock()

	var stale []string
	s.players.ForEach(func(p *player.Player) {
		if now.Sub(p.LastActivity()) > deadline {
			stale = append(stale, p.ClientID)
		}
	})
	for _, clientID := range stale {
		slog.Info("reaper evicting stale connection", "client", clientID)
		s.enqueueDisconnect(clientID)
	}

	activeRooms := s.rooms.count()
	destroyedSincePrevSweep := s.lastSweepRoomCount - activeRooms
	if destroyedSincePrevSweep < 0 {
		destroyedSincePrevSweep = 0
	}
	s.lastSweepRoomCount = activeRooms

	slog.Info("reaper sweep complete",
		"players_evicted", len(stale),
		"rooms_destroyed", destroyedSincePrevSweep,
		"active_rooms", activeRooms,
		"active_players", s.players.Count(),
	)
}
