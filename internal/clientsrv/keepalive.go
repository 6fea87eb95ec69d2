package clientsrv

import (
	"time"

	"github.com/gomokusrv/arbiter/internal/protocol"
)

// keepaliveLoop implements spec §4.4.3: a ping every KeepaliveInterval,
// purely a liveness signal so the server-side reaper doesn't evict an idle
// player. The reply (pong) needs no handling here; the UI may still
// subscribe to it via OnMessage.
func (s *Session) keepaliveLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Send(protocol.TypePing, struct{}{})
		}
	}
}
