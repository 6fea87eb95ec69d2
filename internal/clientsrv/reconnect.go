package clientsrv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/gomokusrv/arbiter/internal/protocol"
)

// reconnectLoop implements spec §4.4.2: up to cfg.ReconnectAttempts attempts
// in total (the first plus ReconnectAttempts-1 retries) with a fixed
// cfg.ReconnectBackoff, re-sending lobby_join with the stored
// session_token on each successful TCP connect. Under the graceful-
// termination policy the room itself is already gone server-side by the
// time this runs — a successful reconnect always lands back in the lobby,
// never resumes the game (spec §4.2.1 design note).
func (s *Session) reconnectLoop() {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(s.cfg.ReconnectAttempts-1), retry.NewConstant(s.cfg.ReconnectBackoff))

	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		attempt++
		s.events.emit(EventReconnecting, ReconnectingPayload{Attempt: attempt, Max: s.cfg.ReconnectAttempts})

		if err := s.attemptReconnect(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		s.events.emit(EventReconnectFailed, err)
		s.disconnect(true)
		s.events.emit(EventDisconnect, nil)
		return
	}
	s.events.emit(EventReconnectSuccess, nil)
}

// attemptReconnect dials once and re-establishes lobby membership. A failure
// at any step (dial, or no lobby_joined within the wait window) is
// returned for the retry loop to classify as retryable.
func (s *Session) attemptReconnect() error {
	s.mu.Lock()
	host, port, token, name := s.host, s.port, s.sessionToken, s.name
	s.mu.Unlock()

	if err := s.Connect(host, port); err != nil {
		return fmt.Errorf("dialing %s:%d: %w", host, port, err)
	}

	joined := make(chan struct{}, 1)
	var once bool
	s.OnMessage(protocol.TypeLobbyJoined, func(protocol.Envelope) {
		if !once {
			once = true
			joined <- struct{}{}
		}
	})

	if !s.Send(protocol.TypeLobbyJoin, protocol.LobbyJoinData{PlayerName: name, SessionToken: token}) {
		return errors.New("sending lobby_join after reconnect failed")
	}

	select {
	case <-joined:
		return nil
	case <-time.After(5 * time.Second):
		s.disconnect(true)
		return errors.New("no lobby_joined within reconnect window")
	}
}
