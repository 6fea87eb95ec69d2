package sessionsrv

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gomokusrv/arbiter/internal/protocol"
)

const (
	defaultSendQueueSize = 64
	defaultWriteTimeout  = 5 * time.Second
)

// Conn is the per-connection write side: a dedicated writer goroutine
// draining a buffered channel, so writes are serialized without blocking
// the dispatcher (spec §4.3.1 "writes are serialized per-connection by a
// per-writer mutex, or equivalently, a single writer goroutine with a
// channel"). It implements player.Writer.
type Conn struct {
	conn         net.Conn
	remoteIP     string
	writeTimeout time.Duration

	sendCh    chan protocol.Envelope
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewConn wraps conn and starts its writer goroutine. Callers must call
// Close when the connection is done to stop the goroutine and release the
// channel.
func NewConn(conn net.Conn, sendQueueSize int, writeTimeout time.Duration) *Conn {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	c := &Conn{
		conn:         conn,
		remoteIP:     host,
		writeTimeout: writeTimeout,
		sendCh:       make(chan protocol.Envelope, sendQueueSize),
		closeCh:      make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send enqueues env for async delivery. Non-blocking: a full queue means a
// slow or stalled peer, so the connection is torn down rather than letting
// the dispatcher block (mirrors the teacher's GameClient.Send: "queue full
// → disconnect").
func (c *Conn) Send(env protocol.Envelope) error {
	select {
	case c.sendCh <- env:
		return nil
	case <-c.closeCh:
		return fmt.Errorf("sessionsrv: connection closed")
	default:
		slog.Warn("send queue full, disconnecting slow client", "remote", c.remoteIP)
		c.Close()
		return fmt.Errorf("sessionsrv: send queue full")
	}
}

// Close stops the writer goroutine and closes the underlying socket. Safe
// to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	return c.conn.Close()
}

func (c *Conn) writePump() {
	w := protocol.NewWriter(c.conn)
	for {
		select {
		case env := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("set write deadline failed", "remote", c.remoteIP, "error", err)
				return
			}
			if err := w.WriteMessage(env); err != nil {
				slog.Warn("write failed", "remote", c.remoteIP, "error", err)
				return
			}
		case <-c.closeCh:
			return
		}
	}
}
