// Package network implements the TCP listener and the per-connection
// write path for game client traffic.
package network

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

// WriteTimeout bounds a single frame write before the connection is
// considered dead.
const WriteTimeout = 10 * time.Second

// KeepAlivePeriod is the TCP keep-alive initial delay on game sockets.
const KeepAlivePeriod = 30 * time.Second

// Connection wraps a client TCP socket. It owns the outbound packet
// counter: a 4-bit sequence that advances by one per sent frame and
// wraps 15 to 0. Writes are serialized so the counter and the byte
// stream stay in step.
type Connection struct {
	mu     sync.Mutex
	conn   net.Conn
	logger zerolog.Logger

	counter uint8

	connectedAt  time.Time
	lastActivity time.Time

	closed bool
}

// NewConnection wraps an accepted net.Conn, disabling Nagle and
// enabling keep-alive the way the original deployment ran.
func NewConnection(conn net.Conn) *Connection {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(KeepAlivePeriod)
	}

	now := time.Now()
	return &Connection{
		conn:         conn,
		connectedAt:  now,
		lastActivity: now,
		logger: log.With().
			Str("component", "connection").
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// WritePayload frames payload with the connection's current counter
// nibble, advances the counter, and writes the frame. The counter
// advances even when the write fails so the sequence mirrors what the
// retail server produced.
func (c *Connection) WritePayload(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}

	frame, err := protocol.EncodeFrame(payload, c.counter)
	if err != nil {
		// An overlong payload is a server bug; drop the packet rather
		// than kill the connection.
		c.logger.Error().Err(err).Int("payload_len", len(payload)).Msg("dropping overlong packet")
		return nil
	}
	c.counter = (c.counter + 1) & 0x0f

	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	// lastActivity tracks inbound bytes only: outbound pings must not
	// shield an idle client from the reaper.
	return nil
}

// Counter returns the current outbound counter nibble.
func (c *Connection) Counter() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// Read reads raw bytes from the socket into p.
func (c *Connection) Read(p []byte) (int, error) {
	n, err := c.conn.Read(p)
	if n > 0 {
		c.Touch()
	}
	return n, err
}

// Touch records inbound activity for the idle reaper.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the time of the last inbound read.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Debug().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
