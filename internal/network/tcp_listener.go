package network

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
)

// SessionHandler receives each accepted game client connection. The
// relay server implements it; the listener knows nothing about the
// protocol beyond the socket options applied in NewConnection.
type SessionHandler interface {
	HandleConnection(ctx context.Context, conn *Connection)
}

// TCPListener accepts game client connections on the public game port.
type TCPListener struct {
	addr     string
	handler  SessionHandler
	listener net.Listener
}

// NewTCPListener creates a listener for the given bind address and port.
func NewTCPListener(bindAddress string, port int, handler SessionHandler) *TCPListener {
	return &TCPListener{
		addr:    fmt.Sprintf("%s:%d", bindAddress, port),
		handler: handler,
	}
}

// Start binds the game port and accepts connections until the context
// is cancelled. A bind failure is returned to the caller; the process
// exits non-zero on it.
func (l *TCPListener) Start(ctx context.Context) error {
	// Use SO_REUSEADDR to allow immediate rebinding after restart
	lc := ReuseAddrListenConfig()
	var err error
	l.listener, err = lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %s: %w", l.addr, err)
	}

	log.Info().Str("addr", l.addr).Msg("game listener started")

	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("game listener stopping")
				return nil
			default:
				log.Error().Err(err).Msg("failed to accept connection")
				continue
			}
		}

		log.Debug().
			Str("remote", conn.RemoteAddr().String()).
			Msg("new game client connection")

		go l.handler.HandleConnection(ctx, NewConnection(conn))
	}
}

// Stop closes the listening socket.
func (l *TCPListener) Stop() error {
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
