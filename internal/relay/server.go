// Package relay implements the per-connection session machinery: the
// greeting sequence, the frame read loop, command dispatch into the
// lobby, and the in-battle ping driver.
package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyrelay-project/colonyrelay/internal/config"
	"github.com/colonyrelay-project/colonyrelay/internal/events"
	"github.com/colonyrelay-project/colonyrelay/internal/lobby"
	"github.com/colonyrelay-project/colonyrelay/internal/network"
	"github.com/colonyrelay-project/colonyrelay/internal/util"
)

// Server owns the live sessions and wires accepted connections into
// the lobby manager. It implements network.SessionHandler.
type Server struct {
	cfg     config.RelayData
	manager *lobby.Manager
	bus     *events.EventBus
	logger  zerolog.Logger

	nextID uint32

	mu       sync.Mutex
	sessions map[uint32]*Session

	startedAt time.Time
}

// NewServer creates the relay server.
func NewServer(cfg config.RelayData, manager *lobby.Manager, bus *events.EventBus) *Server {
	return &Server{
		cfg:       cfg,
		manager:   manager,
		bus:       bus,
		logger:    util.ComponentLogger("relay"),
		sessions:  make(map[uint32]*Session),
		startedAt: time.Now(),
	}
}

// HandleConnection runs one client session to completion. Called by
// the TCP listener in the connection's own goroutine.
func (s *Server) HandleConnection(ctx context.Context, conn *network.Connection) {
	id := atomic.AddUint32(&s.nextID, 1)
	sess := newSession(id, conn, s)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	sess.run(ctx)

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// ReapIdle disconnects every session with no inbound bytes for longer
// than the idle timeout. Called by the scheduler on its own ticker.
func (s *Server) ReapIdle(ctx context.Context) int {
	timeout := time.Duration(s.cfg.IdleTimeoutMS) * time.Millisecond
	cutoff := time.Now().Add(-timeout)

	s.mu.Lock()
	var stale []*Session
	for _, sess := range s.sessions {
		if !sess.conn.IsClosed() && sess.conn.LastActivity().Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.disconnect(ctx, events.ReasonIdle)
	}
	return len(stale)
}

// Kick disconnects one session by client id. Used by the monitor API
// and the console.
func (s *Server) Kick(ctx context.Context, clientID uint32) bool {
	s.mu.Lock()
	sess, ok := s.sessions[clientID]
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.logger.Info().Uint32("client", clientID).Msg("kicking client")
	sess.disconnect(ctx, events.ReasonKicked)
	return true
}

// CloseAll disconnects every session. Called on shutdown.
func (s *Server) CloseAll(ctx context.Context) {
	s.mu.Lock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.disconnect(ctx, events.ReasonServerStop)
	}
	s.logger.Info().Int("sessions", len(all)).Msg("all sessions closed")
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartedAt returns the server start time, for the status surfaces.
func (s *Server) StartedAt() time.Time {
	return s.startedAt
}

// Manager exposes the lobby manager to the monitor surfaces.
func (s *Server) Manager() *lobby.Manager {
	return s.manager
}
