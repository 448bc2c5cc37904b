package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/colonyrelay-project/colonyrelay/internal/events"
	"github.com/colonyrelay-project/colonyrelay/internal/lobby"
	"github.com/colonyrelay-project/colonyrelay/internal/network"
	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

// readBufferSize is the per-session read chunk size. Lobby frames are
// small; battle traffic bursts but stays well under this.
const readBufferSize = 4096

// Session is the per-client state: the connection, the inbound frame
// accumulator, room placement, and the battle-ping driver once battle
// begins. It implements lobby.Peer.
type Session struct {
	id     uint32
	conn   *network.Connection
	server *Server
	logger zerolog.Logger

	decoder protocol.Decoder

	mu         sync.Mutex
	placement  lobby.Placement
	placed     bool
	mapSent    bool
	battlePing *BattlePing

	closeOnce sync.Once
}

func newSession(id uint32, conn *network.Connection, server *Server) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		server: server,
		logger: log.With().
			Str("component", "session").
			Uint32("client", id).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// ID returns the session's client id.
func (s *Session) ID() uint32 {
	return s.id
}

// RemoteAddr returns the peer address as a string.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// WritePayload frames and writes one payload on this connection,
// advancing the per-connection counter nibble.
func (s *Session) WritePayload(payload []byte) error {
	return s.conn.WritePayload(payload)
}

// MapSent reports whether the greeting sequence has completed. The
// lobby ping ticker only targets clients past this point.
func (s *Session) MapSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapSent
}

// run admits the session to a room, performs the delayed greeting
// sequence, and then consumes frames until the connection dies.
func (s *Session) run(ctx context.Context) {
	placement, hadOthers, err := s.server.manager.Join(ctx, s)
	if err != nil {
		s.logger.Warn().Err(err).Msg("admission failed, destroying connection")
		s.disconnect(ctx, events.ReasonRoomFull)
		return
	}

	s.mu.Lock()
	s.placement = placement
	s.placed = true
	s.mu.Unlock()

	if err := s.greet(ctx, placement, hadOthers); err != nil {
		reason := events.ReasonWriteError
		if errors.Is(err, errEarlyClose) {
			reason = events.ReasonEarlyClose
		}
		s.disconnect(ctx, reason)
		return
	}

	s.readLoop(ctx)
}

// errEarlyClose marks a session that was shut down during the greeting
// delay: the context was cancelled or the connection was closed on the
// server side. A client that closes its own end is only noticed when a
// greeting write fails.
var errEarlyClose = errors.New("client closed before greeting")

// greet waits out the greeting delay, then sends the join sequence:
// greeting, room snapshot, map packet, and the welcome chat lines.
// The delay absorbs port scanners that disconnect immediately, sparing
// the cost of composing a ~400-byte snapshot for them.
func (s *Session) greet(ctx context.Context, placement lobby.Placement, hadOthers bool) error {
	delay := time.Duration(s.server.cfg.GreetingDelayMS) * time.Millisecond
	select {
	case <-ctx.Done():
		return errEarlyClose
	case <-time.After(delay):
	}

	if s.conn.IsClosed() {
		return errEarlyClose
	}

	if err := s.conn.WritePayload(protocol.BuildInitialPacket(placement.Slot)); err != nil {
		return err
	}
	if err := s.conn.WritePayload(s.server.manager.Snapshot(s.id)); err != nil {
		return err
	}
	if err := s.conn.WritePayload(s.server.manager.MapPacket(s.id)); err != nil {
		return err
	}

	for _, line := range s.welcomeLines(placement) {
		if err := s.conn.WritePayload(protocol.BuildChat(line)); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.mapSent = true
	s.mu.Unlock()

	// Members present before this admission still show the old seat
	// map; refresh them now that the newcomer has its own view.
	if hadOthers {
		s.server.manager.BroadcastSnapshot(placement.RoomID, s.id)
	}

	s.logger.Info().
		Int("room", placement.RoomID).
		Int("slot", placement.Slot).
		Msg("greeting sequence sent")

	return nil
}

func (s *Session) welcomeLines(placement lobby.Placement) []string {
	return []string{
		fmt.Sprintf("Welcome to the Dark Colony relay. You are in room %d.", placement.RoomID),
		"Pick a race and color, then press Ready.",
		"The battle launches once every player is ready.",
	}
}

// readLoop consumes raw bytes, drains complete frames, and dispatches
// their commands. Framing and command errors are logged and skipped;
// only socket errors end the loop.
func (s *Session) readLoop(ctx context.Context) {
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			s.disconnect(ctx, events.ReasonServerStop)
			return
		default:
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			s.disconnect(ctx, events.ReasonClosed)
			return
		}

		s.decoder.Feed(buf[:n])

		for {
			body, counter, err := s.decoder.Next()
			if err != nil {
				s.logger.Warn().Err(err).Msg("framing error, resynchronizing")
				continue
			}
			if body == nil {
				break
			}

			s.logger.Trace().
				Uint8("counter", counter).
				Int("len", len(body)).
				Msg("frame received")

			s.handleFrame(ctx, body)
		}
	}
}

// disconnect tears the session down exactly once: the battle-ping
// driver stops, the client leaves its room, and the socket closes.
// The first caller's reason wins.
func (s *Session) disconnect(ctx context.Context, reason events.DisconnectReason) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		bp := s.battlePing
		s.battlePing = nil
		placed := s.placed
		s.mu.Unlock()

		if bp != nil {
			bp.Stop()
		}

		s.logger.Info().
			Str("type", "disconnect").
			Str("reason", string(reason)).
			Msg("client disconnected")

		if placed {
			s.server.manager.Leave(ctx, s.id, reason)
		}
		s.conn.Close()
	})
}

// startBattlePing allocates a fresh ping driver for this client.
// initialCounter is the outbound counter captured at the moment the
// client sent begin_battle.
func (s *Session) startBattlePing(initialCounter uint32) {
	interval := time.Duration(s.server.cfg.BattlePingIntervalMS) * time.Millisecond
	timeout := time.Duration(s.server.cfg.BattlePingTimeoutMS) * time.Millisecond

	s.mu.Lock()
	old := s.battlePing
	s.battlePing = newBattlePing(s.conn, initialCounter, interval, timeout, s.logger)
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

// echoBattlePing feeds a received battle_ping1 into the driver.
func (s *Session) echoBattlePing() {
	s.mu.Lock()
	bp := s.battlePing
	s.mu.Unlock()

	if bp != nil {
		bp.Echo()
	} else {
		s.logger.Debug().Msg("battle ping echo with no battle in progress")
	}
}
