package relay

import (
	"context"

	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

// handleFrame splits a frame body into commands and dispatches them in
// order. An unknown opcode abandons the rest of that frame with a hex
// dump but never the connection.
func (s *Session) handleFrame(ctx context.Context, body []byte) {
	cmds, err := protocol.SplitCommands(body)
	for _, cmd := range cmds {
		s.handleCommand(ctx, cmd)
	}
	if err != nil {
		s.logger.Warn().
			Err(err).
			Msg("skipping unparseable frame tail")
	}
}

func (s *Session) handleCommand(ctx context.Context, cmd protocol.Command) {
	manager := s.server.manager
	data := cmd.Data

	s.logger.Trace().
		Str("command", protocol.CommandName(cmd.Opcode)).
		Int("data_len", len(data)).
		Msg("command received")

	switch cmd.Opcode {
	case protocol.CmdPlayerName:
		// [ordinal][0x00][ascii-name][0x00]
		trimmed := protocol.TrimTerm(data)
		if len(trimmed) < 2 {
			return
		}
		manager.SetName(ctx, s.id, int(trimmed[0]), trimmed[2:])

	case protocol.CmdPlayerChat:
		manager.Chat(ctx, s.id, protocol.TrimTerm(data))

	case protocol.CmdPlayerRace:
		manager.SetRace(s.id, data[0], int(data[1]))

	case protocol.CmdPlayerColor:
		manager.SetColor(s.id, data[0], int(data[1]))

	case protocol.CmdPlayerTeam:
		manager.SetTeam(s.id, data[0], int(data[1]))

	case protocol.CmdPlayerReady:
		// No ordinal in the payload: the command refers to the
		// sender's own slot.
		manager.Ready(s.id)

	case protocol.CmdBeginBattle:
		// The ping payload carries the counter as it stood when the
		// client sent begin_battle, so snapshot it before the
		// game_speed broadcast advances it.
		initialCounter := uint32(s.conn.Counter())
		manager.BeginBattle(ctx, s.id)
		s.startBattlePing(initialCounter)

	case protocol.CmdBattlePing1:
		s.echoBattlePing()

	case protocol.CmdBattlePing2:
		s.logger.Debug().Msg("battle_ping2 received")

	case protocol.CmdRoomParam:
		// The client echoes the snapshot's room_param tuples back;
		// no response is required.

	case protocol.CmdPing:
		// Lobby ping echo, nothing to do.

	default:
		if protocol.IsRelayed(cmd.Opcode) {
			manager.Relay(s.id, cmd.Opcode, data)
			return
		}
		s.logger.Warn().
			Str("command", protocol.CommandName(cmd.Opcode)).
			Hex("data", data).
			Msg("command without handler")
	}
}
