package lobby

import (
	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

// Room parameter indices with known meaning. The remaining indices are
// sent with the values the retail server always used; the client does
// not expose them in the lobby UI.
const (
	ParamEruptingVents  = 2
	ParamRenewableVents = 3
)

// defaultRoomParams are the sixteen parameter values carried in every
// room snapshot, taken from packet captures of the retail server.
var defaultRoomParams = [protocol.NumRoomParams]uint16{
	ParamEruptingVents:  1,
	ParamRenewableVents: 0,
	4:                   4,
	5:                   4,
	7:                   0xb8,
	8:                   1,
}

// BuildSnapshot composes the room_map snapshot payload: the full room
// state conveyed in one frame on join and after membership changes.
// Layout: two placeholder bytes, eight player_init tuples, a per-slot
// block of name/race/type/color/team/ready commands, then the sixteen
// room_param tuples.
func BuildSnapshot(r *Room) []byte {
	b := protocol.NewPayloadBuilder()
	b.WriteByte(protocol.CmdRoomMap)
	b.WriteByte(0x00)
	b.WriteByte(0x00)

	for i := 0; i < protocol.NumSlots; i++ {
		b.WriteByte(protocol.CmdPlayerInit)
		b.WriteByte(0x00)
		b.WriteByte(byte(i))
	}

	for i := 0; i < protocol.NumSlots; i++ {
		s := &r.Slots[i]

		b.WriteByte(protocol.CmdPlayerName)
		b.WriteByte(byte(i))
		b.WriteByte(0x00)
		b.WriteNullString(s.Name)

		b.WriteByte(protocol.CmdPlayerRace)
		b.WriteByte(s.Race)
		b.WriteByte(byte(i))

		b.WriteByte(protocol.CmdPlayerType)
		b.WriteByte(s.Type)
		b.WriteByte(byte(i))

		b.WriteByte(protocol.CmdPlayerColor)
		b.WriteByte(byte(s.Color))
		b.WriteByte(byte(i))

		b.WriteByte(protocol.CmdPlayerTeam2)
		b.WriteByte(byte(s.Team))
		b.WriteByte(byte(i))

		b.WriteByte(protocol.CmdPlayerReady)
		b.WriteByte(s.ReadyByte())
		b.WriteByte(byte(i))
	}

	for i := 0; i < protocol.NumRoomParams; i++ {
		v := defaultRoomParams[i]
		b.WriteByte(protocol.CmdRoomParam)
		b.WriteByte(byte(i))
		b.WriteByte(0x00)
		b.WriteByte(byte(v & 0xff))
		b.WriteByte(byte(v >> 8))
	}

	return b.Build()
}

// BuildMapPacket composes the room_map payload carrying the map
// descriptor: type char, player-count char, null-terminated filename,
// then the display name with no terminator.
func BuildMapPacket(m MapDescriptor) []byte {
	b := protocol.NewPayloadBuilder()
	b.WriteByte(protocol.CmdRoomMap)
	b.WriteString(m.Type)
	b.WriteString(m.PlayerCount)
	b.WriteNullString(m.Filename)
	b.WriteString(m.DisplayName)
	return b.Build()
}
