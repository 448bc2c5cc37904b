package lobby_test

import (
	"bytes"
	"testing"

	"github.com/colonyrelay-project/colonyrelay/internal/events"
	"github.com/colonyrelay-project/colonyrelay/internal/lobby"
	"github.com/colonyrelay-project/colonyrelay/internal/protocol"

	"math/rand"
)

func TestBuildMapPacket(t *testing.T) {
	payload := lobby.BuildMapPacket(lobby.MapDescriptor{
		Type:        "D",
		PlayerCount: "8",
		Filename:    "PLAY01.SCN",
		DisplayName: "Armageddon\n",
	})

	if payload[0] != protocol.CmdRoomMap {
		t.Fatalf("opcode = %#02x, want room_map", payload[0])
	}

	// 44 38 "PLAY01.SCN" 00 "Armageddon\n"
	want := []byte{0x44, 0x38, 0x50, 0x4c, 0x41, 0x59, 0x30, 0x31, 0x2e, 0x53,
		0x43, 0x4e, 0x00, 0x41, 0x72, 0x6d, 0x61, 0x67, 0x65, 0x64, 0x64, 0x6f, 0x6e, 0x0a}
	if !bytes.Equal(payload[1:], want) {
		t.Errorf("data = % x, want % x", payload[1:], want)
	}
}

func TestBuildSnapshotLayout(t *testing.T) {
	m := lobby.NewManager(testMap(), events.NewEventBus(), rand.New(rand.NewSource(7)))
	p := &fakePeer{id: 1, mapSent: true}
	join(t, m, p)

	payload := m.Snapshot(1)
	if payload == nil {
		t.Fatal("Snapshot returned nil for a placed client")
	}

	if payload[0] != protocol.CmdRoomMap {
		t.Fatalf("opcode = %#02x, want room_map", payload[0])
	}
	if payload[1] != 0x00 || payload[2] != 0x00 {
		t.Errorf("placeholder bytes = % x, want 00 00", payload[1:3])
	}

	// Eight player_init tuples follow the placeholder.
	off := 3
	for i := 0; i < protocol.NumSlots; i++ {
		tuple := payload[off : off+3]
		want := []byte{protocol.CmdPlayerInit, 0x00, byte(i)}
		if !bytes.Equal(tuple, want) {
			t.Errorf("player_init %d = % x, want % x", i, tuple, want)
		}
		off += 3
	}

	// Each slot block starts with its player_name command.
	for i := 0; i < protocol.NumSlots; i++ {
		if payload[off] != protocol.CmdPlayerName {
			t.Fatalf("slot %d block starts with %#02x, want player_name", i, payload[off])
		}
		if payload[off+1] != byte(i) || payload[off+2] != 0x00 {
			t.Errorf("slot %d name header = % x, want %02x 00", i, payload[off+1:off+3], i)
		}
		// Skip name bytes up to the terminator.
		off += 3
		for payload[off] != 0x00 {
			off++
		}
		off++

		wantTail := []struct {
			opcode byte
		}{
			{protocol.CmdPlayerRace},
			{protocol.CmdPlayerType},
			{protocol.CmdPlayerColor},
			{protocol.CmdPlayerTeam2},
			{protocol.CmdPlayerReady},
		}
		for _, tc := range wantTail {
			if payload[off] != tc.opcode {
				t.Fatalf("slot %d: opcode %#02x, want %#02x", i, payload[off], tc.opcode)
			}
			if payload[off+2] != byte(i) {
				t.Errorf("slot %d: %#02x tuple carries slot %d", i, tc.opcode, payload[off+2])
			}
			off += 3
		}
	}

	// Sixteen room_param tuples close the snapshot.
	for i := 0; i < protocol.NumRoomParams; i++ {
		tuple := payload[off : off+5]
		if tuple[0] != protocol.CmdRoomParam || tuple[1] != byte(i) || tuple[2] != 0x00 {
			t.Errorf("room_param %d = % x", i, tuple)
		}
		off += 5
	}

	if off != len(payload) {
		t.Errorf("snapshot has %d trailing bytes", len(payload)-off)
	}

	// Capture-derived parameter defaults.
	params := payload[len(payload)-protocol.NumRoomParams*5:]
	checks := map[int]uint16{2: 1, 3: 0, 4: 4, 5: 4, 7: 0xb8, 8: 1}
	for idx, want := range checks {
		tuple := params[idx*5 : idx*5+5]
		got := uint16(tuple[3]) | uint16(tuple[4])<<8
		if got != want {
			t.Errorf("room_param %d = %d, want %d", idx, got, want)
		}
	}
}

func TestBuildInitialPacket(t *testing.T) {
	payload := protocol.BuildInitialPacket(3)
	want := []byte{protocol.CmdInitialPacket, 0x0f, 0x00, 0x03, 0x00}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % x, want % x", payload, want)
	}
}
