package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

func TestSplitCommandsPlayerName(t *testing.T) {
	body := []byte{protocol.CmdPlayerName, 0x02, 0x00, 0x46, 0x6f, 0x6f, 0x00}

	cmds, err := protocol.SplitCommands(body)
	if err != nil {
		t.Fatalf("SplitCommands failed: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if cmds[0].Opcode != protocol.CmdPlayerName {
		t.Errorf("opcode = %#02x, want player_name", cmds[0].Opcode)
	}
	want := []byte{0x02, 0x00, 0x46, 0x6f, 0x6f, 0x00}
	if !bytes.Equal(cmds[0].Data, want) {
		t.Errorf("data = % x, want % x", cmds[0].Data, want)
	}
}

func TestSplitCommandsBackToBack(t *testing.T) {
	var body []byte
	body = append(body, protocol.CmdPlayerRace, 0x01, 0x03)
	body = append(body, protocol.CmdPlayerColor, 0x05, 0x03)
	body = append(body, protocol.CmdPlayerTeam, 0x02, 0x03)

	cmds, err := protocol.SplitCommands(body)
	if err != nil {
		t.Fatalf("SplitCommands failed: %v", err)
	}
	if len(cmds) != 3 {
		t.Fatalf("got %d commands, want 3", len(cmds))
	}

	wantOps := []byte{protocol.CmdPlayerRace, protocol.CmdPlayerColor, protocol.CmdPlayerTeam}
	for i, cmd := range cmds {
		if cmd.Opcode != wantOps[i] {
			t.Errorf("command %d: opcode = %#02x, want %#02x", i, cmd.Opcode, wantOps[i])
		}
		if len(cmd.Data) != 2 {
			t.Errorf("command %d: data length = %d, want 2", i, len(cmd.Data))
		}
	}
}

func TestSplitCommandsBeginBattle(t *testing.T) {
	body := []byte{protocol.CmdBeginBattle, 0x06, 0x00, 0x02}

	cmds, err := protocol.SplitCommands(body)
	if err != nil {
		t.Fatalf("SplitCommands failed: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if !bytes.Equal(cmds[0].Data, protocol.BeginBattlePayload) {
		t.Errorf("data = % x, want % x", cmds[0].Data, protocol.BeginBattlePayload)
	}
}

func TestSplitCommandsRelayConsumesRest(t *testing.T) {
	body := append([]byte{protocol.CmdUnitMove}, 0xde, 0xad, 0xbe, 0xef, 0x00)

	cmds, err := protocol.SplitCommands(body)
	if err != nil {
		t.Fatalf("SplitCommands failed: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if !bytes.Equal(cmds[0].Data, []byte{0xde, 0xad, 0xbe, 0xef, 0x00}) {
		t.Errorf("data = % x", cmds[0].Data)
	}
}

func TestSplitCommandsUnknownOpcode(t *testing.T) {
	body := []byte{protocol.CmdPlayerRace, 0x01, 0x03, 0xfe, 0x01, 0x02}

	cmds, err := protocol.SplitCommands(body)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands before the unknown opcode, want 1", len(cmds))
	}

	var unknown *protocol.UnknownCommandError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownCommandError", err)
	}
	if unknown.Opcode != 0xfe {
		t.Errorf("unknown opcode = %#02x, want 0xfe", unknown.Opcode)
	}
	if !bytes.Equal(unknown.Rest, []byte{0xfe, 0x01, 0x02}) {
		t.Errorf("rest = % x, want fe 01 02", unknown.Rest)
	}
}

func TestSplitCommandsTruncatedFixed(t *testing.T) {
	body := []byte{protocol.CmdPlayerRace, 0x01}

	cmds, err := protocol.SplitCommands(body)
	if len(cmds) != 0 {
		t.Errorf("got %d commands, want 0", len(cmds))
	}
	if err == nil {
		t.Error("expected error for truncated command")
	}
}

func TestIsRelayed(t *testing.T) {
	relayed := []byte{
		protocol.CmdUnitSelect, protocol.CmdUnitMove, protocol.CmdUnitAttack,
		protocol.CmdButtonSuperweapon, protocol.CmdGameSpeed, protocol.CmdBattleChat,
	}
	for _, op := range relayed {
		if !protocol.IsRelayed(op) {
			t.Errorf("IsRelayed(%#02x) = false, want true", op)
		}
	}

	notRelayed := []byte{
		protocol.CmdPlayerName, protocol.CmdBattlePing1, protocol.CmdBeginBattle,
		protocol.CmdPing,
	}
	for _, op := range notRelayed {
		if protocol.IsRelayed(op) {
			t.Errorf("IsRelayed(%#02x) = true, want false", op)
		}
	}
}

func TestTrimTerm(t *testing.T) {
	if got := protocol.TrimTerm([]byte{0x01, 0x02, 0x00}); !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("TrimTerm = % x", got)
	}
	if got := protocol.TrimTerm([]byte{0x01, 0x02}); !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("TrimTerm without terminator = % x", got)
	}
	if got := protocol.TrimTerm(nil); len(got) != 0 {
		t.Errorf("TrimTerm(nil) = % x", got)
	}
}

func TestBuildBattlePing(t *testing.T) {
	payload := protocol.BuildBattlePing(0, 7)

	want := []byte{protocol.CmdBattlePing1, 0x00, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % x, want % x", payload, want)
	}

	payload = protocol.BuildBattlePing(3, 7)
	want = []byte{protocol.CmdBattlePing1, 0x03, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % x, want % x", payload, want)
	}
}
