package relay_test

import (
	"bytes"
	"context"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/colonyrelay-project/colonyrelay/internal/config"
	"github.com/colonyrelay-project/colonyrelay/internal/events"
	"github.com/colonyrelay-project/colonyrelay/internal/lobby"
	"github.com/colonyrelay-project/colonyrelay/internal/network"
	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
	"github.com/colonyrelay-project/colonyrelay/internal/relay"
)

func testRelayConfig() config.RelayData {
	return config.RelayData{
		BindAddress:          "127.0.0.1",
		GamePort:             0,
		IdleTimeoutMS:        5000,
		GreetingDelayMS:      10,
		LobbyPingIntervalMS:  300,
		ReapIntervalMS:       10000,
		BattlePingIntervalMS: 5,
		BattlePingTimeoutMS:  1000,
		MapType:              "D",
		MapPlayerCount:       "8",
		MapFilename:          "PLAY01.SCN",
		MapDisplayName:       "Armageddon\n",
	}
}

func newTestServer(cfg config.RelayData) *relay.Server {
	bus := events.NewEventBus()
	manager := lobby.NewManager(lobby.MapDescriptor{
		Type:        cfg.MapType,
		PlayerCount: cfg.MapPlayerCount,
		Filename:    cfg.MapFilename,
		DisplayName: cfg.MapDisplayName,
	}, bus, rand.New(rand.NewSource(3)))
	return relay.NewServer(cfg, manager, bus)
}

// testClient is the game-client end of a piped session.
type testClient struct {
	conn net.Conn
	dec  protocol.Decoder

	counter uint8
}

func (tc *testClient) readFrame(t *testing.T, timeout time.Duration) []byte {
	t.Helper()

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 2048)
	for {
		if body, _, err := tc.dec.Next(); err == nil && body != nil {
			return body
		}

		tc.conn.SetReadDeadline(deadline)
		n, err := tc.conn.Read(buf)
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		tc.dec.Feed(buf[:n])
	}
}

func (tc *testClient) sendPayload(t *testing.T, payload []byte) {
	t.Helper()

	frame, err := protocol.EncodeFrame(payload, tc.counter)
	if err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	tc.counter = (tc.counter + 1) & 0x0f

	tc.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := tc.conn.Write(frame); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

// drainGreeting consumes the join sequence and returns the assigned
// slot index from the initial packet.
func (tc *testClient) drainGreeting(t *testing.T) int {
	t.Helper()

	greeting := tc.readFrame(t, time.Second)
	if greeting[0] != protocol.CmdInitialPacket {
		t.Fatalf("first frame opcode = %#02x, want initial_packet", greeting[0])
	}
	if !bytes.Equal(greeting[1:3], []byte{0x0f, 0x00}) || greeting[4] != 0x00 {
		t.Fatalf("initial packet = % x", greeting)
	}
	slot := int(greeting[3])

	snapshot := tc.readFrame(t, time.Second)
	if snapshot[0] != protocol.CmdRoomMap {
		t.Fatalf("second frame opcode = %#02x, want room_map snapshot", snapshot[0])
	}

	mapPacket := tc.readFrame(t, time.Second)
	if mapPacket[0] != protocol.CmdRoomMap || mapPacket[1] != 'D' || mapPacket[2] != '8' {
		t.Fatalf("third frame = % x, want map packet", mapPacket[:3])
	}

	for i := 0; i < 3; i++ {
		chat := tc.readFrame(t, time.Second)
		if chat[0] != protocol.CmdPlayerChat {
			t.Fatalf("welcome frame %d opcode = %#02x, want player_chat", i, chat[0])
		}
	}

	return slot
}

func connectClient(t *testing.T, ctx context.Context, srv *relay.Server) *testClient {
	t.Helper()

	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() { clientEnd.Close() })

	go srv.HandleConnection(ctx, network.NewConnection(serverEnd))

	return &testClient{conn: clientEnd}
}

func TestSessionGreetingSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newTestServer(testRelayConfig())
	tc := connectClient(t, ctx, srv)

	slot := tc.drainGreeting(t)
	if slot < 1 || slot > 7 {
		t.Errorf("assigned slot %d, want 1..7", slot)
	}

	if n := srv.SessionCount(); n != 1 {
		t.Errorf("session count = %d, want 1", n)
	}
}

func TestSessionNameChangeFragmented(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newTestServer(testRelayConfig())
	tc := connectClient(t, ctx, srv)
	tc.drainGreeting(t)

	// player_name "Foo" for slot 2, split across two TCP chunks.
	payload := []byte{protocol.CmdPlayerName, 0x02, 0x00, 'F', 'o', 'o', 0x00}
	frame, err := protocol.EncodeFrame(payload, 0)
	if err != nil {
		t.Fatalf("encoding frame: %v", err)
	}

	tc.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := tc.conn.Write(frame[:5]); err != nil {
		t.Fatalf("writing first chunk: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := tc.conn.Write(frame[5:]); err != nil {
		t.Fatalf("writing second chunk: %v", err)
	}

	// The broadcast includes the sender.
	echo := tc.readFrame(t, time.Second)
	want := []byte{protocol.CmdPlayerName, 0x02, 0x00, 0x46, 0x6f, 0x6f, 0x00}
	if !bytes.Equal(echo, want) {
		t.Errorf("broadcast = % x, want % x", echo, want)
	}
}

func TestSessionBattleStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newTestServer(testRelayConfig())
	tc := connectClient(t, ctx, srv)
	tc.drainGreeting(t)

	tc.sendPayload(t, append([]byte{protocol.CmdBeginBattle}, protocol.BeginBattlePayload...))

	// Sole client in the room: the battle starts at once.
	speed := tc.readFrame(t, time.Second)
	want := []byte{protocol.CmdGameSpeed, 0x21, 0x00, 0x00, 0x00}
	if !bytes.Equal(speed, want) {
		t.Fatalf("game_speed = % x, want % x", speed, want)
	}

	// Ping 0 carries the counter snapshot from battle start: six
	// frames were sent during the greeting sequence.
	ping := tc.readFrame(t, time.Second)
	if ping[0] != protocol.CmdBattlePing1 {
		t.Fatalf("opcode = %#02x, want battle_ping1", ping[0])
	}
	if !bytes.Equal(ping[1:5], []byte{0x00, 0x00, 0x00, 0x00}) {
		t.Errorf("ping seq = % x, want 0", ping[1:5])
	}
	if !bytes.Equal(ping[5:9], []byte{0x06, 0x00, 0x00, 0x00}) {
		t.Errorf("ping counter = % x, want 6", ping[5:9])
	}

	// Echoing advances the sequence.
	tc.sendPayload(t, protocol.BuildBattlePing(0, 6))

	next := tc.readFrame(t, time.Second)
	for next[0] != protocol.CmdBattlePing1 {
		next = tc.readFrame(t, time.Second)
	}
	if !bytes.Equal(next[1:5], []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Errorf("second ping seq = % x, want 1", next[1:5])
	}
}

func TestSessionIdleReap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testRelayConfig()
	cfg.IdleTimeoutMS = 30
	srv := newTestServer(cfg)
	tc := connectClient(t, ctx, srv)
	tc.drainGreeting(t)

	time.Sleep(60 * time.Millisecond)

	if reaped := srv.ReapIdle(ctx); reaped != 1 {
		t.Fatalf("reaped %d sessions, want 1", reaped)
	}

	tc.conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	if _, err := tc.conn.Read(buf); err == nil {
		t.Error("connection still open after idle reap")
	}

	// A second pass finds nothing.
	if reaped := srv.ReapIdle(ctx); reaped != 0 {
		t.Errorf("second reap removed %d sessions, want 0", reaped)
	}
}

func TestSessionKick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newTestServer(testRelayConfig())
	tc := connectClient(t, ctx, srv)
	tc.drainGreeting(t)

	if !srv.Kick(ctx, 1) {
		t.Fatal("kick of live client failed")
	}
	if srv.Kick(ctx, 99) {
		t.Error("kick of unknown client reported success")
	}

	tc.conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	if _, err := tc.conn.Read(buf); err == nil {
		t.Error("connection still open after kick")
	}
}
