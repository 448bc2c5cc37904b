package relay

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyrelay-project/colonyrelay/internal/network"
	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

// frameReader drains framed payloads from the client end of a pipe.
type frameReader struct {
	conn net.Conn
	dec  protocol.Decoder
}

func (fr *frameReader) next(t *testing.T, timeout time.Duration) ([]byte, uint8) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 512)
	for {
		if body, counter, err := fr.dec.Next(); err == nil && body != nil {
			return body, counter
		}

		fr.conn.SetReadDeadline(deadline)
		n, err := fr.conn.Read(buf)
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		fr.dec.Feed(buf[:n])
	}
}

func (fr *frameReader) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()

	fr.conn.SetReadDeadline(time.Now().Add(wait))
	buf := make([]byte, 512)
	n, err := fr.conn.Read(buf)
	if err == nil {
		t.Fatalf("unexpected %d bytes: % x", n, buf[:n])
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestBattlePingSequence(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := network.NewConnection(server)
	defer conn.Close()

	fr := &frameReader{conn: client}

	bp := newBattlePing(conn, 4, 20*time.Millisecond, time.Second, zerolog.Nop())
	defer bp.Stop()

	// Ping 0 goes out immediately.
	body, _ := fr.next(t, time.Second)
	if body[0] != protocol.CmdBattlePing1 {
		t.Fatalf("opcode = %#02x, want battle_ping1", body[0])
	}
	if seq := le32(body[1:5]); seq != 0 {
		t.Errorf("first ping seq = %d, want 0", seq)
	}
	if counter := le32(body[5:9]); counter != 4 {
		t.Errorf("first ping counter = %d, want 4", counter)
	}

	// Echo it; ping 1 follows after the cadence interval.
	start := time.Now()
	bp.Echo()

	body, _ = fr.next(t, time.Second)
	if seq := le32(body[1:5]); seq != 1 {
		t.Errorf("second ping seq = %d, want 1", seq)
	}
	if counter := le32(body[5:9]); counter != 5 {
		t.Errorf("second ping counter = %d, want 5", counter)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("second ping took %v, cadence is 20ms", elapsed)
	}
}

func TestBattlePingTimeoutKeepsStreamAlive(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := network.NewConnection(server)
	defer conn.Close()

	fr := &frameReader{conn: client}

	bp := newBattlePing(conn, 0, 10*time.Millisecond, 40*time.Millisecond, zerolog.Nop())
	defer bp.Stop()

	body, _ := fr.next(t, time.Second)
	if seq := le32(body[1:5]); seq != 0 {
		t.Fatalf("first ping seq = %d, want 0", seq)
	}

	// No echo: the timeout writes the ping off as lost and sends the next.
	body, _ = fr.next(t, time.Second)
	if seq := le32(body[1:5]); seq != 1 {
		t.Errorf("post-timeout ping seq = %d, want 1", seq)
	}
}

func TestBattlePingStop(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := network.NewConnection(server)
	defer conn.Close()

	fr := &frameReader{conn: client}

	bp := newBattlePing(conn, 0, 10*time.Millisecond, time.Second, zerolog.Nop())

	fr.next(t, time.Second) // ping 0
	bp.Stop()
	bp.Stop() // idempotent, including from the disconnect path

	bp.Echo()
	fr.expectNone(t, 100*time.Millisecond)
}
