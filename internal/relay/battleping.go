package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyrelay-project/colonyrelay/internal/network"
	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

// BattlePing drives the in-battle heartbeat for one client: a
// battle_ping1 roughly every 33 ms, each awaiting an echo. The payload
// carries the ping sequence and the connection's packet counter as it
// stood when battle began, advanced by the same sequence.
//
// A missed echo does not stall the stream: after the timeout the next
// ping goes out immediately and the echo is written off as lost. The
// cadence is measured from the previous send time, not from echo
// arrival, so a slow client does not stretch the stream.
type BattlePing struct {
	conn           *network.Connection
	initialCounter uint32
	interval       time.Duration
	timeout        time.Duration
	logger         zerolog.Logger

	echoCh   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// newBattlePing allocates the driver and sends ping 0 from its own
// goroutine.
func newBattlePing(conn *network.Connection, initialCounter uint32, interval, timeout time.Duration, logger zerolog.Logger) *BattlePing {
	bp := &BattlePing{
		conn:           conn,
		initialCounter: initialCounter,
		interval:       interval,
		timeout:        timeout,
		logger:         logger,
		echoCh:         make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	go bp.run()
	return bp
}

// Echo records receipt of a battle_ping1 from the client. Extra echoes
// beyond the outstanding one are dropped.
func (bp *BattlePing) Echo() {
	select {
	case bp.echoCh <- struct{}{}:
	default:
	}
}

// Stop cancels the driver. Safe to call more than once and from the
// disconnect path while the driver is mid-wait.
func (bp *BattlePing) Stop() {
	bp.stopOnce.Do(func() {
		close(bp.stopCh)
	})
}

func (bp *BattlePing) run() {
	var seq uint32
	var lastSend time.Time

	send := func() {
		if err := bp.conn.WritePayload(protocol.BuildBattlePing(seq, bp.initialCounter)); err != nil {
			bp.logger.Warn().Err(err).Uint32("seq", seq).Msg("battle ping write failed")
		}
		lastSend = time.Now()
	}

	send()

	for {
		timer := time.NewTimer(bp.timeout)

		select {
		case <-bp.stopCh:
			timer.Stop()
			return

		case <-timer.C:
			// Echo lost; keep the stream alive.
			bp.logger.Warn().Uint32("seq", seq).Msg("battle ping echo timed out")
			seq++
			send()

		case <-bp.echoCh:
			timer.Stop()
			seq++

			// Next ping fires at lastSend+interval, not echo+interval.
			wait := time.Until(lastSend.Add(bp.interval))
			if wait > 0 {
				select {
				case <-bp.stopCh:
					return
				case <-time.After(wait):
				}
			}
			send()
		}
	}
}
