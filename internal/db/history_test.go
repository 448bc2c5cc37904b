package db_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/colonyrelay-project/colonyrelay/internal/db"
	"github.com/colonyrelay-project/colonyrelay/internal/events"
)

func openHistory(t *testing.T) *db.History {
	t.Helper()

	h, err := db.NewHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewHistory failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRecordsLifecycle(t *testing.T) {
	h := openHistory(t)
	bus := events.NewEventBus()
	h.Subscribe(bus)
	ctx := context.Background()

	err := bus.EmitSync(ctx, events.Event{
		Type: events.EventClientConnected,
		Payload: events.ClientConnectedPayload{
			ClientID:   1,
			RemoteAddr: "10.0.0.5:31337",
			RoomID:     1,
			Slot:       4,
			At:         time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("connected event failed: %v", err)
	}

	err = bus.EmitSync(ctx, events.Event{
		Type: events.EventBattleStarted,
		Payload: events.BattleStartedPayload{
			RoomID:      1,
			PlayerCount: 2,
			At:          time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("battle event failed: %v", err)
	}

	err = bus.EmitSync(ctx, events.Event{
		Type: events.EventClientDisconnected,
		Payload: events.ClientDisconnectedPayload{
			ClientID: 1,
			RoomID:   1,
			Reason:   events.ReasonIdle,
			At:       time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("disconnected event failed: %v", err)
	}

	count, err := h.ConnectionCount()
	if err != nil {
		t.Fatalf("ConnectionCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("connection count = %d, want 1", count)
	}

	battles, err := h.RecentBattles(10)
	if err != nil {
		t.Fatalf("RecentBattles failed: %v", err)
	}
	if len(battles) != 1 {
		t.Fatalf("battle count = %d, want 1", len(battles))
	}
	if battles[0].RoomID != 1 || battles[0].PlayerCount != 2 {
		t.Errorf("battle record = %+v", battles[0])
	}
}

func TestRecentBattlesOrder(t *testing.T) {
	h := openHistory(t)
	bus := events.NewEventBus()
	h.Subscribe(bus)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		err := bus.EmitSync(ctx, events.Event{
			Type: events.EventBattleStarted,
			Payload: events.BattleStartedPayload{
				RoomID:      i,
				PlayerCount: i,
				At:          time.Now(),
			},
		})
		if err != nil {
			t.Fatalf("battle event %d failed: %v", i, err)
		}
	}

	battles, err := h.RecentBattles(2)
	if err != nil {
		t.Fatalf("RecentBattles failed: %v", err)
	}
	if len(battles) != 2 {
		t.Fatalf("battle count = %d, want 2", len(battles))
	}
	if battles[0].RoomID != 3 {
		t.Errorf("newest battle room = %d, want 3", battles[0].RoomID)
	}
}
