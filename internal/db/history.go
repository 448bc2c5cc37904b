package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/colonyrelay-project/colonyrelay/internal/events"
)

// History records connection and battle lifecycle events. It consumes
// the event bus; the relay core never calls it directly.
type History struct {
	db *Database
}

// NewHistory opens the history database and applies the schema.
func NewHistory(dbPath string) (*History, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	h := &History{db: database}
	if err := h.migrate(); err != nil {
		database.Close()
		return nil, err
	}
	return h, nil
}

func (h *History) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS connections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id INTEGER NOT NULL,
			remote_addr TEXT NOT NULL,
			room_id INTEGER NOT NULL,
			slot INTEGER NOT NULL,
			connected_at TIMESTAMP NOT NULL,
			disconnected_at TIMESTAMP,
			reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS battles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id INTEGER NOT NULL,
			player_count INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_client ON connections(client_id)`,
	}

	for _, stmt := range schema {
		if _, err := h.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply history schema: %w", err)
		}
	}
	return nil
}

// Subscribe registers the history writers on the event bus.
func (h *History) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventClientConnected, "history.connected", h.onConnected)
	bus.Subscribe(events.EventClientDisconnected, "history.disconnected", h.onDisconnected)
	bus.Subscribe(events.EventBattleStarted, "history.battleStarted", h.onBattleStarted)
}

func (h *History) onConnected(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ClientConnectedPayload)
	if !ok {
		return nil
	}

	_, err := h.db.Exec(
		`INSERT INTO connections (client_id, remote_addr, room_id, slot, connected_at) VALUES (?, ?, ?, ?, ?)`,
		p.ClientID, p.RemoteAddr, p.RoomID, p.Slot, p.At,
	)
	return err
}

func (h *History) onDisconnected(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ClientDisconnectedPayload)
	if !ok {
		return nil
	}

	_, err := h.db.Exec(
		`UPDATE connections SET disconnected_at = ?, reason = ?
		 WHERE client_id = ? AND disconnected_at IS NULL`,
		p.At, string(p.Reason), p.ClientID,
	)
	return err
}

func (h *History) onBattleStarted(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.BattleStartedPayload)
	if !ok {
		return nil
	}

	_, err := h.db.Exec(
		`INSERT INTO battles (room_id, player_count, started_at) VALUES (?, ?, ?)`,
		p.RoomID, p.PlayerCount, p.At,
	)
	return err
}

// BattleRecord is one row of battle history.
type BattleRecord struct {
	ID          int64     `json:"id"`
	RoomID      int       `json:"room_id"`
	PlayerCount int       `json:"player_count"`
	StartedAt   time.Time `json:"started_at"`
}

// RecentBattles returns the most recent battle records, newest first.
func (h *History) RecentBattles(limit int) ([]BattleRecord, error) {
	rows, err := h.db.Query(
		`SELECT id, room_id, player_count, started_at FROM battles ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []BattleRecord
	for rows.Next() {
		var r BattleRecord
		if err := rows.Scan(&r.ID, &r.RoomID, &r.PlayerCount, &r.StartedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ConnectionCount returns the number of connections ever recorded.
func (h *History) ConnectionCount() (int64, error) {
	var count int64
	err := h.db.QueryRow(`SELECT COUNT(*) FROM connections`).Scan(&count)
	return count, err
}

// Close flushes and closes the database.
func (h *History) Close() error {
	log.Debug().Msg("history database closing")
	return h.db.Close()
}
