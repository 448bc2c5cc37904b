// Package events defines event types and the asynchronous bus that
// decouples the relay core from its observation surfaces (history
// database, MQTT telemetry, console).
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle
	EventClientConnected    EventType = "client_connected"
	EventClientDisconnected EventType = "client_disconnected"

	// Room lifecycle
	EventRoomCreated EventType = "room_created"
	EventRoomEmptied EventType = "room_emptied"

	// Lobby activity
	EventPlayerRenamed EventType = "player_renamed"
	EventChatMessage   EventType = "chat_message"
	EventBattleStarted EventType = "battle_started"

	// System
	EventShutdown EventType = "shutdown"
)

// DisconnectReason classifies why a client connection ended.
type DisconnectReason string

const (
	ReasonClosed     DisconnectReason = "closed"
	ReasonIdle       DisconnectReason = "idle"
	ReasonWriteError DisconnectReason = "write_error"
	ReasonRoomFull   DisconnectReason = "room_full"
	ReasonEarlyClose DisconnectReason = "early_close"
	ReasonServerStop DisconnectReason = "server_stop"
	ReasonKicked     DisconnectReason = "kicked"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// ClientConnectedPayload is emitted when a session is admitted to a room.
type ClientConnectedPayload struct {
	ClientID   uint32
	RemoteAddr string
	RoomID     int
	Slot       int
	At         time.Time
}

// ClientDisconnectedPayload is emitted when a session ends for any reason.
type ClientDisconnectedPayload struct {
	ClientID uint32
	RoomID   int
	Reason   DisconnectReason
	At       time.Time
}

// RoomPayload is emitted on room creation and teardown.
type RoomPayload struct {
	RoomID int
}

// PlayerRenamedPayload is emitted when a slot's display name changes.
type PlayerRenamedPayload struct {
	RoomID int
	Slot   int
	Name   string
}

// ChatMessagePayload is emitted for every lobby chat line.
type ChatMessagePayload struct {
	RoomID int
	Slot   int
	Text   string
}

// BattleStartedPayload is emitted when a room transitions into battle.
type BattleStartedPayload struct {
	RoomID      int
	PlayerCount int
	At          time.Time
}
