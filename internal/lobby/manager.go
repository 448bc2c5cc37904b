package lobby

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyrelay-project/colonyrelay/internal/events"
	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
	"github.com/colonyrelay-project/colonyrelay/internal/util"
)

// ErrRoomFull is returned when admission finds no free slot in the
// selected room. The admission predicate makes this unreachable in
// practice; it exists for the defensive path that destroys the
// connection.
var ErrRoomFull = errors.New("no free slot in room")

// MaxNameLen and MaxChatLen bound the sanitized forms of client text.
const (
	MaxNameLen = 32
	MaxChatLen = 120
)

// Peer is the manager's view of a connected client. Sessions implement
// it; the manager never touches sockets directly. WritePayload frames
// the payload with the peer's own rolling counter.
type Peer interface {
	ID() uint32
	WritePayload(payload []byte) error
	RemoteAddr() string
	MapSent() bool
}

// Placement records where a client sits.
type Placement struct {
	RoomID int
	Slot   int
}

// Manager owns the process-wide rooms and clients maps. All room and
// slot mutations are serialized under one mutex; socket writes happen
// outside it.
type Manager struct {
	mu     sync.Mutex
	logger zerolog.Logger
	bus    *events.EventBus
	rng    *rand.Rand

	rooms           map[int]*Room
	clients         map[uint32]Peer
	placements      map[uint32]Placement
	battleInitiated map[uint32]bool

	defaultMap MapDescriptor
}

// NewManager creates a manager with room 1 pre-allocated. Room 1 is
// never deleted; it is reset in place when it empties. A nil rng gets
// a clock-seeded source; tests inject a deterministic one.
func NewManager(defaultMap MapDescriptor, bus *events.EventBus, rng *rand.Rand) *Manager {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	m := &Manager{
		logger:          util.ComponentLogger("lobby"),
		bus:             bus,
		rng:             rng,
		rooms:           make(map[int]*Room),
		clients:         make(map[uint32]Peer),
		placements:      make(map[uint32]Placement),
		battleInitiated: make(map[uint32]bool),
		defaultMap:      defaultMap,
	}

	m.rooms[1] = newRoom(1, defaultMap, rng)
	return m
}

// getAvailableRoom returns the lowest-numbered joinable room, creating
// a new one with the lowest unused id when every existing room is
// battling or full. Caller holds m.mu.
func (m *Manager) getAvailableRoom(ctx context.Context) *Room {
	ids := make([]int, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if r := m.rooms[id]; r.Joinable() {
			return r
		}
	}

	id := 2
	for m.rooms[id] != nil {
		id++
	}
	r := newRoom(id, m.defaultMap, m.rng)
	m.rooms[id] = r
	m.logger.Info().Int("room", id).Msg("room created")
	m.bus.Emit(ctx, events.Event{
		Type:    events.EventRoomCreated,
		Source:  "lobby",
		Payload: events.RoomPayload{RoomID: id},
	})
	return r
}

// Join admits a peer: picks a joinable room, binds it to a uniformly
// random free slot, and assigns the lowest color no active slot holds.
// hadOthers reports whether the room already had clients at the moment
// of admission, which decides whether the session must push a snapshot
// update to them after its own greeting sequence.
func (m *Manager) Join(ctx context.Context, p Peer) (Placement, bool, error) {
	m.mu.Lock()

	room := m.getAvailableRoom(ctx)
	free := room.freeSlots()
	if len(free) == 0 {
		m.mu.Unlock()
		return Placement{}, false, ErrRoomFull
	}

	slot := free[m.rng.Intn(len(free))]
	color := room.lowestFreeColor()
	if color < 0 {
		color = m.rng.Intn(protocol.NumSlots)
	}

	hadOthers := len(room.Clients) > 0

	s := &room.Slots[slot]
	s.ClientID = p.ID()
	s.Type = protocol.TypeGamer
	s.Ready = false
	s.Color = color

	room.Clients[p.ID()] = struct{}{}
	m.clients[p.ID()] = p
	pl := Placement{RoomID: room.ID, Slot: slot}
	m.placements[p.ID()] = pl
	m.mu.Unlock()

	m.logger.Info().
		Uint32("client", p.ID()).
		Int("room", pl.RoomID).
		Int("slot", pl.Slot).
		Int("color", color).
		Msg("client joined room")

	m.bus.Emit(ctx, events.Event{
		Type:   events.EventClientConnected,
		Source: "lobby",
		Payload: events.ClientConnectedPayload{
			ClientID:   p.ID(),
			RemoteAddr: p.RemoteAddr(),
			RoomID:     pl.RoomID,
			Slot:       pl.Slot,
			At:         time.Now(),
		},
	})

	return pl, hadOthers, nil
}

// Leave removes a client from its room. The vacated slot reverts to an
// open seat. A room left with members gets a fresh snapshot; an empty
// room is reset, and deleted unless it is room 1.
func (m *Manager) Leave(ctx context.Context, clientID uint32, reason events.DisconnectReason) {
	m.mu.Lock()

	pl, ok := m.placements[clientID]
	delete(m.clients, clientID)
	delete(m.placements, clientID)
	delete(m.battleInitiated, clientID)

	if !ok {
		m.mu.Unlock()
		return
	}

	room := m.rooms[pl.RoomID]
	if room == nil {
		m.mu.Unlock()
		return
	}

	delete(room.Clients, clientID)
	if slot := room.slotOf(clientID); slot >= 0 {
		s := &room.Slots[slot]
		s.ClientID = 0
		s.Type = protocol.TypeNone
		s.Ready = true
	}

	var snapshot []byte
	var targets []Peer
	emptied := len(room.Clients) == 0

	if emptied {
		room.resetBattleState(m.rng)
		if room.ID > 1 {
			delete(m.rooms, room.ID)
			m.logger.Info().Int("room", room.ID).Msg("room deleted")
		}
	} else {
		snapshot = BuildSnapshot(room)
		targets = m.roomPeers(room, 0)
	}
	m.mu.Unlock()

	m.logger.Info().
		Uint32("client", clientID).
		Int("room", pl.RoomID).
		Str("reason", string(reason)).
		Msg("client left room")

	for _, p := range targets {
		m.writeTo(p, snapshot)
	}

	m.bus.Emit(ctx, events.Event{
		Type:   events.EventClientDisconnected,
		Source: "lobby",
		Payload: events.ClientDisconnectedPayload{
			ClientID: clientID,
			RoomID:   pl.RoomID,
			Reason:   reason,
			At:       time.Now(),
		},
	})
	if emptied {
		m.bus.Emit(ctx, events.Event{
			Type:    events.EventRoomEmptied,
			Source:  "lobby",
			Payload: events.RoomPayload{RoomID: pl.RoomID},
		})
	}
}

// roomPeers collects the write targets for a room, excluding one id
// (0 excludes nobody). Caller holds m.mu; writes happen after release.
func (m *Manager) roomPeers(room *Room, except uint32) []Peer {
	peers := make([]Peer, 0, len(room.Clients))
	for id := range room.Clients {
		if id == except {
			continue
		}
		if p, ok := m.clients[id]; ok {
			peers = append(peers, p)
		}
	}
	return peers
}

// writeTo writes one framed payload to one peer. A failed write is
// logged and otherwise ignored: the peer's own read loop will observe
// the broken socket and run the normal disconnect path.
func (m *Manager) writeTo(p Peer, payload []byte) {
	if err := p.WritePayload(payload); err != nil {
		m.logger.Warn().
			Err(err).
			Uint32("client", p.ID()).
			Msg("broadcast write failed")
	}
}

// Broadcast frames payload once per member of the room (the counter is
// per connection) and writes it, excluding the optional exception.
func (m *Manager) Broadcast(roomID int, payload []byte, except uint32) {
	m.mu.Lock()
	room := m.rooms[roomID]
	if room == nil {
		m.mu.Unlock()
		return
	}
	targets := m.roomPeers(room, except)
	m.mu.Unlock()

	for _, p := range targets {
		m.writeTo(p, payload)
	}
}

// BroadcastSnapshot composes a fresh room snapshot and sends it to
// every member except the given one. The session calls this after its
// greeting sequence so pre-existing members see the newcomer.
func (m *Manager) BroadcastSnapshot(roomID int, except uint32) {
	m.mu.Lock()
	room := m.rooms[roomID]
	if room == nil {
		m.mu.Unlock()
		return
	}
	snapshot := BuildSnapshot(room)
	targets := m.roomPeers(room, except)
	m.mu.Unlock()

	for _, p := range targets {
		m.writeTo(p, snapshot)
	}
}

// Snapshot returns the snapshot payload for a client's current room.
func (m *Manager) Snapshot(clientID uint32) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	pl, ok := m.placements[clientID]
	if !ok {
		return nil
	}
	room := m.rooms[pl.RoomID]
	if room == nil {
		return nil
	}
	return BuildSnapshot(room)
}

// MapPacket returns the map payload for a client's current room.
func (m *Manager) MapPacket(clientID uint32) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	pl, ok := m.placements[clientID]
	if !ok {
		return nil
	}
	room := m.rooms[pl.RoomID]
	if room == nil {
		return nil
	}
	return BuildMapPacket(room.Map)
}

// SetName updates a slot's display name from a player_name command and
// broadcasts the renormalized form to the whole room, sender included.
func (m *Manager) SetName(ctx context.Context, clientID uint32, ordinal int, rawName []byte) {
	name := SanitizeName(rawName)

	m.mu.Lock()
	pl, room := m.lookupLocked(clientID)
	if room == nil || ordinal < 0 || ordinal >= protocol.NumSlots {
		m.mu.Unlock()
		return
	}
	room.Slots[ordinal].Name = name

	b := protocol.NewPayloadBuilder()
	b.WriteByte(protocol.CmdPlayerName)
	b.WriteByte(byte(ordinal))
	b.WriteByte(0x00)
	b.WriteNullString(name)
	payload := b.Build()

	targets := m.roomPeers(room, 0)
	m.mu.Unlock()

	for _, p := range targets {
		m.writeTo(p, payload)
	}

	m.bus.Emit(ctx, events.Event{
		Type:   events.EventPlayerRenamed,
		Source: "lobby",
		Payload: events.PlayerRenamedPayload{
			RoomID: pl.RoomID,
			Slot:   ordinal,
			Name:   name,
		},
	})
}

// Chat sanitizes and broadcasts a lobby chat line to the whole room,
// sender included.
func (m *Manager) Chat(ctx context.Context, clientID uint32, rawText []byte) {
	text := SanitizeChat(rawText)

	m.mu.Lock()
	pl, room := m.lookupLocked(clientID)
	if room == nil {
		m.mu.Unlock()
		return
	}
	payload := protocol.BuildChat(text)
	targets := m.roomPeers(room, 0)
	m.mu.Unlock()

	for _, p := range targets {
		m.writeTo(p, payload)
	}

	m.bus.Emit(ctx, events.Event{
		Type:   events.EventChatMessage,
		Source: "lobby",
		Payload: events.ChatMessagePayload{
			RoomID: pl.RoomID,
			Slot:   pl.Slot,
			Text:   text,
		},
	})
}

// SetRace updates a slot's race and broadcasts it.
func (m *Manager) SetRace(clientID uint32, race byte, ordinal int) {
	if race != protocol.RaceHumans {
		race = protocol.RaceAliens
	}
	m.setSlotField(clientID, ordinal, protocol.CmdPlayerRace, race, func(s *Slot) {
		s.Race = race
	})
}

// SetColor updates a slot's color and broadcasts it.
func (m *Manager) SetColor(clientID uint32, color byte, ordinal int) {
	m.setSlotField(clientID, ordinal, protocol.CmdPlayerColor, color, func(s *Slot) {
		s.Color = int(color)
	})
}

// SetTeam updates a slot's team and broadcasts it.
func (m *Manager) SetTeam(clientID uint32, team byte, ordinal int) {
	m.setSlotField(clientID, ordinal, protocol.CmdPlayerTeam, team, func(s *Slot) {
		s.Team = int(team)
	})
}

func (m *Manager) setSlotField(clientID uint32, ordinal int, opcode, value byte, apply func(*Slot)) {
	m.mu.Lock()
	_, room := m.lookupLocked(clientID)
	if room == nil || ordinal < 0 || ordinal >= protocol.NumSlots {
		m.mu.Unlock()
		return
	}
	apply(&room.Slots[ordinal])

	payload := protocol.BuildCommand(opcode, []byte{value, byte(ordinal)})
	targets := m.roomPeers(room, 0)
	m.mu.Unlock()

	for _, p := range targets {
		m.writeTo(p, payload)
	}
}

// Ready marks the sender's own slot ready (the command carries no
// ordinal) and broadcasts ready_for_battle for it. When that leaves
// every occupied human seat ready, the AI in slot 0 readies too and
// its broadcast follows.
func (m *Manager) Ready(clientID uint32) {
	m.mu.Lock()
	pl, room := m.lookupLocked(clientID)
	if room == nil {
		m.mu.Unlock()
		return
	}

	room.Slots[pl.Slot].Ready = true

	payloads := [][]byte{
		protocol.BuildPlayerReady(protocol.ReadyForBattle, pl.Slot),
	}

	if room.humansReady() && !room.Slots[0].Ready {
		room.Slots[0].Ready = true
		payloads = append(payloads, protocol.BuildPlayerReady(protocol.ReadyForBattle, 0))
	}

	targets := m.roomPeers(room, 0)
	m.mu.Unlock()

	for _, payload := range payloads {
		for _, p := range targets {
			m.writeTo(p, payload)
		}
	}
}

// BeginBattle records the sender's vote to launch. When every client
// currently in the room has voted, the room transitions into battle
// and a game_speed command is broadcast to all members. Returns
// whether this vote caused the transition.
func (m *Manager) BeginBattle(ctx context.Context, clientID uint32) bool {
	m.mu.Lock()
	pl, room := m.lookupLocked(clientID)
	if room == nil {
		m.mu.Unlock()
		return false
	}

	m.battleInitiated[clientID] = true

	for id := range room.Clients {
		if !m.battleInitiated[id] {
			m.mu.Unlock()
			return false
		}
	}

	room.InBattle = true
	playerCount := len(room.Clients)
	payload := protocol.BuildCommand(protocol.CmdGameSpeed, protocol.GameSpeedPayload)
	targets := m.roomPeers(room, 0)
	m.mu.Unlock()

	for _, p := range targets {
		m.writeTo(p, payload)
	}

	m.logger.Info().
		Int("room", pl.RoomID).
		Int("players", playerCount).
		Msg("battle started")

	m.bus.Emit(ctx, events.Event{
		Type:   events.EventBattleStarted,
		Source: "lobby",
		Payload: events.BattleStartedPayload{
			RoomID:      pl.RoomID,
			PlayerCount: playerCount,
			At:          time.Now(),
		},
	})

	return true
}

// Relay forwards an opaque command to every other client in the
// sender's room. unit_move carries a trailing 0x00 that the retail
// client chokes on when echoed; it is stripped before rebroadcast.
func (m *Manager) Relay(clientID uint32, opcode byte, data []byte) {
	if opcode == protocol.CmdUnitMove {
		data = protocol.TrimTerm(data)
	}

	m.mu.Lock()
	_, room := m.lookupLocked(clientID)
	if room == nil {
		m.mu.Unlock()
		return
	}
	payload := protocol.BuildCommand(opcode, data)
	targets := m.roomPeers(room, clientID)
	m.mu.Unlock()

	for _, p := range targets {
		m.writeTo(p, payload)
	}
}

// LobbyPingTick sends one empty ping to every client that has received
// its map packet, in every room that is idle in the lobby. Rooms in
// battle keep liveness through the battle-ping stream instead.
func (m *Manager) LobbyPingTick() {
	payload := protocol.BuildCommand(protocol.CmdPing, nil)

	m.mu.Lock()
	var targets []Peer
	for _, room := range m.rooms {
		if room.InBattle || len(room.Clients) == 0 {
			continue
		}
		room.LobbyPings++
		for id := range room.Clients {
			if p, ok := m.clients[id]; ok && p.MapSent() {
				targets = append(targets, p)
			}
		}
	}
	m.mu.Unlock()

	for _, p := range targets {
		m.writeTo(p, payload)
	}
}

// lookupLocked resolves a client to its placement and room. Caller
// holds m.mu.
func (m *Manager) lookupLocked(clientID uint32) (Placement, *Room) {
	pl, ok := m.placements[clientID]
	if !ok {
		return Placement{}, nil
	}
	return pl, m.rooms[pl.RoomID]
}

// SanitizeName reduces a raw name to printable ASCII, truncated to
// MaxNameLen.
func SanitizeName(raw []byte) string {
	var sb strings.Builder
	for _, c := range raw {
		if c >= 0x20 && c <= 0x7e {
			sb.WriteByte(c)
		}
		if sb.Len() == MaxNameLen {
			break
		}
	}
	return sb.String()
}

// SanitizeChat drops CR/LF from a chat line and truncates it to
// MaxChatLen.
func SanitizeChat(raw []byte) string {
	var sb strings.Builder
	for _, c := range raw {
		if c == '\r' || c == '\n' {
			continue
		}
		sb.WriteByte(c)
		if sb.Len() == MaxChatLen {
			break
		}
	}
	return sb.String()
}
