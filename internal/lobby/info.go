package lobby

import "sort"

// SlotInfo is a read-only snapshot of one slot for the monitor surfaces.
type SlotInfo struct {
	Index    int    `json:"index"`
	ClientID uint32 `json:"client_id,omitempty"`
	Name     string `json:"name"`
	Race     string `json:"race"`
	Type     string `json:"type"`
	Team     int    `json:"team"`
	Color    int    `json:"color"`
	Ready    bool   `json:"ready"`
}

// RoomInfo is a read-only snapshot of one room.
type RoomInfo struct {
	ID         int        `json:"id"`
	InBattle   bool       `json:"in_battle"`
	Clients    []uint32   `json:"clients"`
	Slots      []SlotInfo `json:"slots"`
	Map        string     `json:"map"`
	LobbyPings uint64     `json:"lobby_pings"`
}

// ClientInfo is a read-only snapshot of one connected client.
type ClientInfo struct {
	ID         uint32 `json:"id"`
	RemoteAddr string `json:"remote_addr"`
	RoomID     int    `json:"room_id"`
	Slot       int    `json:"slot"`
}

// RoomsInfo returns snapshots of every room, ordered by id.
func (m *Manager) RoomsInfo() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]RoomInfo, 0, len(m.rooms))
	for _, room := range m.rooms {
		infos = append(infos, m.roomInfoLocked(room))
	}
	sortRoomInfos(infos)
	return infos
}

// RoomInfoByID returns a snapshot of one room.
func (m *Manager) RoomInfoByID(id int) (RoomInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[id]
	if !ok {
		return RoomInfo{}, false
	}
	return m.roomInfoLocked(room), true
}

func (m *Manager) roomInfoLocked(room *Room) RoomInfo {
	info := RoomInfo{
		ID:         room.ID,
		InBattle:   room.InBattle,
		Map:        room.Map.Filename,
		LobbyPings: room.LobbyPings,
	}
	for id := range room.Clients {
		info.Clients = append(info.Clients, id)
	}
	for i := range room.Slots {
		s := &room.Slots[i]
		info.Slots = append(info.Slots, SlotInfo{
			Index:    i,
			ClientID: s.ClientID,
			Name:     s.Name,
			Race:     s.RaceName(),
			Type:     s.TypeName(),
			Team:     s.Team,
			Color:    s.Color,
			Ready:    s.Ready,
		})
	}
	return info
}

// ClientsInfo returns snapshots of every connected client.
func (m *Manager) ClientsInfo() []ClientInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]ClientInfo, 0, len(m.clients))
	for id, p := range m.clients {
		pl := m.placements[id]
		infos = append(infos, ClientInfo{
			ID:         id,
			RemoteAddr: p.RemoteAddr(),
			RoomID:     pl.RoomID,
			Slot:       pl.Slot,
		})
	}
	sortClientInfos(infos)
	return infos
}

// Counts returns the number of rooms and connected clients.
func (m *Manager) Counts() (rooms, clients int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms), len(m.clients)
}

// Placement returns a client's current placement.
func (m *Manager) Placement(clientID uint32) (Placement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.placements[clientID]
	return pl, ok
}

func sortRoomInfos(infos []RoomInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}

func sortClientInfos(infos []ClientInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}
