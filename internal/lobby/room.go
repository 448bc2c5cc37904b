package lobby

import (
	"fmt"
	"math/rand"

	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

// MapDescriptor identifies the scenario a room will launch.
type MapDescriptor struct {
	Type        string `json:"type"`         // one type char, e.g. "D" for desert
	PlayerCount string `json:"player_count"` // one count char, e.g. "8"
	Filename    string `json:"filename"`
	DisplayName string `json:"display_name"`
}

// Room is a container for up to eight players (seven humans plus the
// AI in slot 0) sharing a map. Rooms carry client ids, not client
// handles; all fan-out goes through the manager, which owns both maps.
type Room struct {
	ID        int
	Clients   map[uint32]struct{}
	InBattle  bool
	Slots     [protocol.NumSlots]Slot
	Map       MapDescriptor
	LobbyPings uint64
}

// newRoom allocates a room with the create-time slot defaults: the AI
// seat is a "spectator" gamer, the human seats are open PlayerN seats
// that read as ready so the lobby screen shows them greyed out.
func newRoom(id int, m MapDescriptor, rng *rand.Rand) *Room {
	r := &Room{
		ID:      id,
		Clients: make(map[uint32]struct{}),
		Map:     m,
	}

	r.Slots[0] = Slot{
		Name:  "spectator",
		Race:  randomRace(rng),
		Type:  protocol.TypeGamer,
		Team:  0,
		Color: 0,
		Ready: false,
	}

	for i := 1; i < protocol.NumSlots; i++ {
		r.Slots[i] = Slot{
			Name:  fmt.Sprintf("Player%d", i),
			Race:  randomRace(rng),
			Type:  protocol.TypeNone,
			Team:  i,
			Color: i,
			Ready: true,
		}
	}

	return r
}

// resetBattleState returns an emptied room to its recyclable defaults.
// The AI seat comes back as "battle_bot" rather than the create-time
// "spectator"; the divergence matches the captured server behavior for
// recycled rooms.
func (r *Room) resetBattleState(rng *rand.Rand) {
	r.InBattle = false

	r.Slots[0] = Slot{
		Name:  "battle_bot",
		Race:  randomRace(rng),
		Type:  protocol.TypeAIHard,
		Team:  0,
		Color: 0,
		Ready: false,
	}

	for i := 1; i < protocol.NumSlots; i++ {
		r.Slots[i] = Slot{
			Name:  fmt.Sprintf("Player%d", i),
			Race:  randomRace(rng),
			Type:  protocol.TypeNone,
			Team:  i,
			Color: i,
			Ready: true,
		}
	}
}

// freeSlots returns the indices in 1..7 open for admission.
func (r *Room) freeSlots() []int {
	var free []int
	for i := 1; i < protocol.NumSlots; i++ {
		s := &r.Slots[i]
		if s.Type == protocol.TypeNone && !s.Occupied() {
			free = append(free, i)
		}
	}
	return free
}

// Joinable reports whether a new client may be admitted: the room is
// not mid-battle and at least one human seat is open.
func (r *Room) Joinable() bool {
	return !r.InBattle && len(r.freeSlots()) > 0
}

// lowestFreeColor returns the lowest color index not held by any
// active slot, or -1 when all eight are taken.
func (r *Room) lowestFreeColor() int {
	var used [protocol.NumSlots]bool
	for i := range r.Slots {
		s := &r.Slots[i]
		if s.Active() && s.Color >= 0 && s.Color < protocol.NumSlots {
			used[s.Color] = true
		}
	}
	for c := 0; c < protocol.NumSlots; c++ {
		if !used[c] {
			return c
		}
	}
	return -1
}

// slotOf returns the index of the slot owned by a client, or -1.
func (r *Room) slotOf(clientID uint32) int {
	for i := range r.Slots {
		if r.Slots[i].ClientID == clientID {
			return i
		}
	}
	return -1
}

// humansReady reports whether every occupied human slot is ready.
func (r *Room) humansReady() bool {
	for i := 1; i < protocol.NumSlots; i++ {
		s := &r.Slots[i]
		if s.Occupied() && !s.Ready {
			return false
		}
	}
	return true
}
