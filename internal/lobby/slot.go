// Package lobby implements the room and slot state machine: admission,
// slot and color assignment, lobby mutations, battle transition, and
// broadcast fan-out to room members.
package lobby

import (
	"math/rand"

	"github.com/colonyrelay-project/colonyrelay/internal/protocol"
)

// Slot is one of the eight fixed player positions in a room. Slot 0 is
// reserved for the AI player; slots 1..7 hold humans.
type Slot struct {
	ClientID uint32 // 0 when unoccupied
	Name     string
	Race     byte
	Type     byte
	Team     int
	Color    int
	Ready    bool
}

// Occupied reports whether a connected client owns this slot.
func (s *Slot) Occupied() bool {
	return s.ClientID != 0
}

// Active reports whether the slot takes part in color uniqueness: any
// slot whose type is a player (human or AI) rather than none.
func (s *Slot) Active() bool {
	switch s.Type {
	case protocol.TypeGamer, protocol.TypeAIEasy, protocol.TypeAIHard:
		return true
	}
	return false
}

// ReadyByte renders the ready flag in wire form.
func (s *Slot) ReadyByte() byte {
	if s.Ready {
		return protocol.ReadyYes
	}
	return protocol.ReadyNo
}

// TypeName returns the slot type as a readable string for the monitor
// surfaces.
func (s *Slot) TypeName() string {
	switch s.Type {
	case protocol.TypeAIEasy:
		return "ai_easy"
	case protocol.TypeAIHard:
		return "ai_hard"
	case protocol.TypeGamer:
		return "gamer"
	default:
		return "none"
	}
}

// RaceName returns the race as a readable string for the monitor
// surfaces.
func (s *Slot) RaceName() string {
	if s.Race == protocol.RaceHumans {
		return "humans"
	}
	return "aliens"
}

func randomRace(rng *rand.Rand) byte {
	if rng.Intn(2) == 0 {
		return protocol.RaceAliens
	}
	return protocol.RaceHumans
}
