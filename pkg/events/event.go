package events

import "github.com/crystal-mush/gridadmin/pkg/world"

// EventType classifies events for subscribers.
type EventType int

const (
	EvText      EventType = iota // Raw text notice
	EvHalt                       // Grids stopped
	EvEject                      // Pilot removed from a controller
	EvOwners                     // Ownership report
	EvBlockSync                  // Replicated block state change
	EvAudit                      // Admin action recorded
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvHalt:
		return "halt"
	case EvEject:
		return "eject"
	case EvOwners:
		return "owners"
	case EvBlockSync:
		return "block_sync"
	case EvAudit:
		return "audit"
	default:
		return "unknown"
	}
}

// Event is a structured admin event that flows through the bus.
type Event struct {
	Type    EventType
	Player  world.PlayerID   // Recipient (0 for broadcast)
	Source  world.PlayerID   // Who caused it
	Entity  world.EntityID   // Entity acted on
	Grids   []world.EntityID // Grids affected
	Text    string
	Payload []byte         // Encoded wire message (EvBlockSync)
	Data    map[string]any // Structured extras
}
