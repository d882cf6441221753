package admin

import (
	"fmt"

	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

// FindWorkingCockpits returns the working cockpit-category blocks of g
// (cockpits and passenger seats), in block order.
func FindWorkingCockpits(g *world.Grid) []*world.Block {
	if g == nil {
		return nil
	}
	return g.GetBlocks(func(b *world.Block) bool {
		return b.Working && (b.Type == world.BlockCockpit || b.Type == world.BlockPassengerSeat)
	})
}

// IsShipControlEnabled reports whether b can steer its grid. Passenger seats
// never can.
func IsShipControlEnabled(b *world.Block) bool {
	if b == nil {
		return false
	}
	switch b.Type {
	case world.BlockCockpit, world.BlockRemoteControl:
		return b.ShipControl
	}
	return false
}

// EjectControllingPlayers releases every pilot seated in a controller on
// gridID and returns the ejected players in block order.
func (s *Service) EjectControllingPlayers(gridID world.EntityID) ([]world.PlayerID, error) {
	s.mu.Lock()
	g, err := s.lookupGrid(gridID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var ejected []world.PlayerID
	for _, b := range g.GetBlocks(func(b *world.Block) bool { return b.Type.IsController() }) {
		if b.Pilot == 0 {
			continue
		}
		ejected = append(ejected, b.Pilot)
		s.log.Info().
			Int64("grid", int64(gridID)).
			Int64("block", int64(b.ID)).
			Int64("pilot", int64(b.Pilot)).
			Msg("pilot ejected")
		b.Pilot = 0
		b.MoveAndRotateStopped()
	}
	s.mu.Unlock()

	if len(ejected) == 0 {
		return nil, nil
	}
	s.metrics.PilotsEjected(len(ejected))
	if s.bus != nil {
		s.bus.EmitToPlayers(ejected, events.Event{
			Type:   events.EvEject,
			Source: s.actor,
			Entity: gridID,
			Grids:  []world.EntityID{gridID},
			Text:   "You have been ejected by an administrator.",
		})
	}
	s.record("eject", gridID, []world.EntityID{gridID}, fmt.Sprintf("pilots=%s", FormatIDs(ejected)))
	return ejected, nil
}
