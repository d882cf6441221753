package admin

import (
	"fmt"

	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

// HaltReport describes what StopShip changed.
type HaltReport struct {
	Origin    world.EntityID   `json:"origin"`
	Halted    []world.EntityID `json:"halted"`
	Static    []world.EntityID `json:"static,omitempty"`
	Dampened  []world.EntityID `json:"dampened,omitempty"`
	Controls  int              `json:"controls_stopped"`
	Structure int              `json:"structure_size"`
}

// StopShip halts every dynamic grid attached to gridID under attach.All.
// Dampeners are switched on through a ship-controlling cockpit when they are
// off, every working cockpit's input is cleared and the grid's velocity is
// zeroed. Static grids are left untouched.
func (s *Service) StopShip(gridID world.EntityID) (HaltReport, error) {
	s.mu.Lock()
	origin, err := s.lookupGrid(gridID)
	if err != nil {
		s.mu.Unlock()
		return HaltReport{}, err
	}
	set := s.discover(origin, attach.All)
	rep := s.halt(origin.ID, set)
	s.mu.Unlock()

	s.metrics.GridsHalted(len(rep.Halted))
	s.log.Info().
		Int64("grid", int64(gridID)).
		Int("structure", rep.Structure).
		Int("halted", len(rep.Halted)).
		Int("dampened", len(rep.Dampened)).
		Msg("ship stopped")
	s.emit(events.Event{
		Type:   events.EvHalt,
		Entity: gridID,
		Grids:  rep.Halted,
		Text:   fmt.Sprintf("Stopped %d grid(s).", len(rep.Halted)),
	})
	s.record("stop", gridID, rep.Halted, fmt.Sprintf("structure=%d dampened=%s", rep.Structure, FormatIDs(rep.Dampened)))
	return rep, nil
}

// halt applies the stop to each member of set. Callers hold the write lock.
func (s *Service) halt(origin world.EntityID, set attach.Set) HaltReport {
	rep := HaltReport{Origin: origin, Structure: set.Len()}
	for _, g := range set.Grids(s.world) {
		if g.IsStatic {
			rep.Static = append(rep.Static, g.ID)
			continue
		}
		cockpits := FindWorkingCockpits(g)
		if !g.DampenersEnabled {
			for _, c := range cockpits {
				if IsShipControlEnabled(c) {
					g.DampenersEnabled = true
					rep.Dampened = append(rep.Dampened, g.ID)
					break
				}
			}
		}
		for _, c := range cockpits {
			c.MoveAndRotateStopped()
			rep.Controls++
		}
		if g.Physics != nil {
			g.Physics.ClearSpeed()
		}
		rep.Halted = append(rep.Halted, g.ID)
	}
	return rep
}

// Stop halts entityID: grids via StopShip, other entities with physics by
// clearing their velocity. It reports false for entities that cannot move.
func (s *Service) Stop(entityID world.EntityID) (bool, error) {
	s.mu.Lock()
	ent := s.world.EntityByID(entityID)
	switch e := ent.(type) {
	case nil:
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrNoSuchEntity, entityID)
	case *world.Grid:
		s.mu.Unlock()
		_, err := s.StopShip(e.ID)
		return err == nil, err
	case *world.Object:
		if e.Physics == nil {
			s.mu.Unlock()
			return false, nil
		}
		e.Physics.ClearSpeed()
		s.mu.Unlock()
		s.log.Info().Int64("entity", int64(entityID)).Str("name", e.Name).Msg("object stopped")
		s.emit(events.Event{Type: events.EvHalt, Entity: entityID, Text: fmt.Sprintf("Stopped %s.", e.Name)})
		s.record("stop", entityID, nil, "object")
		return true, nil
	default:
		s.mu.Unlock()
		return false, nil
	}
}
