package attach

import "github.com/crystal-mush/gridadmin/pkg/world"

// WorldView is the read-only slice of the world the traversal needs.
// *world.World satisfies it.
type WorldView interface {
	EntityExists(id world.EntityID) bool
	EntityByID(id world.EntityID) world.Entity
	GetGrids(pred func(*world.Grid) bool) []*world.Grid
}

type resolver func(view WorldView, b *world.Block) (world.EntityID, bool)

// resolvers is the dispatch table for forward link resolution. Adding a joint
// kind means adding a Classify entry and a resolver here.
var resolvers = map[JointKind]resolver{
	JointStator:     resolveStator,
	JointRotor:      resolveRotor,
	JointPistonBase: resolvePistonBase,
	JointPistonTop:  resolvePistonTop,
	JointConnector:  resolveConnector,
	JointGearLock:   resolveGearLock,
}

// ResolveLink returns the grid on the other end of the joint held by b.
// It reports false when the joint is unlinked, disengaged, or references an
// entity that no longer exists.
func ResolveLink(view WorldView, b *world.Block, kind JointKind) (world.EntityID, bool) {
	if b == nil {
		return world.NoEntity, false
	}
	r, ok := resolvers[kind]
	if !ok {
		return world.NoEntity, false
	}
	return r(view, b)
}

// parentGrid returns the grid owning the block registered under ref.
func parentGrid(view WorldView, ref world.EntityID) (world.EntityID, bool) {
	if ref == world.NoEntity || !view.EntityExists(ref) {
		return world.NoEntity, false
	}
	blk, ok := view.EntityByID(ref).(*world.Block)
	if !ok || blk == nil {
		return world.NoEntity, false
	}
	return gridID(view, blk.Grid)
}

// gridID confirms ref names a live grid.
func gridID(view WorldView, ref world.EntityID) (world.EntityID, bool) {
	if ref == world.NoEntity {
		return world.NoEntity, false
	}
	g, ok := view.EntityByID(ref).(*world.Grid)
	if !ok || g == nil {
		return world.NoEntity, false
	}
	return g.ID, true
}

func resolveStator(view WorldView, b *world.Block) (world.EntityID, bool) {
	return parentGrid(view, b.RotorEntityID)
}

func resolveRotor(view WorldView, b *world.Block) (world.EntityID, bool) {
	base := FindRotorBase(view, b.ID)
	if base == nil {
		return world.NoEntity, false
	}
	return gridID(view, base.Grid)
}

func resolvePistonBase(view WorldView, b *world.Block) (world.EntityID, bool) {
	return parentGrid(view, b.TopBlockID)
}

func resolvePistonTop(view WorldView, b *world.Block) (world.EntityID, bool) {
	return parentGrid(view, b.PistonBlockID)
}

func resolveConnector(view WorldView, b *world.Block) (world.EntityID, bool) {
	if !b.ConnectorLocked || !b.ConnectorConnected {
		return world.NoEntity, false
	}
	return parentGrid(view, b.OtherConnector)
}

func resolveGearLock(view WorldView, b *world.Block) (world.EntityID, bool) {
	if !b.GearLocked {
		return world.NoEntity, false
	}
	return gridID(view, b.AttachedEntity)
}

// FindRotorBase returns the stator-family block whose rotor reference names
// rotorID, or nil when the rotor is detached. Rotors do not record their
// base, so this looks at every stator in the world.
func FindRotorBase(view WorldView, rotorID world.EntityID) *world.Block {
	if rotorID == world.NoEntity {
		return nil
	}
	for _, g := range view.GetGrids(nil) {
		for _, b := range g.Blocks {
			if b != nil && Classify(b) == JointStator && b.RotorEntityID == rotorID {
				return b
			}
		}
	}
	return nil
}
