// Package worldtest builds small fixture worlds for tests.
package worldtest

import (
	"testing"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Builder assembles a world with explicit ids so tests can name grids and
// joints directly.
type Builder struct {
	t testing.TB
	W *world.World
}

// New creates a Builder over an empty world.
func New(t testing.TB) *Builder {
	t.Helper()
	return &Builder{t: t, W: world.NewWorld()}
}

// Grid adds a dynamic grid with dampeners on.
func (b *Builder) Grid(id world.EntityID, owners ...world.PlayerID) *world.Grid {
	b.t.Helper()
	g := &world.Grid{ID: id, Name: "grid", DampenersEnabled: true, SmallOwners: owners}
	if err := b.W.AddGrid(g); err != nil {
		b.t.Fatalf("add grid %d: %v", id, err)
	}
	return g
}

// StaticGrid adds an anchored grid.
func (b *Builder) StaticGrid(id world.EntityID, owners ...world.PlayerID) *world.Grid {
	b.t.Helper()
	g := b.Grid(id, owners...)
	g.IsStatic = true
	return g
}

// Block adds an arbitrary block to a grid.
func (b *Builder) Block(grid world.EntityID, blk *world.Block) *world.Block {
	b.t.Helper()
	if err := b.W.AddBlock(grid, blk); err != nil {
		b.t.Fatalf("add block %d to grid %d: %v", blk.ID, grid, err)
	}
	return blk
}

// Rotor joins grid a (stator side) to grid bGrid (rotor side).
// Ids for the stator and rotor blocks are supplied by the caller.
func (b *Builder) Rotor(a, statorID, bGrid, rotorID world.EntityID) (stator, rotor *world.Block) {
	b.t.Helper()
	rotor = b.Block(bGrid, &world.Block{ID: rotorID, Type: world.BlockRotor})
	stator = b.Block(a, &world.Block{ID: statorID, Type: world.BlockStator, RotorEntityID: rotorID, Enabled: true, Working: true})
	return stator, rotor
}

// Piston joins grid a (base side) to grid bGrid (top side).
func (b *Builder) Piston(a, baseID, bGrid, topID world.EntityID) (base, top *world.Block) {
	b.t.Helper()
	top = b.Block(bGrid, &world.Block{ID: topID, Type: world.BlockPistonTop, PistonBlockID: baseID})
	base = b.Block(a, &world.Block{ID: baseID, Type: world.BlockPistonBase, TopBlockID: topID, Enabled: true, Working: true})
	return base, top
}

// Connector joins two grids with a connector pair in the given state.
func (b *Builder) Connector(a, aID, bGrid, bID world.EntityID, locked, connected bool) (ca, cb *world.Block) {
	b.t.Helper()
	ca = b.Block(a, &world.Block{ID: aID, Type: world.BlockConnector, OtherConnector: bID,
		ConnectorLocked: locked, ConnectorConnected: connected, Enabled: true, Working: true})
	cb = b.Block(bGrid, &world.Block{ID: bID, Type: world.BlockConnector, OtherConnector: aID,
		ConnectorLocked: locked, ConnectorConnected: connected, Enabled: true, Working: true})
	return ca, cb
}

// Gear puts a landing gear on grid from, locked (or not) onto target.
func (b *Builder) Gear(from, gearID, target world.EntityID, locked bool) *world.Block {
	b.t.Helper()
	return b.Block(from, &world.Block{ID: gearID, Type: world.BlockLandingGear,
		AttachedEntity: target, GearLocked: locked, Enabled: true, Working: true})
}

// Cockpit adds a working, ship-controlling cockpit with an optional pilot.
func (b *Builder) Cockpit(grid, id world.EntityID, pilot world.PlayerID) *world.Block {
	b.t.Helper()
	return b.Block(grid, &world.Block{ID: id, Type: world.BlockCockpit, ShipControl: true,
		Pilot: pilot, Enabled: true, Working: true})
}
