// Package worldfile reads and writes YAML world descriptions.
//
// A world file lists grids with their blocks and any free-floating objects:
//
//	grids:
//	  - id: 1
//	    name: Miner
//	    owners: [7]
//	    velocity: {linear: [0, 0, 5]}
//	    blocks:
//	      - {id: 10, type: stator, rotor: 11}
//	      - {id: 12, type: landing_gear, gear: {attached: 3, locked: true}}
//	  - id: 2
//	    blocks:
//	      - {id: 11, type: rotor}
//
// Joint references are not checked here; see package validate.
package worldfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// File is the on-disk document.
type File struct {
	Grids   []GridSpec   `yaml:"grids"`
	Objects []ObjectSpec `yaml:"objects,omitempty"`
}

// GridSpec describes one grid.
type GridSpec struct {
	ID        int64       `yaml:"id"`
	Name      string      `yaml:"name,omitempty"`
	Static    bool        `yaml:"static,omitempty"`
	Dampeners *bool       `yaml:"dampeners,omitempty"` // default on
	Owners    []int64     `yaml:"owners,flow,omitempty"`
	Velocity  *Velocity   `yaml:"velocity,omitempty"`
	Blocks    []BlockSpec `yaml:"blocks,omitempty"`
}

// Velocity is linear and angular velocity as [x, y, z] triples.
type Velocity struct {
	Linear  []float64 `yaml:"linear,flow,omitempty"`
	Angular []float64 `yaml:"angular,flow,omitempty"`
}

// ConnectorSpec is the state of a connector block.
type ConnectorSpec struct {
	Other     int64 `yaml:"other"`
	Locked    bool  `yaml:"locked,omitempty"`
	Connected bool  `yaml:"connected,omitempty"`
}

// GearSpec is the state of a landing gear block.
type GearSpec struct {
	Attached int64 `yaml:"attached"`
	Locked   bool  `yaml:"locked,omitempty"`
}

// BlockSpec describes one block.
type BlockSpec struct {
	ID          int64          `yaml:"id"`
	Type        string         `yaml:"type"`
	Name        string         `yaml:"name,omitempty"`
	Rotor       int64          `yaml:"rotor,omitempty"`
	Top         int64          `yaml:"top,omitempty"`
	Piston      int64          `yaml:"piston,omitempty"`
	Connector   *ConnectorSpec `yaml:"connector,omitempty"`
	Gear        *GearSpec      `yaml:"gear,omitempty"`
	Enabled     *bool          `yaml:"enabled,omitempty"` // default on
	Working     *bool          `yaml:"working,omitempty"` // default on
	Owner       int64          `yaml:"owner,omitempty"`
	ShipControl bool           `yaml:"ship_control,omitempty"`
	Pilot       int64          `yaml:"pilot,omitempty"`
}

// ObjectSpec describes a free-floating entity.
type ObjectSpec struct {
	ID       int64     `yaml:"id"`
	Name     string    `yaml:"name,omitempty"`
	Velocity *Velocity `yaml:"velocity,omitempty"`
}

// Load reads and builds the world in path.
func Load(path string) (*world.World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("worldfile: reading %s: %w", path, err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("worldfile: %s: %w", path, err)
	}
	return w, nil
}

// Parse builds a world from YAML.
func Parse(data []byte) (*world.World, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return f.Build()
}

// Build converts the document into a registered world.
func (f *File) Build() (*world.World, error) {
	w := world.NewWorld()
	for i, gs := range f.Grids {
		g := &world.Grid{
			ID:               world.EntityID(gs.ID),
			Name:             gs.Name,
			IsStatic:         gs.Static,
			DampenersEnabled: boolOr(gs.Dampeners, true),
			Physics:          gs.Velocity.physics(),
		}
		for _, p := range gs.Owners {
			g.SmallOwners = append(g.SmallOwners, world.PlayerID(p))
		}
		for j, bs := range gs.Blocks {
			b, err := bs.block()
			if err != nil {
				return nil, fmt.Errorf("grid %d (#%d) block #%d: %w", gs.ID, i, j, err)
			}
			g.Blocks = append(g.Blocks, b)
		}
		if err := w.AddGrid(g); err != nil {
			return nil, err
		}
	}
	for _, spec := range f.Objects {
		o := &world.Object{ID: world.EntityID(spec.ID), Name: spec.Name, Physics: spec.Velocity.physics()}
		if err := w.AddObject(o); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (bs BlockSpec) block() (*world.Block, error) {
	typ, ok := world.ParseBlockType(bs.Type)
	if !ok || typ == world.BlockNone {
		return nil, fmt.Errorf("unknown block type %q", bs.Type)
	}
	b := &world.Block{
		ID:            world.EntityID(bs.ID),
		Type:          typ,
		Name:          bs.Name,
		RotorEntityID: world.EntityID(bs.Rotor),
		TopBlockID:    world.EntityID(bs.Top),
		PistonBlockID: world.EntityID(bs.Piston),
		Enabled:       boolOr(bs.Enabled, true),
		Working:       boolOr(bs.Working, true),
		Owner:         world.PlayerID(bs.Owner),
		ShipControl:   bs.ShipControl,
		Pilot:         world.PlayerID(bs.Pilot),
	}
	if c := bs.Connector; c != nil {
		b.OtherConnector = world.EntityID(c.Other)
		b.ConnectorLocked = c.Locked
		b.ConnectorConnected = c.Connected
	}
	if g := bs.Gear; g != nil {
		b.AttachedEntity = world.EntityID(g.Attached)
		b.GearLocked = g.Locked
	}
	return b, nil
}

// Marshal renders w as a world file.
func Marshal(w *world.World) ([]byte, error) {
	var f File
	for _, g := range w.GetGrids(nil) {
		gs := GridSpec{
			ID:       int64(g.ID),
			Name:     g.Name,
			Static:   g.IsStatic,
			Velocity: velocityOf(g.Physics),
		}
		if !g.DampenersEnabled {
			off := false
			gs.Dampeners = &off
		}
		for _, p := range g.SmallOwners {
			gs.Owners = append(gs.Owners, int64(p))
		}
		for _, b := range g.GetBlocks(nil) {
			gs.Blocks = append(gs.Blocks, specOf(b))
		}
		f.Grids = append(f.Grids, gs)
	}
	for _, o := range w.Objects() {
		f.Objects = append(f.Objects, ObjectSpec{ID: int64(o.ID), Name: o.Name, Velocity: velocityOf(o.Physics)})
	}
	return yaml.Marshal(&f)
}

func specOf(b *world.Block) BlockSpec {
	bs := BlockSpec{
		ID:          int64(b.ID),
		Type:        b.Type.String(),
		Name:        b.Name,
		Rotor:       int64(b.RotorEntityID),
		Top:         int64(b.TopBlockID),
		Piston:      int64(b.PistonBlockID),
		Owner:       int64(b.Owner),
		ShipControl: b.ShipControl,
		Pilot:       int64(b.Pilot),
	}
	if b.OtherConnector != world.NoEntity || b.ConnectorLocked || b.ConnectorConnected {
		bs.Connector = &ConnectorSpec{Other: int64(b.OtherConnector), Locked: b.ConnectorLocked, Connected: b.ConnectorConnected}
	}
	if b.AttachedEntity != world.NoEntity || b.GearLocked {
		bs.Gear = &GearSpec{Attached: int64(b.AttachedEntity), Locked: b.GearLocked}
	}
	if !b.Enabled {
		off := false
		bs.Enabled = &off
	}
	if !b.Working {
		off := false
		bs.Working = &off
	}
	return bs
}

func (v *Velocity) physics() *world.Physics {
	p := &world.Physics{}
	if v == nil {
		return p
	}
	p.Linear = vec(v.Linear)
	p.Angular = vec(v.Angular)
	return p
}

func velocityOf(p *world.Physics) *Velocity {
	if p == nil || !p.Moving() {
		return nil
	}
	v := &Velocity{}
	if !p.Linear.IsZero() {
		v.Linear = []float64{p.Linear.X, p.Linear.Y, p.Linear.Z}
	}
	if !p.Angular.IsZero() {
		v.Angular = []float64{p.Angular.X, p.Angular.Y, p.Angular.Z}
	}
	return v
}

func vec(xs []float64) world.Vector3 {
	var v world.Vector3
	if len(xs) > 0 {
		v.X = xs[0]
	}
	if len(xs) > 1 {
		v.Y = xs[1]
	}
	if len(xs) > 2 {
		v.Z = xs[2]
	}
	return v
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
