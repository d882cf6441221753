package world

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateID = errors.New("duplicate entity id")
	ErrNoSuchGrid  = errors.New("no such grid")
)

// World holds every live entity of the simulation in memory.
// It is not safe for concurrent mutation; readers may share it freely
// while no writer is active.
type World struct {
	grids   map[EntityID]*Grid
	blocks  map[EntityID]*Block
	objects map[EntityID]*Object
	nextID  EntityID
}

// NewWorld creates an empty World.
func NewWorld() *World {
	return &World{
		grids:   make(map[EntityID]*Grid),
		blocks:  make(map[EntityID]*Block),
		objects: make(map[EntityID]*Object),
		nextID:  1,
	}
}

// NextID returns an id not yet used by any entity.
func (w *World) NextID() EntityID {
	for w.taken(w.nextID) {
		w.nextID++
	}
	id := w.nextID
	w.nextID++
	return id
}

func (w *World) taken(id EntityID) bool {
	if _, ok := w.grids[id]; ok {
		return true
	}
	if _, ok := w.blocks[id]; ok {
		return true
	}
	_, ok := w.objects[id]
	return ok
}

// AddGrid registers a grid together with any blocks it already carries.
func (w *World) AddGrid(g *Grid) error {
	if g.ID == NoEntity {
		g.ID = w.NextID()
	}
	if w.taken(g.ID) {
		return fmt.Errorf("world: add grid %d: %w", g.ID, ErrDuplicateID)
	}
	seen := make(map[EntityID]struct{}, len(g.Blocks))
	for _, b := range g.Blocks {
		if b == nil || b.ID == NoEntity {
			continue
		}
		if _, dup := seen[b.ID]; dup || w.taken(b.ID) || b.ID == g.ID {
			return fmt.Errorf("world: add grid %d block %d: %w", g.ID, b.ID, ErrDuplicateID)
		}
		seen[b.ID] = struct{}{}
	}
	if g.Physics == nil {
		g.Physics = &Physics{}
	}
	w.grids[g.ID] = g
	for _, b := range g.Blocks {
		if b == nil {
			continue
		}
		if b.ID == NoEntity {
			b.ID = w.NextID()
		}
		b.Grid = g.ID
		w.blocks[b.ID] = b
	}
	return nil
}

// AddBlock appends a block to an existing grid.
func (w *World) AddBlock(gridID EntityID, b *Block) error {
	g, ok := w.grids[gridID]
	if !ok {
		return fmt.Errorf("world: add block to %d: %w", gridID, ErrNoSuchGrid)
	}
	if b.ID == NoEntity {
		b.ID = w.NextID()
	}
	if w.taken(b.ID) {
		return fmt.Errorf("world: add block %d: %w", b.ID, ErrDuplicateID)
	}
	b.Grid = gridID
	g.Blocks = append(g.Blocks, b)
	w.blocks[b.ID] = b
	return nil
}

// AddObject registers a free-floating entity.
func (w *World) AddObject(o *Object) error {
	if o.ID == NoEntity {
		o.ID = w.NextID()
	}
	if w.taken(o.ID) {
		return fmt.Errorf("world: add object %d: %w", o.ID, ErrDuplicateID)
	}
	if o.Physics == nil {
		o.Physics = &Physics{}
	}
	w.objects[o.ID] = o
	return nil
}

// RemoveGrid unregisters a grid and all of its blocks.
func (w *World) RemoveGrid(id EntityID) bool {
	g, ok := w.grids[id]
	if !ok {
		return false
	}
	for _, b := range g.Blocks {
		delete(w.blocks, b.ID)
	}
	delete(w.grids, id)
	return true
}

// RemoveBlock detaches a block from its grid and unregisters it.
func (w *World) RemoveBlock(id EntityID) bool {
	b, ok := w.blocks[id]
	if !ok {
		return false
	}
	if g, ok := w.grids[b.Grid]; ok {
		for i, gb := range g.Blocks {
			if gb.ID == id {
				g.Blocks = append(g.Blocks[:i], g.Blocks[i+1:]...)
				break
			}
		}
	}
	delete(w.blocks, id)
	return true
}

// EntityExists reports whether id names a live entity. NoEntity never exists.
func (w *World) EntityExists(id EntityID) bool {
	if id == NoEntity {
		return false
	}
	return w.taken(id)
}

// EntityByID returns the entity registered under id, or nil.
func (w *World) EntityByID(id EntityID) Entity {
	if g, ok := w.grids[id]; ok {
		return g
	}
	if b, ok := w.blocks[id]; ok {
		return b
	}
	if o, ok := w.objects[id]; ok {
		return o
	}
	return nil
}

// Grid returns the grid with the given id, or nil.
func (w *World) Grid(id EntityID) *Grid {
	return w.grids[id]
}

// Block returns the block with the given id, or nil.
func (w *World) Block(id EntityID) *Block {
	return w.blocks[id]
}

// Object returns the free-floating entity with the given id, or nil.
func (w *World) Object(id EntityID) *Object {
	return w.objects[id]
}

// GetGrids returns every grid accepted by pred, ordered by id.
// A nil pred accepts every grid.
func (w *World) GetGrids(pred func(*Grid) bool) []*Grid {
	out := make([]*Grid, 0, len(w.grids))
	for _, g := range w.grids {
		if pred == nil || pred(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Objects returns every free-floating entity ordered by id.
func (w *World) Objects() []*Object {
	out := make([]*Object, 0, len(w.objects))
	for _, o := range w.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered grids, blocks and objects.
func (w *World) Len() (grids, blocks, objects int) {
	return len(w.grids), len(w.blocks), len(w.objects)
}
