package attach

import "github.com/crystal-mush/gridadmin/pkg/world"

// FindInboundLocks returns every grid, other than those for which skip
// reports true, that has an engaged landing gear locked onto target.
//
// A gear's lock is recorded only on the gear, so the grid being locked onto
// cannot see it. This is a full scan of every remaining grid and every block
// on it, and it is the dominant cost of an All-mode traversal. It must visit
// all candidates: several grids may be locked onto the same target.
func FindInboundLocks(view WorldView, target world.EntityID, skip func(world.EntityID) bool) []world.EntityID {
	ids, _ := scanInboundLocks(view, target, skip)
	return ids
}

// scanInboundLocks is FindInboundLocks plus the number of grids scanned.
func scanInboundLocks(view WorldView, target world.EntityID, skip func(world.EntityID) bool) ([]world.EntityID, int) {
	candidates := view.GetGrids(func(g *world.Grid) bool {
		return g.ID != target && (skip == nil || !skip(g.ID))
	})

	var found []world.EntityID
	for _, g := range candidates {
		gears := g.GetBlocks(func(b *world.Block) bool {
			return b.Type != world.BlockNone && Classify(b) == JointGearLock
		})
		for _, gear := range gears {
			if gear.GearLocked && gear.AttachedEntity == target {
				found = append(found, g.ID)
				break
			}
		}
	}
	return found, len(candidates)
}
