package attach

import (
	"sort"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Set is an immutable set of grid ids produced by Discover.
type Set struct {
	ids map[world.EntityID]struct{}
}

// Contains reports whether id is a member.
func (s Set) Contains(id world.EntityID) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.ids)
}

// IDs returns the members in ascending order.
func (s Set) IDs() []world.EntityID {
	out := make([]world.EntityID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubsetOf reports whether every member of s is in other.
func (s Set) SubsetOf(other Set) bool {
	for id := range s.ids {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(other Set) bool {
	return s.Len() == other.Len() && s.SubsetOf(other)
}

// Grids resolves the members against view, skipping any that vanished.
func (s Set) Grids(view WorldView) []*world.Grid {
	var out []*world.Grid
	for _, id := range s.IDs() {
		if g, ok := view.EntityByID(id).(*world.Grid); ok && g != nil {
			out = append(out, g)
		}
	}
	return out
}

// Stats counts the work done by one traversal.
type Stats struct {
	GridsVisited        int
	BlocksExamined      int
	LinksResolved       int
	ReverseScans        int
	ReverseGridsScanned int
}

// Discover returns the origin grid plus every grid transitively attached to
// it under mode.
//
// origin must be a live grid registered in view; callers validate that.
// The result always contains origin, holds each grid once and does not
// depend on block order.
func Discover(view WorldView, origin *world.Grid, mode Mode) Set {
	s, _ := Walk(view, origin, mode)
	return s
}

// Walk is Discover plus counters describing how much of the world it read.
func Walk(view WorldView, origin *world.Grid, mode Mode) (Set, Stats) {
	var st Stats
	visited := map[world.EntityID]struct{}{origin.ID: {}}
	seen := func(id world.EntityID) bool {
		_, ok := visited[id]
		return ok
	}

	work := []*world.Grid{origin}
	for len(work) > 0 {
		g := work[len(work)-1]
		work = work[:len(work)-1]
		st.GridsVisited++

		push := func(id world.EntityID) {
			if seen(id) {
				return
			}
			next, ok := view.EntityByID(id).(*world.Grid)
			if !ok || next == nil {
				return
			}
			visited[id] = struct{}{}
			work = append(work, next)
		}

		blocks := g.GetBlocks(func(b *world.Block) bool { return b.Type != world.BlockNone })
		for _, b := range blocks {
			st.BlocksExamined++
			kind := Classify(b)
			if !Eligible(kind, mode) {
				continue
			}
			target, ok := ResolveLink(view, b, kind)
			if !ok {
				continue
			}
			st.LinksResolved++
			push(target)
		}

		if mode == All {
			inbound, scanned := scanInboundLocks(view, g.ID, seen)
			st.ReverseScans++
			st.ReverseGridsScanned += scanned
			for _, id := range inbound {
				st.LinksResolved++
				push(id)
			}
		}
	}

	return Set{ids: visited}, st
}
