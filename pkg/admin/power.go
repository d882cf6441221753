package admin

import (
	"fmt"

	"github.com/crystal-mush/gridadmin/pkg/blocksync"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

// SetPower turns a functional block on or off. In multiplayer mode the
// change is broadcast and applied by the bus receiver; otherwise it is
// applied directly.
func (s *Service) SetPower(blockID world.EntityID, on bool) error {
	s.mu.RLock()
	ent := s.world.EntityByID(blockID)
	s.mu.RUnlock()

	if ent == nil {
		return fmt.Errorf("%w: %d", ErrNoSuchEntity, blockID)
	}
	b, ok := ent.(*world.Block)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotBlock, blockID)
	}

	typ := blocksync.PowerOff
	if on {
		typ = blocksync.PowerOn
	}
	if err := s.sync.Process(blockID, typ); err != nil {
		return fmt.Errorf("admin: power %d: %w", blockID, err)
	}
	s.record("power", b.Grid, []world.EntityID{b.Grid}, fmt.Sprintf("block=%d %s", blockID, typ))
	return nil
}

// ApplySync applies a replicated block change under the world lock.
func (st *state) ApplySync(msg blocksync.Message) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return blocksync.Apply(st.world, msg)
}
