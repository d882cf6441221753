// Package admin implements the grid admin operations: attachment queries,
// ownership aggregation, halting ships, ejecting pilots and block power.
// Every operation acts on the whole mechanically attached structure, as
// discovered by package attach.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/audit"
	"github.com/crystal-mush/gridadmin/pkg/blocksync"
	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/metrics"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

var (
	ErrNoSuchEntity = errors.New("admin: no such entity")
	ErrNotGrid      = errors.New("admin: entity is not a grid")
	ErrNotBlock     = errors.New("admin: entity is not a block")
)

// state is shared by every actor view of a Service.
type state struct {
	mu          sync.RWMutex
	world       *world.World
	log         zerolog.Logger
	metrics     *metrics.Metrics
	bus         *events.Bus
	audit       *audit.Store
	multiplayer bool
	sync        *blocksync.Dispatcher
}

// Service runs admin operations against a world on behalf of an actor.
type Service struct {
	*state
	actor world.PlayerID
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for operation traces.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics records discovery and halt counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBus publishes admin events to b.
func WithBus(b *events.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// WithAudit records every mutating operation in a.
func WithAudit(a *audit.Store) Option {
	return func(s *Service) { s.audit = a }
}

// WithActor sets the player operations are attributed to.
func WithActor(p world.PlayerID) Option {
	return func(s *Service) { s.actor = p }
}

// WithMultiplayer routes block state changes through the bus instead of
// applying them in place. It needs WithBus to take effect.
func WithMultiplayer(on bool) Option {
	return func(s *Service) { s.multiplayer = on }
}

// New creates a Service over w.
func New(w *world.World, opts ...Option) *Service {
	s := &Service{state: &state{world: w, log: zerolog.Nop()}}
	for _, opt := range opts {
		opt(s)
	}
	s.sync = &blocksync.Dispatcher{
		Local:       s.state,
		Bus:         s.bus,
		Multiplayer: s.multiplayer && s.bus != nil,
		Metrics:     s.metrics,
		Log:         s.log,
	}
	if s.sync.Multiplayer {
		s.bus.SubscribeGlobal(blocksync.NewReceiver(s.state, s.metrics, s.log))
	}
	s.metrics.SetWorldGrids(len(w.GetGrids(nil)))
	return s
}

// As returns a view of the Service acting for actor. Both views share the
// same world and sinks.
func (s *Service) As(actor world.PlayerID) *Service {
	return &Service{state: s.state, actor: actor}
}

// Actor returns the player operations are attributed to.
func (s *Service) Actor() world.PlayerID { return s.actor }

// World returns the current world.
func (s *Service) World() *world.World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world
}

// Read calls fn with the current world while holding the read lock.
func (s *Service) Read(fn func(w *world.World)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.world)
}

// Audit returns the audit store, or nil.
func (s *Service) Audit() *audit.Store { return s.audit }

// SwapWorld replaces the world, e.g. after the world file was reloaded.
func (s *Service) SwapWorld(w *world.World) {
	s.mu.Lock()
	s.world = w
	s.mu.Unlock()
	s.metrics.SetWorldGrids(len(w.GetGrids(nil)))
	s.log.Info().Int("grids", len(w.GetGrids(nil))).Msg("world replaced")
}

// lookupGrid resolves id to a registered grid. Callers hold s.mu.
func (s *Service) lookupGrid(id world.EntityID) (*world.Grid, error) {
	ent := s.world.EntityByID(id)
	if ent == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}
	g, ok := ent.(*world.Grid)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotGrid, id)
	}
	return g, nil
}

// discover runs the traversal and records it. Callers hold s.mu.
func (s *Service) discover(origin *world.Grid, mode attach.Mode) attach.Set {
	set, st := attach.Walk(s.world, origin, mode)
	s.metrics.ObserveDiscovery(mode, set.Len(), st)
	s.log.Debug().
		Int64("grid", int64(origin.ID)).
		Str("mode", mode.String()).
		Int("grids", set.Len()).
		Int("blocks", st.BlocksExamined).
		Int("reverse_grids", st.ReverseGridsScanned).
		Msg("attachment discovery")
	return set
}

// AttachedGrids returns gridID plus every grid attached to it under mode.
func (s *Service) AttachedGrids(gridID world.EntityID, mode attach.Mode) (attach.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	origin, err := s.lookupGrid(gridID)
	if err != nil {
		return attach.Set{}, err
	}
	return s.discover(origin, mode), nil
}

// AllSmallOwners returns the owners of gridID and of every grid rigidly
// attached to it, deduplicated and sorted.
func (s *Service) AllSmallOwners(gridID world.EntityID) ([]world.PlayerID, error) {
	s.mu.RLock()
	origin, err := s.lookupGrid(gridID)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	set := s.discover(origin, attach.StaticOnly)
	owners := make(map[world.PlayerID]struct{})
	for _, g := range set.Grids(s.world) {
		for _, p := range g.Owners() {
			owners[p] = struct{}{}
		}
	}
	s.mu.RUnlock()

	out := make([]world.PlayerID, 0, len(owners))
	for p := range owners {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	s.emit(events.Event{
		Type:   events.EvOwners,
		Entity: gridID,
		Grids:  set.IDs(),
		Text:   fmt.Sprintf("%d owner(s) across %d grid(s)", len(out), set.Len()),
		Data:   map[string]any{"owners": out},
	})
	return out, nil
}

// emit sends ev to the acting player and global subscribers.
func (s *Service) emit(ev events.Event) {
	if s.bus == nil {
		return
	}
	ev.Source = s.actor
	s.bus.EmitToPlayer(s.actor, ev)
}

// record writes an audit entry. Failures are logged, not returned: the
// world has already changed by the time an action is recorded.
func (s *Service) record(action string, origin world.EntityID, grids []world.EntityID, detail string) {
	if s.audit == nil {
		return
	}
	id, err := s.audit.Record(context.Background(), audit.Entry{
		Actor:  s.actor,
		Action: action,
		Origin: origin,
		Grids:  grids,
		Detail: detail,
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("audit record failed")
		return
	}
	s.emit(events.Event{
		Type:   events.EvAudit,
		Entity: origin,
		Grids:  grids,
		Text:   action,
		Data:   map[string]any{"audit_id": id},
	})
}

// FormatIDs renders ids as a comma separated list.
func FormatIDs[T ~int64](ids []T) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}
