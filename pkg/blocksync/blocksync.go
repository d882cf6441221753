// Package blocksync replicates block state changes (power on/off) either
// in place or across the event bus in multiplayer sessions.
package blocksync

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/metrics"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

// SyncType is the kind of state change carried by a Message.
type SyncType byte

const (
	PowerOn  SyncType = 0x01
	PowerOff SyncType = 0x02
)

func (t SyncType) String() string {
	switch t {
	case PowerOn:
		return "power_on"
	case PowerOff:
		return "power_off"
	default:
		return fmt.Sprintf("sync_%#02x", byte(t))
	}
}

// Message is the replicated unit: one state change for one block.
type Message struct {
	EntityID world.EntityID
	SyncType SyncType
}

// Encode serializes msg using gob.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("blocksync: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a Message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("blocksync: decode: %w", err)
	}
	return msg, nil
}

// Registry resolves entity ids. *world.World satisfies it.
type Registry interface {
	EntityByID(id world.EntityID) world.Entity
}

// Apply performs msg against reg. Missing entities and blocks without an
// on/off state are ignored; Apply reports whether anything was changed.
func Apply(reg Registry, msg Message) bool {
	b, ok := reg.EntityByID(msg.EntityID).(*world.Block)
	if !ok || b == nil || !b.Type.IsFunctional() {
		return false
	}
	switch msg.SyncType {
	case PowerOn:
		b.Enabled = true
	case PowerOff:
		b.Enabled = false
	default:
		return false
	}
	return true
}

// Applier applies a message to whatever world it guards.
type Applier interface {
	ApplySync(msg Message) bool
}

// RegistryApplier applies messages directly to a registry with no locking.
type RegistryApplier struct {
	Registry Registry
}

func (r RegistryApplier) ApplySync(msg Message) bool {
	return Apply(r.Registry, msg)
}

// Dispatcher routes a state change: broadcast on the bus when Multiplayer
// is set, applied through Local otherwise.
type Dispatcher struct {
	Local       Applier
	Bus         *events.Bus
	Multiplayer bool
	Metrics     *metrics.Metrics
	Log         zerolog.Logger
}

// Process sends or applies one change for entityID.
func (d *Dispatcher) Process(entityID world.EntityID, typ SyncType) error {
	msg := Message{EntityID: entityID, SyncType: typ}

	if d.Multiplayer && d.Bus != nil {
		payload, err := Encode(msg)
		if err != nil {
			return err
		}
		d.Log.Debug().Int64("entity", int64(entityID)).Str("sync", typ.String()).Msg("broadcasting block sync")
		d.Bus.Emit(events.Event{
			Type:    events.EvBlockSync,
			Entity:  entityID,
			Payload: payload,
		})
		return nil
	}

	if d.Local == nil {
		return fmt.Errorf("blocksync: no local applier")
	}
	if d.Local.ApplySync(msg) {
		d.Metrics.BlockSynced(typ.String())
	}
	return nil
}

// Receiver subscribes to the bus and applies incoming block syncs. The same
// path serves the server and its clients.
type Receiver struct {
	target  Applier
	metrics *metrics.Metrics
	log     zerolog.Logger
	closed  atomic.Bool
}

// NewReceiver creates a Receiver applying changes through target.
func NewReceiver(target Applier, m *metrics.Metrics, log zerolog.Logger) *Receiver {
	return &Receiver{target: target, metrics: m, log: log}
}

// Receive implements events.Subscriber.
func (r *Receiver) Receive(ev events.Event) {
	if ev.Type != events.EvBlockSync {
		return
	}
	msg, err := Decode(ev.Payload)
	if err != nil {
		r.log.Warn().Err(err).Int64("entity", int64(ev.Entity)).Msg("dropping malformed block sync")
		return
	}
	if r.target.ApplySync(msg) {
		r.metrics.BlockSynced(msg.SyncType.String())
	}
}

// Closed implements events.Subscriber.
func (r *Receiver) Closed() bool { return r.closed.Load() }

// Close stops the receiver from accepting events.
func (r *Receiver) Close() { r.closed.Store(true) }
