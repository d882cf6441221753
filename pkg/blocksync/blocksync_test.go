package blocksync

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/metrics"
	"github.com/crystal-mush/gridadmin/pkg/world"
	"github.com/crystal-mush/gridadmin/pkg/world/worldtest"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(Message{EntityID: 42, SyncType: PowerOff})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.EntityID != 42 || msg.SyncType != PowerOff {
		t.Errorf("got %+v", msg)
	}
	if _, err := Decode([]byte("junk")); err == nil {
		t.Error("expected error decoding junk")
	}
}

func TestApply(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	thruster := b.Block(1, &world.Block{ID: 10, Type: world.BlockThruster, Enabled: true})
	rotor := b.Block(1, &world.Block{ID: 11, Type: world.BlockRotor})

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"power off", Message{EntityID: 10, SyncType: PowerOff}, true},
		{"power on", Message{EntityID: 10, SyncType: PowerOn}, true},
		{"missing entity", Message{EntityID: 99, SyncType: PowerOff}, false},
		{"grid is not a block", Message{EntityID: 1, SyncType: PowerOff}, false},
		{"non-functional block", Message{EntityID: 11, SyncType: PowerOn}, false},
		{"unknown sync type", Message{EntityID: 10, SyncType: 0x7f}, false},
	}
	for _, tt := range tests {
		if got := Apply(b.W, tt.msg); got != tt.want {
			t.Errorf("%s: Apply = %v, want %v", tt.name, got, tt.want)
		}
	}
	if !thruster.Enabled {
		t.Error("thruster should end up enabled")
	}
	if rotor.Enabled {
		t.Error("rotor must not be touched")
	}
}

func TestDispatcherSinglePlayerAppliesDirectly(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	blk := b.Block(1, &world.Block{ID: 10, Type: world.BlockThruster, Enabled: true})

	reg := prometheus.NewRegistry()
	d := &Dispatcher{Local: RegistryApplier{Registry: b.W}, Metrics: metrics.New(reg), Log: zerolog.Nop()}
	if err := d.Process(10, PowerOff); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if blk.Enabled {
		t.Error("block should be disabled")
	}
}

func TestDispatcherMultiplayerGoesThroughBus(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	blk := b.Block(1, &world.Block{ID: 10, Type: world.BlockThruster})

	bus := events.NewBus()
	recv := NewReceiver(RegistryApplier{Registry: b.W}, nil, zerolog.Nop())
	bus.SubscribeGlobal(recv)

	d := &Dispatcher{Bus: bus, Multiplayer: true, Log: zerolog.Nop()}
	if err := d.Process(10, PowerOn); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !blk.Enabled {
		t.Error("receiver should have applied power on")
	}

	recv.Close()
	if err := d.Process(10, PowerOff); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !blk.Enabled {
		t.Error("closed receiver must not apply changes")
	}
}

func TestReceiverIgnoresOtherEvents(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	blk := b.Block(1, &world.Block{ID: 10, Type: world.BlockThruster})

	recv := NewReceiver(RegistryApplier{Registry: b.W}, nil, zerolog.Nop())
	recv.Receive(events.Event{Type: events.EvText, Entity: 10})
	recv.Receive(events.Event{Type: events.EvBlockSync, Payload: []byte{0xff}})
	if blk.Enabled {
		t.Error("no event should have enabled the block")
	}
}

func TestSyncTypeString(t *testing.T) {
	if PowerOn.String() != "power_on" || PowerOff.String() != "power_off" {
		t.Errorf("names: %s %s", PowerOn, PowerOff)
	}
}
