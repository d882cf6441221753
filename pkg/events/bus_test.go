package events

import (
	"sync"
	"testing"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestBusEmitToPlayer(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	player := world.PlayerID(1)
	bus.Subscribe(player, sub)

	bus.EmitToPlayer(player, Event{Type: EvHalt, Text: "Ship stopped", Grids: []world.EntityID{10, 11}})

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "Ship stopped" {
		t.Errorf("expected text %q, got %q", "Ship stopped", events[0].Text)
	}
	if events[0].Player != player {
		t.Errorf("expected player %d, got %d", player, events[0].Player)
	}
	if len(events[0].Grids) != 2 {
		t.Errorf("expected 2 grids, got %v", events[0].Grids)
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	bus.Emit(Event{Type: EvBlockSync, Player: 5, Entity: 42})

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Entity != 42 {
		t.Errorf("expected entity 42, got %d", events[0].Entity)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	player := world.PlayerID(1)

	bus.Subscribe(player, sub)
	bus.Unsubscribe(player, sub)

	bus.Emit(Event{Type: EvText, Player: player, Text: "should not arrive"})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
	if bus.PlayerSubscribers(player) != 0 {
		t.Error("expected player entry to be removed")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	player := world.PlayerID(1)

	bus.Subscribe(player, sub)
	bus.Emit(Event{Type: EvText, Player: player, Text: "no delivery"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestBusEmitToPlayers(t *testing.T) {
	bus := NewBus()
	p1, p2, p3 := &mockSubscriber{}, &mockSubscriber{}, &mockSubscriber{}
	global := &mockSubscriber{}
	bus.Subscribe(1, p1)
	bus.Subscribe(2, p2)
	bus.Subscribe(3, p3)
	bus.SubscribeGlobal(global)

	bus.EmitToPlayers([]world.PlayerID{1, 2, 1}, Event{Type: EvEject, Text: "You have been ejected."})

	if n := len(p1.Events()); n != 1 {
		t.Errorf("player 1: expected 1 event, got %d", n)
	}
	if n := len(p2.Events()); n != 1 {
		t.Errorf("player 2: expected 1 event, got %d", n)
	}
	if n := len(p3.Events()); n != 0 {
		t.Errorf("player 3: expected no events, got %d", n)
	}
	ge := global.Events()
	if len(ge) != 1 || ge[0].Player != 0 {
		t.Errorf("global: expected one broadcast copy, got %+v", ge)
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}
	player := world.PlayerID(1)

	bus.Subscribe(player, active)
	bus.Subscribe(player, closed)
	bus.Subscribe(2, &mockSubscriber{isClosed: true})
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.PlayerSubscribers(player) != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.PlayerSubscribers(player))
	}
	if bus.PlayerSubscribers(2) != 0 {
		t.Errorf("expected player 2 to be dropped")
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		t    EventType
		want string
	}{
		{EvText, "text"},
		{EvHalt, "halt"},
		{EvEject, "eject"},
		{EvBlockSync, "block_sync"},
		{EventType(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}
