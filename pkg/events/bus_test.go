package events

import (
	"sync"
	"testing"
	"time"

	"github.com/lantern-mud/lanternmush/pkg/gamedb"
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

func TestBusEmitToRef(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	ref := gamedb.DBRef(1)
	bus.Subscribe(ref, sub)

	ev := Event{
		Type: ObjectCreated,
		Ref:  ref,
		Key:  "Limbo",
		When: time.Now(),
	}
	bus.Emit(ev)

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Key != "Limbo" {
		t.Errorf("expected key %q, got %q", "Limbo", events[0].Key)
	}
	if events[0].Type != ObjectCreated {
		t.Errorf("expected type ObjectCreated, got %v", events[0].Type)
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	ev := Event{Type: ChannelCreated, Ref: 5, Key: "Public"}
	bus.Emit(ev)

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Key != "Public" {
		t.Errorf("expected key %q, got %q", "Public", events[0].Key)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	ref := gamedb.DBRef(1)

	bus.Subscribe(ref, sub)
	bus.Unsubscribe(ref, sub)

	bus.Emit(Event{Type: ObjectCreated, Ref: ref, Key: "should not arrive"})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	ref := gamedb.DBRef(1)

	bus.Subscribe(ref, sub)
	bus.Emit(Event{Type: ObjectCreated, Ref: ref, Key: "no delivery"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestBusRefIsolation(t *testing.T) {
	bus := NewBus()
	sub1 := &mockSubscriber{}
	sub2 := &mockSubscriber{}
	bus.Subscribe(1, sub1)
	bus.Subscribe(2, sub2)

	bus.Emit(Event{Type: ScriptCreated, Ref: 1, Key: "tick"})

	if len(sub1.Events()) != 1 {
		t.Errorf("ref 1: expected 1 event, got %d", len(sub1.Events()))
	}
	if len(sub2.Events()) != 0 {
		t.Errorf("ref 2: expected 0 events, got %d", len(sub2.Events()))
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}
	ref := gamedb.DBRef(1)

	bus.Subscribe(ref, active)
	bus.Subscribe(ref, closed)
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.RefSubscribers(ref) != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.RefSubscribers(ref))
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		t    EventType
		want string
	}{
		{ObjectCreated, "object_created"},
		{ScriptCreated, "script_created"},
		{AccountCreated, "account_created"},
		{MsgCreated, "msg_created"},
		{EventType(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}
