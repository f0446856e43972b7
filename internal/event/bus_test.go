package event

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishToSubscriber(t *testing.T) {
	bus := NewBus()

	var got Event
	bus.Subscribe(TypeTaskStarted, func(e Event) { got = e })

	bus.Publish(NewTaskStartedEvent("run-1", "lint"))

	started, ok := got.(TaskStartedEvent)
	if !ok {
		t.Fatalf("received %T, want TaskStartedEvent", got)
	}
	if started.Task != "lint" || started.RunID != "run-1" {
		t.Errorf("event = %+v", started)
	}
	if started.Timestamp().IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestBus_OnlyMatchingType(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(TypeTaskFailed, func(Event) { calls++ })

	bus.Publish(NewTaskFinishedEvent("run-1", "lint", time.Second))

	if calls != 0 {
		t.Errorf("handler called %d times for a different event type", calls)
	}
}

func TestBus_OrderSpecificThenWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	bus.Subscribe(TypeRunFinished, func(Event) { order = append(order, "first") })
	bus.Subscribe(TypeRunFinished, func(Event) { order = append(order, "second") })

	bus.Publish(NewRunFinishedEvent("run-1", []string{"build"}, nil))

	want := []string{"first", "second", "all"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(TypeTaskStarted, func(Event) { calls++ })
	keep := bus.Subscribe(TypeTaskStarted, func(Event) {})

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for a live subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe should return false")
	}
	if id == keep {
		t.Error("subscription ids should be unique")
	}

	bus.Publish(NewTaskStartedEvent("run-1", "x"))
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	var recovered any
	bus.OnPanic = func(_ string, r any, _ []byte) { recovered = r }

	after := false
	bus.Subscribe(TypeTaskFailed, func(Event) { panic("boom") })
	bus.Subscribe(TypeTaskFailed, func(Event) { after = true })

	bus.Publish(NewTaskFailedEvent("run-1", "lint", errors.New("exit 1"), 0))

	if recovered != "boom" {
		t.Errorf("recovered = %v, want boom", recovered)
	}
	if !after {
		t.Error("handler after the panicking one was not called")
	}
}

func TestBus_NilPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(NewTaskStartedEvent("run-1", "x"))
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Publish(NewFavoriteIncrementedEvent("s", "u", nil))
			}
		}()
	}
	wg.Wait()

	if count != 200 {
		t.Errorf("count = %d, want 200", count)
	}
}
