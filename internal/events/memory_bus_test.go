package events

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	var first, second []Notification
	if err := bus.Subscribe(ctx, StreamSwapEvents, func(n Notification) {
		mu.Lock()
		first = append(first, n)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Subscribe(ctx, StreamSwapEvents, func(n Notification) {
		mu.Lock()
		second = append(second, n)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	n := Notification{Type: TypeOrderCreated, OrderID: uuid.New(), TxRef: "tx-1"}
	if err := bus.Publish(ctx, StreamSwapEvents, n); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("fan-out counts = %d/%d, want 1/1", len(first), len(second))
	}
	if first[0].Key() != n.Key() {
		t.Errorf("delivered key = %s, want %s", first[0].Key(), n.Key())
	}
}

func TestMemoryBusIsolatesStreams(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var got []Notification
	if err := bus.Subscribe(ctx, "other:stream", func(n Notification) {
		got = append(got, n)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, StreamSwapEvents, Notification{Type: TypeOrderTimeout, OrderID: uuid.New()}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("cross-stream delivery: got %d notifications", len(got))
	}
}

func TestMemoryBusSubscribeDuringPublish(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	// A handler that adds a subscriber mid-delivery must not deadlock or
	// corrupt the handler list.
	if err := bus.Subscribe(ctx, StreamSwapEvents, func(Notification) {
		_ = bus.Subscribe(ctx, StreamSwapEvents, func(Notification) {})
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(ctx, StreamSwapEvents, Notification{Type: TypeOrderCreated, OrderID: uuid.New()})
		}()
	}
	wg.Wait()
}
