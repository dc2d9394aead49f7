package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/eventbus"
)

func TestPublishDispatchesToSyncHandlers(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	received := make([]domain.DomainEvent, 0, 1)

	bus.Subscribe(domain.EventJobCreated, func(e domain.DomainEvent) {
		received = append(received, e)
	})

	event := domain.NewDomainEvent(domain.EventJobCreated, domain.NewID(), nil, time.Now())
	bus.Publish(context.Background(), event)

	if len(received) != 1 || received[0].EventID != event.EventID {
		t.Fatalf("expected handler to receive the published event, got %+v", received)
	}
}

func TestPublishIsolatesPanickingSyncHandler(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	calledSecond := false

	bus.Subscribe(domain.EventJobCreated, func(e domain.DomainEvent) {
		panic("boom")
	})
	bus.Subscribe(domain.EventJobCreated, func(e domain.DomainEvent) {
		calledSecond = true
	})

	bus.Publish(context.Background(), domain.NewDomainEvent(domain.EventJobCreated, domain.NewID(), nil, time.Now()))

	if !calledSecond {
		t.Error("expected second handler to still run after the first panicked")
	}
}

func TestPublishDispatchesToAsyncHandlers(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	var mu sync.Mutex
	received := false

	done := make(chan struct{})
	bus.SubscribeAsync(domain.EventJobCreated, func(ctx context.Context, e domain.DomainEvent) {
		mu.Lock()
		received = true
		mu.Unlock()
		close(done)
	})

	bus.Publish(context.Background(), domain.NewDomainEvent(domain.EventJobCreated, domain.NewID(), nil, time.Now()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async handler")
	}

	mu.Lock()
	defer mu.Unlock()
	if !received {
		t.Error("expected async handler to run")
	}
}

func TestPublishAsyncAwaitsAsyncHandlers(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	var mu sync.Mutex
	received := false

	bus.SubscribeAsync(domain.EventJobCreated, func(ctx context.Context, e domain.DomainEvent) {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		received = true
		mu.Unlock()
	})

	bus.PublishAsync(context.Background(), domain.NewDomainEvent(domain.EventJobCreated, domain.NewID(), nil, time.Now()))

	mu.Lock()
	defer mu.Unlock()
	if !received {
		t.Error("expected PublishAsync to block until the async handler completed")
	}
}

func TestPublishAsyncRunsSyncHandlersConcurrentlyAndIsolatesPanics(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	var mu sync.Mutex
	calls := 0

	bus.Subscribe(domain.EventJobCreated, func(e domain.DomainEvent) {
		panic("boom")
	})
	bus.Subscribe(domain.EventJobCreated, func(e domain.DomainEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	bus.PublishAsync(context.Background(), domain.NewDomainEvent(domain.EventJobCreated, domain.NewID(), nil, time.Now()))

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (second handler must run despite the first panicking)", calls)
	}
}

func TestGetHandlerCount(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	if got := bus.GetHandlerCount(domain.EventJobCreated); got != 0 {
		t.Fatalf("GetHandlerCount = %d, want 0 before any subscription", got)
	}

	bus.Subscribe(domain.EventJobCreated, func(e domain.DomainEvent) {})
	bus.SubscribeAsync(domain.EventJobCreated, func(ctx context.Context, e domain.DomainEvent) {})

	if got := bus.GetHandlerCount(domain.EventJobCreated); got != 2 {
		t.Errorf("GetHandlerCount = %d, want 2 (one sync, one async)", got)
	}

	bus.Unsubscribe(domain.EventJobCreated)
	if got := bus.GetHandlerCount(domain.EventJobCreated); got != 0 {
		t.Errorf("GetHandlerCount = %d, want 0 after Unsubscribe", got)
	}
}

func TestUnsubscribeRemovesHandlers(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	called := false
	bus.Subscribe(domain.EventJobCreated, func(e domain.DomainEvent) { called = true })
	bus.Unsubscribe(domain.EventJobCreated)

	bus.Publish(context.Background(), domain.NewDomainEvent(domain.EventJobCreated, domain.NewID(), nil, time.Now()))

	if called {
		t.Error("expected unsubscribed handler not to be called")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(eventbus.WithMaxHistory(3))

	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), domain.NewDomainEvent(domain.EventJobCreated, domain.NewID(), nil, time.Now()))
	}

	history := bus.History()
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
}

func TestClearHandlersRemovesEverything(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	called := false
	bus.Subscribe(domain.EventJobCreated, func(e domain.DomainEvent) { called = true })
	bus.SubscribeAsync(domain.EventJobCreated, func(ctx context.Context, e domain.DomainEvent) {})

	bus.ClearHandlers()
	bus.Publish(context.Background(), domain.NewDomainEvent(domain.EventJobCreated, domain.NewID(), nil, time.Now()))

	if called {
		t.Error("expected no handlers to run after ClearHandlers")
	}
}
