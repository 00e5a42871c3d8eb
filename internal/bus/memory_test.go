package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashgrove-labs/synapse/internal/envelope"
)

func TestMemoryBusUnicastOrdering(t *testing.T) {
	b := NewMemoryBus()
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var mu sync.Mutex
	var received []int
	done := make(chan struct{})

	count := 0
	if err := b.SubscribeAgent("worker", func(ctx context.Context, env *envelope.Envelope) error {
		mu.Lock()
		received = append(received, count)
		count++
		n := len(received)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
		return nil
	}); err != nil {
		t.Fatalf("SubscribeAgent: %v", err)
	}

	for i := 0; i < 5; i++ {
		env, err := envelope.Build("sender", "worker", false, envelope.StatusUpdate, envelope.StatusUpdatePayload{Status: "ok"})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if err := b.Publish(context.Background(), env); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range received {
		if v != i {
			t.Fatalf("out-of-order delivery: %v", received)
		}
	}
}

func TestMemoryBusTopicFanoutIsolation(t *testing.T) {
	b := NewMemoryBus()
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	fastDone := make(chan time.Time, 1)
	if err := b.SubscribeTopic("logs", func(ctx context.Context, env *envelope.Envelope) error {
		fastDone <- time.Now()
		return nil
	}); err != nil {
		t.Fatalf("SubscribeTopic fast: %v", err)
	}

	slowStarted := make(chan struct{})
	if err := b.SubscribeTopic("logs", func(ctx context.Context, env *envelope.Envelope) error {
		close(slowStarted)
		time.Sleep(500 * time.Millisecond)
		return nil
	}); err != nil {
		t.Fatalf("SubscribeTopic slow: %v", err)
	}

	start := time.Now()
	env, err := envelope.Build("agent", "logs", true, envelope.LogBroadcast, envelope.LogBroadcastPayload{Level: "INFO", Message: "hi"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := b.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-fastDone:
		if got.Sub(start) > 100*time.Millisecond {
			t.Fatalf("fast subscriber delayed by slow one: %s", got.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("fast subscriber never invoked")
	}

	<-slowStarted
}

func TestMemoryBusPublishWithoutConnectFails(t *testing.T) {
	b := NewMemoryBus()
	env, err := envelope.Build("a", "b", false, envelope.StatusUpdate, envelope.StatusUpdatePayload{Status: "ok"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := b.Publish(context.Background(), env); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestMemoryBusDuplicateSubscribeAgentFails(t *testing.T) {
	b := NewMemoryBus()
	b.Connect(context.Background())
	noop := func(ctx context.Context, env *envelope.Envelope) error { return nil }
	if err := b.SubscribeAgent("worker", noop); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if err := b.SubscribeAgent("worker", noop); err != ErrAlreadySubscribed {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
}
