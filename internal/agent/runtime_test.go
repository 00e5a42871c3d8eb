package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashgrove-labs/synapse/internal/bus"
	"github.com/ashgrove-labs/synapse/internal/envelope"
	"github.com/ashgrove-labs/synapse/internal/toolclient"
)

type echoWorker struct {
	id       string
	handled  int32
	ticked   int32
	handleFn func(ctx context.Context, env *envelope.Envelope) error
}

func (w *echoWorker) AgentID() string { return w.id }

func (w *echoWorker) Handle(ctx context.Context, env *envelope.Envelope) error {
	atomic.AddInt32(&w.handled, 1)
	if w.handleFn != nil {
		return w.handleFn(ctx, env)
	}
	return nil
}

func (w *echoWorker) Tick(ctx context.Context) error {
	atomic.AddInt32(&w.ticked, 1)
	return nil
}

func TestRuntimeStartDispatchStop(t *testing.T) {
	b := bus.NewMemoryBus()
	b.Connect(context.Background())

	w := &echoWorker{id: "worker"}
	rt := NewRuntime(w, b, toolclient.New(nil))

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	env, err := rt.MakeEnvelope("worker", false, envelope.StatusUpdate, envelope.StatusUpdatePayload{Status: "ping"})
	if err != nil {
		t.Fatalf("MakeEnvelope: %v", err)
	}
	env.SenderID = "other"
	if err := b.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&w.handled) == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never invoked")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := rt.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop must be idempotent.
	if err := rt.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestRuntimeTicks(t *testing.T) {
	b := bus.NewMemoryBus()
	b.Connect(context.Background())

	w := &echoWorker{id: "ticker"}
	rt := NewRuntime(w, b, toolclient.New(nil))
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Stop(context.Background())

	deadline := time.After(3 * time.Second)
	for atomic.LoadInt32(&w.ticked) == 0 {
		select {
		case <-deadline:
			t.Fatal("tick never invoked")
		default:
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func TestMakeEnvelopeRejectsEmptyDestination(t *testing.T) {
	b := bus.NewMemoryBus()
	w := &echoWorker{id: "worker"}
	rt := NewRuntime(w, b, toolclient.New(nil))

	if _, err := rt.MakeEnvelope("", false, envelope.StatusUpdate, envelope.StatusUpdatePayload{Status: "x"}); err == nil {
		t.Fatal("expected error for empty destination")
	}
}
