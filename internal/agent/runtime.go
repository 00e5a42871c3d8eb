// Package agent provides the lifecycle-managed worker base every concrete
// agent (C5) and the orchestrator are built on: start, dispatch, periodic
// tick, and bounded-grace stop.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/ashgrove-labs/synapse/internal/bus"
	"github.com/ashgrove-labs/synapse/internal/envelope"
	"github.com/ashgrove-labs/synapse/internal/logging"
	"github.com/ashgrove-labs/synapse/internal/toolclient"
)

// Worker is the capability set a concrete agent must supply. Handle may
// be invoked concurrently for distinct envelopes; the worker owns its own
// mutable-state discipline.
type Worker interface {
	AgentID() string
	Handle(ctx context.Context, env *envelope.Envelope) error
}

// Ticker is implemented by workers that need periodic work (once per
// second while running), e.g. the log-sink's error-spike check.
type Ticker interface {
	Tick(ctx context.Context) error
}

// TopicSubscriber is implemented by workers that also listen on one or
// more broadcast topics, e.g. the log-sink on "logs".
type TopicSubscriber interface {
	Topics() []string
}

const (
	tickInterval = 1 * time.Second
	stopGrace    = 5 * time.Second
)

// Runtime wraps a Worker with the shared start/stop/send/make_envelope
// machinery of C4.
type Runtime struct {
	worker Worker
	bus    bus.Bus
	tools  *toolclient.Client
	log    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inflight sync.WaitGroup
	stopOnce sync.Once
}

// NewRuntime constructs a Runtime for worker, wired to b for message
// routing and tools for remote tool calls.
func NewRuntime(worker Worker, b bus.Bus, tools *toolclient.Client) *Runtime {
	return &Runtime{
		worker: worker,
		bus:    b,
		tools:  tools,
		log:    logging.New(worker.AgentID()),
	}
}

// Tools returns the shared tool-invocation client, for use by Worker
// implementations that need to call out during Handle.
func (r *Runtime) Tools() *toolclient.Client {
	return r.tools
}

// AgentID returns the wrapped worker's agent id.
func (r *Runtime) AgentID() string {
	return r.worker.AgentID()
}

// Start registers the worker's unicast and topic handlers and launches
// the periodic loop, per C4's start() contract.
func (r *Runtime) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.bus.SubscribeAgent(r.worker.AgentID(), r.dispatch); err != nil {
		return err
	}

	if ts, ok := r.worker.(TopicSubscriber); ok {
		for _, topic := range ts.Topics() {
			if err := r.bus.SubscribeTopic(topic, r.dispatch); err != nil {
				return err
			}
		}
	}

	if _, ok := r.worker.(Ticker); ok {
		go r.tickLoop()
	}

	r.log.Info("started")
	return nil
}

// dispatch is the Handler registered with the bus. It tracks in-flight
// invocations so Stop can wait for them, and never runs after Stop has
// begun. A panic in Handle is recovered and logged.
func (r *Runtime) dispatch(ctx context.Context, env *envelope.Envelope) error {
	select {
	case <-r.ctx.Done():
		return nil
	default:
	}

	r.inflight.Add(1)
	defer r.inflight.Done()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handle panicked: %v", p)
		}
	}()

	if err := r.worker.Handle(ctx, env); err != nil {
		r.log.Error("handle failed: %v", err)
		return err
	}
	return nil
}

func (r *Runtime) tickLoop() {
	ticker := r.worker.(Ticker)
	t := time.NewTicker(tickInterval)
	defer t.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			if err := ticker.Tick(r.ctx); err != nil {
				r.log.Error("tick failed: %v", err)
			}
		}
	}
}

// Send is a thin pass-through to bus.Publish.
func (r *Runtime) Send(ctx context.Context, env *envelope.Envelope) error {
	return r.bus.Publish(ctx, env)
}

// MakeEnvelope builds a validated Envelope with SenderID populated from
// the worker's agent id, enforcing the destination-xor rule.
func (r *Runtime) MakeEnvelope(dest string, asTopic bool, msgType envelope.MsgType, payload interface{}) (*envelope.Envelope, error) {
	return envelope.Build(r.worker.AgentID(), dest, asTopic, msgType, payload)
}

// Stop cancels the periodic loop, unsubscribes both unicast and topic
// handlers, waits (bounded) for in-flight Handle invocations, and is
// idempotent.
func (r *Runtime) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		r.cancel()

		if e := r.bus.UnsubscribeAgent(r.worker.AgentID()); e != nil {
			err = e
		}
		if ts, ok := r.worker.(TopicSubscriber); ok {
			for _, topic := range ts.Topics() {
				r.bus.UnsubscribeTopic(topic, r.dispatch)
			}
		}

		done := make(chan struct{})
		go func() {
			r.inflight.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(stopGrace):
			r.log.Error("stop grace period exceeded, proceeding anyway")
		}

		r.log.Info("stopped")
	})
	return err
}
