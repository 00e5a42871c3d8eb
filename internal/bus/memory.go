package bus

import (
	"context"
	"log"
	"sync"

	"github.com/ashgrove-labs/synapse/internal/envelope"
)

const subscriberQueueDepth = 256

// subscription serializes delivery to one handler via a dedicated goroutine
// reading off a buffered channel, so a slow handler stalls only its own
// queue and never blocks the publisher or other subscribers.
type subscription struct {
	handler Handler
	queue   chan *envelope.Envelope
	done    chan struct{}
}

func newSubscription(h Handler) *subscription {
	s := &subscription{
		handler: h,
		queue:   make(chan *envelope.Envelope, subscriberQueueDepth),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *subscription) loop() {
	defer close(s.done)
	for env := range s.queue {
		if err := s.handler(context.Background(), env); err != nil {
			log.Printf("bus: handler error for %s: %v", env.SenderID, err)
		}
	}
}

func (s *subscription) close() {
	close(s.queue)
	<-s.done
}

// MemoryBus is an in-process implementation of Bus, grounded on the
// subscriber-map-of-channels pattern used elsewhere for in-process event
// forwarding. It is suitable for running the whole pipeline without an
// external broker and for deterministic tests. Delivery is not guaranteed:
// once a subscriber has subscriberQueueDepth envelopes waiting, further
// envelopes for it are dropped with a log line.
type MemoryBus struct {
	mu        sync.RWMutex
	connected bool
	agents    map[string]*subscription
	topics    map[string][]*subscription
}

// NewMemoryBus constructs an unconnected MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		agents: make(map[string]*subscription),
		topics: make(map[string][]*subscription),
	}
}

func (b *MemoryBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *MemoryBus) Publish(ctx context.Context, env *envelope.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.connected {
		return ErrNotConnected
	}
	if err := env.Validate(); err != nil {
		return err
	}

	dest, isTopic := env.Destination()
	if isTopic {
		for _, sub := range b.topics[dest] {
			sub.enqueue(env)
		}
		return nil
	}

	if sub, ok := b.agents[dest]; ok {
		sub.enqueue(env)
	}
	return nil
}

func (s *subscription) enqueue(env *envelope.Envelope) {
	select {
	case s.queue <- env:
	default:
		log.Printf("bus: subscriber queue full, dropping envelope for %s", env.SenderID)
	}
}

func (b *MemoryBus) SubscribeAgent(agentID string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.agents[agentID]; exists {
		return ErrAlreadySubscribed
	}
	b.agents[agentID] = newSubscription(h)
	return nil
}

func (b *MemoryBus) SubscribeTopic(topic string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.topics[topic] = append(b.topics[topic], newSubscription(h))
	return nil
}

func (b *MemoryBus) UnsubscribeAgent(agentID string) error {
	b.mu.Lock()
	sub, ok := b.agents[agentID]
	if ok {
		delete(b.agents, agentID)
	}
	b.mu.Unlock()

	if ok {
		sub.close()
	}
	return nil
}

func (b *MemoryBus) UnsubscribeTopic(topic string, h Handler) error {
	b.mu.Lock()
	subs := b.topics[topic]
	var target *subscription
	kept := subs[:0:0]
	for _, s := range subs {
		if target == nil && sameHandler(s.handler, h) {
			target = s
			continue
		}
		kept = append(kept, s)
	}
	b.topics[topic] = kept
	b.mu.Unlock()

	if target != nil {
		target.close()
	}
	return nil
}

func (b *MemoryBus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	agents := b.agents
	topics := b.topics
	b.agents = make(map[string]*subscription)
	b.topics = make(map[string][]*subscription)
	b.connected = false
	b.mu.Unlock()

	for _, sub := range agents {
		sub.close()
	}
	for _, subs := range topics {
		for _, sub := range subs {
			sub.close()
		}
	}
	return nil
}

// sameHandler compares two Handlers for identity. Go forbids comparing
// func values directly except to nil, so this relies on reflect to mirror
// the intent of "the same handler passed to SubscribeTopic" without
// requiring callers to carry an opaque subscription token.
func sameHandler(a, b Handler) bool {
	return funcPointer(a) == funcPointer(b)
}
