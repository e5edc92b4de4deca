package event

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// DefaultQueueSize is the number of events a Bus buffers before Post fails.
const DefaultQueueSize = 256

// Handler receives delivered events.
type Handler func(ctx context.Context, e Event)

type subscription struct {
	prefix  string
	handler Handler
}

type envelope struct {
	ctx   context.Context
	event Event
}

// Bus delivers events to subscribers on a single background goroutine.
// Post never waits for delivery.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	closed bool

	queue  chan envelope
	done   chan struct{}
	logger *slog.Logger
}

// NewBus starts a bus buffering up to size events.
func NewBus(size int, logger *slog.Logger) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Bus{
		queue:  make(chan envelope, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go b.run()
	return b
}

// Subscribe registers h for every topic starting with prefix.
func (b *Bus) Subscribe(prefix string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{prefix: prefix, handler: h})
}

// Post queues e for delivery. Handlers see a context that carries the
// caller's values but is never cancelled.
func (b *Bus) Post(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- envelope{ctx: context.WithoutCancel(ctx), event: e}:
		return nil
	default:
		return ErrBusFull
	}
}

// Close stops accepting events and waits until queued events are delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for env := range b.queue {
		b.deliver(env)
	}
}

func (b *Bus) deliver(env envelope) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if !strings.HasPrefix(env.event.Topic, s.prefix) {
			continue
		}
		b.call(s, env)
	}
}

func (b *Bus) call(s subscription, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", env.event.Topic, "prefix", s.prefix, "panic", r)
		}
	}()
	s.handler(env.ctx, env.event)
}
