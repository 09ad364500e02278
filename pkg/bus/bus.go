package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the buffer size of each direction.
const DefaultCapacity = 256

const publishTimeout = 100 * time.Millisecond

// MessageBus decouples channel adapters from the ingest worker. Publishing
// never blocks longer than publishTimeout; messages that cannot be queued
// in time are counted as dropped.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	closed   bool
	mu       sync.RWMutex

	published atomic.Uint64
	dropped   droppedCounters
}

type droppedCounters struct {
	inbound  atomic.Uint64
	outbound atomic.Uint64
}

// Stats is a point-in-time view of bus traffic.
type Stats struct {
	Published       uint64
	DroppedInbound  uint64
	DroppedOutbound uint64
	PendingInbound  int
	PendingOutbound int
}

func NewMessageBus(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, capacity),
		outbound: make(chan OutboundMessage, capacity),
	}
}

// PublishInbound queues msg and reports whether it was accepted.
func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}

	if !enqueue(mb.inbound, msg) {
		mb.dropped.inbound.Add(1)
		return false
	}
	mb.published.Add(1)
	return true
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}

	if !enqueue(mb.outbound, msg) {
		mb.dropped.outbound.Add(1)
		return false
	}
	return true
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-mb.outbound:
		return msg, ok
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func enqueue[T any](ch chan T, msg T) bool {
	select {
	case ch <- msg:
		return true
	default:
	}
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case ch <- msg:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting messages. Consumers drain what is buffered and then
// see ok=false.
func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}

func (mb *MessageBus) Stats() Stats {
	return Stats{
		Published:       mb.published.Load(),
		DroppedInbound:  mb.dropped.inbound.Load(),
		DroppedOutbound: mb.dropped.outbound.Load(),
		PendingInbound:  len(mb.inbound),
		PendingOutbound: len(mb.outbound),
	}
}
