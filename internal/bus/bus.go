package bus

import (
	"context"
	"sync"
)

const defaultQueueSize = 256

// MessageBus carries inbound and outbound messages between the channel layer
// and the dispatcher over buffered channels.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a MessageBus with the default queue size.
func New() *MessageBus {
	return NewWithSize(defaultQueueSize)
}

// NewWithSize creates a MessageBus with a custom queue size.
func NewWithSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
		closed:   make(chan struct{}),
	}
}

// PublishInbound enqueues a received message. Drops the message if the bus
// is closed or the queue is full.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	select {
	case <-b.closed:
		return false
	default:
	}

	select {
	case b.inbound <- msg:
		return true
	default:
		return false
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
// The second return value is false when the bus is shutting down.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-b.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-b.closed:
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a message for delivery.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	select {
	case <-b.closed:
		return false
	default:
	}

	select {
	case b.outbound <- msg:
		return true
	default:
		return false
	}
}

// ConsumeOutbound blocks until an outbound message is available or ctx is done.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-b.outbound:
		return msg, ok
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-b.closed:
		return OutboundMessage{}, false
	}
}

// Close shuts down the bus. Safe to call more than once.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
}
