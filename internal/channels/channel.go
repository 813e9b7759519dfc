// Package channels defines the messaging transport abstraction. A Channel
// connects WhatsApp (native or via a bridge process) to the dispatcher
// through the message bus.
package channels

import (
	"context"

	"github.com/zapvendas/zapvendas/internal/bus"
)

// Channel is a messaging transport.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is actively processing messages.
	IsRunning() bool
}

// ContactResolver is implemented by channels that can look up display names.
type ContactResolver interface {
	// Contact returns the display name for an identifier, or "" if unknown.
	Contact(ctx context.Context, id string) string
}

// BaseChannel provides shared functionality for channel implementations,
// which should embed it.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	running bool
}

// NewBaseChannel creates a BaseChannel.
func NewBaseChannel(name string, msgBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// HandleMessage publishes an inbound message to the bus. This is the
// standard way for channels to forward received messages.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) {
	msg.Channel = c.name
	c.bus.PublishInbound(msg)
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
