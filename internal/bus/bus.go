// Package bus carries messages between channel adapters and the agent loop.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const defaultInboundBuffer = 64

// MessageBus decouples channel adapters from the agent loop. Admitted
// inbound messages are queued on Inbound; outbound messages are fanned out
// to the handler registered for their channel.
type MessageBus struct {
	Inbound chan InboundMessage

	mu       sync.RWMutex
	outbound map[string]func(OutboundMessage)
}

// New creates a message bus.
func New() *MessageBus {
	return &MessageBus{
		Inbound:  make(chan InboundMessage, defaultInboundBuffer),
		outbound: make(map[string]func(OutboundMessage)),
	}
}

// PublishInbound queues a message for the agent loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.Inbound <- msg
}

// SubscribeOutbound registers the outbound handler for a channel. A second
// registration for the same channel replaces the first.
func (b *MessageBus) SubscribeOutbound(channel string, handler func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound[channel] = handler
}

// PublishOutbound delivers a message to its channel's handler. Messages for
// channels with no handler are dropped.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.mu.RLock()
	handler := b.outbound[msg.Channel]
	b.mu.RUnlock()

	if handler == nil {
		log.Warn().Str("channel", msg.Channel).Msg("no outbound handler, message dropped")
		return
	}
	handler(msg)
}

// Close closes the inbound queue. Call only after all publishers stopped.
func (b *MessageBus) Close() {
	close(b.Inbound)
}
