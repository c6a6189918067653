package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishInbound(t *testing.T) {
	b := New()
	b.PublishInbound(InboundMessage{Channel: "feishu", ChatID: "oc_1", Content: "hi"})

	msg := <-b.Inbound
	assert.Equal(t, "feishu", msg.Channel)
	assert.Equal(t, "feishu:oc_1", msg.SessionKey())
}

func TestOutboundFanout(t *testing.T) {
	b := New()

	var got []OutboundMessage
	b.SubscribeOutbound("feishu", func(msg OutboundMessage) {
		got = append(got, msg)
	})

	b.PublishOutbound(OutboundMessage{Channel: "feishu", ChatID: "oc_1", Content: "reply"})
	b.PublishOutbound(OutboundMessage{Channel: "telegram", ChatID: "42", Content: "dropped"})

	require.Len(t, got, 1)
	assert.Equal(t, "reply", got[0].Content)
}

func TestOutboundTitle(t *testing.T) {
	msg := OutboundMessage{Metadata: map[string]any{"title": "Report"}}
	assert.Equal(t, "Report", msg.Title())

	assert.Empty(t, (&OutboundMessage{}).Title())
	assert.Empty(t, (&OutboundMessage{Metadata: map[string]any{"title": 3}}).Title())
}
