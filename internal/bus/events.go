package bus

import "time"

// InboundMessage is a normalized message received from a channel.
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Media     []string
	Timestamp time.Time
	Metadata  map[string]any
}

// SessionKey identifies the conversation this message belongs to.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a reply produced by the agent loop for a channel to
// deliver. Media entries are local file paths that the channel uploads
// before sending.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	Media    []string
	Metadata map[string]any
}

// Title returns the metadata title, if set.
func (m *OutboundMessage) Title() string {
	if m.Metadata == nil {
		return ""
	}
	if t, ok := m.Metadata["title"].(string); ok {
		return t
	}
	return ""
}
