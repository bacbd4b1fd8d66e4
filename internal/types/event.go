package types

import "time"

// Platform event and message types the relay distinguishes.
const (
	EventTypeMessage = "message"
	MessageTypeText  = "text"
)

// InboundEvent is a single event from a webhook batch.
// Message is set only when Type is EventTypeMessage.
type InboundEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ReplyToken string    `json:"-"`
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Redelivery bool      `json:"redelivery"`
	Message    *Message  `json:"message,omitempty"`
}

// Message is the payload of a message event. Text is populated for
// MessageTypeText only.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"-"`
}

// IsText reports whether the event is a text message.
func (e InboundEvent) IsText() bool {
	return e.Type == EventTypeMessage && e.Message != nil && e.Message.Type == MessageTypeText
}

// OutboundReply is the single reply attempted for an actionable event.
type OutboundReply struct {
	ReplyToken string
	Text       string
}
