// Package bus provides in-process message passing between channels and the dispatcher.
package bus

// QuotedMessage carries the context of a reply: the message the sender quoted.
type QuotedMessage struct {
	SenderID string `json:"sender_id"` // who sent the quoted message
	FromMe   bool   `json:"from_me"`   // quoted message was sent by this account
	Text     string `json:"text"`
}

// InboundMessage is a message received from a channel.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	SenderName string            `json:"sender_name,omitempty"`
	Content    string            `json:"content"`
	FromMe     bool              `json:"from_me,omitempty"`
	IsGroup    bool              `json:"is_group,omitempty"`
	Quoted     *QuotedMessage    `json:"quoted,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a message to deliver through a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}
