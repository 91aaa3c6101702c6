package model

import "time"

// Message is one chat message as delivered by the transport gateway.
// SentAt is unix seconds; the transport decides it, not us.
type Message struct {
	ID             int64   `json:"id"`
	ConversationID string  `json:"conversation_id"`
	ExternalID     string  `json:"external_id"`
	SenderID       string  `json:"sender_id"`
	SenderName     *string `json:"sender_name,omitempty"` // transport profile name, if the gateway sent one
	Body           string  `json:"body"`
	SentAt         int64   `json:"sent_at"`
	FromMe         bool    `json:"from_me"`
	QuotedID       *string `json:"quoted_id,omitempty"` // external id of the message this one replies to

	CreatedAt time.Time `json:"created_at"`
}

func (m Message) Time() time.Time {
	return time.Unix(m.SentAt, 0)
}

func (m Message) HasQuote() bool {
	return m.QuotedID != nil && *m.QuotedID != ""
}
