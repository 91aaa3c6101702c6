package model

import "time"

// ChatUser is a self-registered display name for a transport sender id.
type ChatUser struct {
	SenderID     string    `json:"sender_id"`
	DisplayName  string    `json:"display_name"`
	RegisteredAt time.Time `json:"registered_at"`
}
