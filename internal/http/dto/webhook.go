package dto

// WebhookRequest is the envelope the chat gateway posts for every
// session event. Only message events carry a payload we use.
type WebhookRequest struct {
	Event   string          `json:"event" binding:"required"`
	Session string          `json:"session"`
	Payload *MessagePayload `json:"payload"`
}

type MessagePayload struct {
	ID          string  `json:"id"`
	From        string  `json:"from"`        // chat id; groups end in @g.us
	Participant string  `json:"participant"` // group sender, empty in direct chats
	FromMe      bool    `json:"fromMe"`
	Body        string  `json:"body"`
	Timestamp   int64   `json:"timestamp"`
	NotifyName  *string `json:"notifyName,omitempty"`
	QuotedMsgID *string `json:"quotedMsgId,omitempty"`
}

type WebhookResponse struct {
	Status     string `json:"status"`
	MessageID  int64  `json:"message_id,omitempty,string"`
	Command    string `json:"command,omitempty"`
	Enqueued   bool   `json:"enqueued"`
	Duplicated bool   `json:"duplicated"`
}
