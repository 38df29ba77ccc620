package history

import "time"

// Exchange is one answered request recorded in the local transcript.
type Exchange struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	ParentMessageID string    `json:"parent_message_id"`
	MessageID       string    `json:"message_id"`
	Message         string    `json:"message"`
	Response        string    `json:"response"`
	CreatedAt       time.Time `json:"created_at"`
}
