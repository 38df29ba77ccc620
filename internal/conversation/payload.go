package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps failures to reach the server or read its reply.
	ErrTransport = errors.New("conversation transport failure")
	// ErrDecode is returned when a 200 reply is not valid JSON.
	ErrDecode = errors.New("conversation response is not valid JSON")
	// ErrMissingField is returned when a 200 reply lacks a required field.
	ErrMissingField = errors.New("conversation response missing field")
)

// Request is the body posted to the conversation endpoint.
type Request struct {
	Message         string `json:"message"`
	ConversationID  string `json:"conversationId"`
	ParentMessageID string `json:"parentMessageId"`
}

// Usage is the token accounting the server attaches under details.usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is a successful reply from the conversation endpoint.
type Response struct {
	Response       string
	ConversationID string
	MessageID      string
	// Usage is nil when the server did not report it.
	Usage *Usage
}

type wireResponse struct {
	Response       *string         `json:"response"`
	ConversationID *string         `json:"conversationId"`
	MessageID      *string         `json:"messageId"`
	Details        json.RawMessage `json:"details"`
}

// ParseResponse decodes a 200 reply. The response, conversationId and
// messageId fields are required; anything else is ignored.
func ParseResponse(body []byte) (*Response, error) {
	var w wireResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	switch {
	case w.Response == nil:
		return nil, fmt.Errorf("%w: response", ErrMissingField)
	case w.ConversationID == nil:
		return nil, fmt.Errorf("%w: conversationId", ErrMissingField)
	case w.MessageID == nil:
		return nil, fmt.Errorf("%w: messageId", ErrMissingField)
	}

	resp := &Response{
		Response:       *w.Response,
		ConversationID: *w.ConversationID,
		MessageID:      *w.MessageID,
	}

	if len(w.Details) > 0 {
		var details struct {
			Usage *Usage `json:"usage"`
		}
		// details is informational; an unexpected shape is ignored
		if err := json.Unmarshal(w.Details, &details); err == nil {
			resp.Usage = details.Usage
		}
	}

	return resp, nil
}
