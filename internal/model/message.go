package model

import (
	"encoding/json"
	"time"
)

type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	Role           Role      `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// ParsedContent returns structured content for messages whose body is a
// serialized JSON payload (tool calls and results). Plain text comes back
// unchanged; the round trip is lossless either way.
func (m *Message) ParsedContent() any {
	var v any
	if err := json.Unmarshal([]byte(m.Content), &v); err != nil {
		return m.Content
	}
	return v
}

type CreateMessageParams struct {
	ConversationID string
	Role           Role
	Content        string
}
