package model

import (
	"time"
)

type Conversation struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"userId"`
	Mode      ConversationMode `db:"mode" json:"mode"`
	Title     string           `db:"title" json:"title"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt"`

	// Messages are loaded oldest-first by ChatService lookups; the field
	// is not persisted on the conversation row itself.
	Messages []Message `db:"-" json:"messages,omitempty"`
}

type CreateConversationParams struct {
	UserID string
	Mode   ConversationMode
	Title  string
}
