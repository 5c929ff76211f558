package model

import (
	"time"
)

type Message struct {
	ID             string           `db:"id" json:"id"`
	ConversationID string           `db:"conversation_id" json:"conversationId"`
	Direction      MessageDirection `db:"direction" json:"direction"`
	Body           string           `db:"body" json:"body"`

	// ProviderMessageID dedupes webhook redeliveries: no two rows share the
	// same (conversation_id, provider_message_id) when non-null.
	ProviderMessageID *string `db:"provider_message_id" json:"providerMessageId,omitempty"`

	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateMessageParams struct {
	ConversationID    string
	Direction         MessageDirection
	Body              string
	ProviderMessageID *string
	Timestamp         time.Time
}
