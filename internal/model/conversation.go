package model

import (
	"time"
)

// Conversation is the per-clinic message thread for one canonical phone
// identity. Uniqueness on (clinic_id, canonical_phone) is what keeps two raw
// representations of the same physical number in a single thread.
type Conversation struct {
	ID             string             `db:"id" json:"id"`
	ClinicID       string             `db:"clinic_id" json:"clinicId"`
	CanonicalPhone string             `db:"canonical_phone" json:"canonicalPhone"`
	Status         ConversationStatus `db:"status" json:"status"`
	LastInboundAt  *time.Time         `db:"last_inbound_at" json:"lastInboundAt,omitempty"`
	LastOutboundAt *time.Time         `db:"last_outbound_at" json:"lastOutboundAt,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updatedAt"`
}

// ConversationView records that a staff member has seen a conversation as of
// viewed_at. Upserted on each view event, last write wins.
type ConversationView struct {
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	UserID         string    `db:"user_id" json:"userId"`
	ViewedAt       time.Time `db:"viewed_at" json:"viewedAt"`
}
