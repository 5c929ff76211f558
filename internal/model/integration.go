package model

import (
	"encoding/json"
	"time"
)

// Integration is the per-clinic, per-provider connection record. At most one
// row exists per (clinic_id, provider); disconnecting scrubs fields rather
// than deleting the row.
type Integration struct {
	ID       string              `db:"id" json:"id"`
	ClinicID string              `db:"clinic_id" json:"clinicId"`
	Provider IntegrationProvider `db:"provider" json:"provider"`
	Status   IntegrationStatus   `db:"status" json:"status"`

	// Credentials is an opaque, provider-specific secret blob (tokens,
	// phone-number ids), AES-GCM encrypted at rest when an encryption key
	// is configured. Never serialized to clients.
	Credentials string          `db:"credentials" json:"-"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`

	// ProviderAccountID routes inbound webhooks back to the owning clinic
	// (e.g. the WhatsApp phone-number id).
	ProviderAccountID *string `db:"provider_account_id" json:"-"`

	ConnectedAt  *time.Time `db:"connected_at" json:"connectedAt,omitempty"`
	LastSyncAt   *time.Time `db:"last_sync_at" json:"lastSyncAt,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

type ConnectIntegrationParams struct {
	Provider          IntegrationProvider
	Credentials       string
	Metadata          json.RawMessage
	ProviderAccountID *string
}
