package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/clinicware/comms-hub-go/internal/database"
	"github.com/clinicware/comms-hub-go/internal/model"
)

type MessageRepository interface {
	// InsertInbound appends an inbound message unless one with the same
	// (conversation_id, provider_message_id) already exists. The bool result
	// reports whether a row was created; false means webhook redelivery.
	InsertInbound(ctx context.Context, scope Scope, params model.CreateMessageParams) (*model.Message, bool, error)
	InsertOutbound(ctx context.Context, scope Scope, params model.CreateMessageParams) (*model.Message, error)
	ListByConversation(ctx context.Context, scope Scope, conversationID string, limit, offset int) ([]model.Message, error)
	CountByConversation(ctx context.Context, scope Scope, conversationID string) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) MessageRepository
}

type messageRepo struct {
	db database.DBTX
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

// The EXISTS guard ties every insert to the caller's clinic: a conversation
// id from another tenant inserts nothing.
func (r *messageRepo) InsertInbound(ctx context.Context, scope Scope, params model.CreateMessageParams) (*model.Message, bool, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (conversation_id, direction, body, provider_message_id, timestamp)
		SELECT $2, 'inbound', $3, $4, $5
		WHERE EXISTS (
			SELECT 1 FROM conversations WHERE id = $2 AND clinic_id = $1
		)
		ON CONFLICT (conversation_id, provider_message_id) WHERE provider_message_id IS NOT NULL
		DO NOTHING
		RETURNING *
	`, scope.ClinicID(), params.ConversationID, params.Body, params.ProviderMessageID, params.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict swallowed the insert: duplicate delivery.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &msg, true, nil
}

func (r *messageRepo) InsertOutbound(ctx context.Context, scope Scope, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (conversation_id, direction, body, provider_message_id, timestamp)
		SELECT $2, 'outbound', $3, $4, $5
		WHERE EXISTS (
			SELECT 1 FROM conversations WHERE id = $2 AND clinic_id = $1
		)
		RETURNING *
	`, scope.ClinicID(), params.ConversationID, params.Body, params.ProviderMessageID, params.Timestamp)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, scope Scope, conversationID string, limit, offset int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT m.* FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.clinic_id = $1 AND m.conversation_id = $2
		ORDER BY m.created_at DESC
		LIMIT $3 OFFSET $4
	`, scope.ClinicID(), conversationID, limit, offset)
	return msgs, err
}

func (r *messageRepo) CountByConversation(ctx context.Context, scope Scope, conversationID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.clinic_id = $1 AND m.conversation_id = $2
	`, scope.ClinicID(), conversationID)
	return count, err
}
