package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clinicware/comms-hub-go/internal/database"
	"github.com/clinicware/comms-hub-go/internal/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, scope Scope, id string) (*model.Conversation, error)
	FindByPhone(ctx context.Context, scope Scope, canonicalPhone string) (*model.Conversation, error)
	FindOrCreate(ctx context.Context, scope Scope, canonicalPhone string) (*model.Conversation, error)
	List(ctx context.Context, scope Scope, limit, offset int) ([]model.Conversation, error)
	MarkInbound(ctx context.Context, scope Scope, id string, at time.Time) error
	MarkOutbound(ctx context.Context, scope Scope, id string, at time.Time) error
	UpdateStatus(ctx context.Context, scope Scope, id string, status model.ConversationStatus) (bool, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ConversationRepository
}

type conversationRepo struct {
	db database.DBTX
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) WithTx(tx *sqlx.Tx) ConversationRepository {
	return &conversationRepo{db: tx}
}

func (r *conversationRepo) FindByID(ctx context.Context, scope Scope, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations WHERE clinic_id = $1 AND id = $2
	`, scope.ClinicID(), id)
	return HandleNotFound(&conv, err)
}

func (r *conversationRepo) FindByPhone(ctx context.Context, scope Scope, canonicalPhone string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations WHERE clinic_id = $1 AND canonical_phone = $2
	`, scope.ClinicID(), canonicalPhone)
	return HandleNotFound(&conv, err)
}

// FindOrCreate relies on the (clinic_id, canonical_phone) unique constraint:
// concurrent duplicate inserts collapse into one row, never two. The DO
// UPDATE arm exists so RETURNING yields the row on conflict; it changes
// nothing else.
func (r *conversationRepo) FindOrCreate(ctx context.Context, scope Scope, canonicalPhone string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		INSERT INTO conversations (clinic_id, canonical_phone)
		VALUES ($1, $2)
		ON CONFLICT (clinic_id, canonical_phone) DO UPDATE SET
			canonical_phone = EXCLUDED.canonical_phone
		RETURNING *
	`, scope.ClinicID(), canonicalPhone)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) List(ctx context.Context, scope Scope, limit, offset int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		WHERE clinic_id = $1
		ORDER BY COALESCE(last_inbound_at, created_at) DESC
		LIMIT $2 OFFSET $3
	`, scope.ClinicID(), limit, offset)
	return convs, err
}

// MarkInbound forces the conversation open regardless of its prior status:
// a completed thread reopens when the customer writes again.
func (r *conversationRepo) MarkInbound(ctx context.Context, scope Scope, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = 'open',
			last_inbound_at = $3,
			updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
	`, scope.ClinicID(), id, at)
	return err
}

func (r *conversationRepo) MarkOutbound(ctx context.Context, scope Scope, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			last_outbound_at = $3,
			updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
	`, scope.ClinicID(), id, at)
	return err
}

func (r *conversationRepo) UpdateStatus(ctx context.Context, scope Scope, id string, status model.ConversationStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = $3,
			updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
	`, scope.ClinicID(), id, status)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}
