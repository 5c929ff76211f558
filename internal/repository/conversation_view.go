package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clinicware/comms-hub-go/internal/model"
)

type ConversationViewRepository interface {
	// Upsert records that the user has seen the conversation. Last write wins.
	Upsert(ctx context.Context, scope Scope, conversationID, userID string, viewedAt time.Time) error
	FindByConversation(ctx context.Context, scope Scope, conversationID string) ([]model.ConversationView, error)
}

type conversationViewRepo struct {
	db *sqlx.DB
}

func NewConversationViewRepository(db *sqlx.DB) ConversationViewRepository {
	return &conversationViewRepo{db: db}
}

func (r *conversationViewRepo) Upsert(ctx context.Context, scope Scope, conversationID, userID string, viewedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_views (conversation_id, user_id, viewed_at)
		SELECT $2, $3, $4
		WHERE EXISTS (
			SELECT 1 FROM conversations WHERE id = $2 AND clinic_id = $1
		)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET
			viewed_at = EXCLUDED.viewed_at
	`, scope.ClinicID(), conversationID, userID, viewedAt)
	return err
}

func (r *conversationViewRepo) FindByConversation(ctx context.Context, scope Scope, conversationID string) ([]model.ConversationView, error) {
	var views []model.ConversationView
	err := r.db.SelectContext(ctx, &views, `
		SELECT v.* FROM conversation_views v
		JOIN conversations c ON c.id = v.conversation_id
		WHERE c.clinic_id = $1 AND v.conversation_id = $2
		ORDER BY v.viewed_at DESC
	`, scope.ClinicID(), conversationID)
	return views, err
}
