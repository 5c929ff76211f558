package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/clinicware/comms-hub-go/internal/errors"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/repository"
)

type ConversationService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	viewRepo repository.ConversationViewRepository
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	viewRepo repository.ConversationViewRepository,
) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		viewRepo: viewRepo,
	}
}

func (s *ConversationService) List(ctx context.Context, scope repository.Scope, limit, offset int) ([]model.Conversation, error) {
	return s.convRepo.List(ctx, scope, limit, offset)
}

// Messages returns one page of the conversation's messages along with the
// total count, so callers can paginate without a second round trip.
func (s *ConversationService) Messages(ctx context.Context, scope repository.Scope, conversationID string, limit, offset int) ([]model.Message, int, error) {
	conv, err := s.convRepo.FindByID(ctx, scope, conversationID)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	if conv == nil {
		return nil, 0, apperrors.NotFound("Conversation")
	}

	msgs, err := s.msgRepo.ListByConversation(ctx, scope, conversationID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}

	total, err := s.msgRepo.CountByConversation(ctx, scope, conversationID)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}

	return msgs, total, nil
}

// MarkViewed upserts the (conversation, user) view record; repeated views
// simply advance viewed_at.
func (s *ConversationService) MarkViewed(ctx context.Context, scope repository.Scope, conversationID, userID string) error {
	conv, err := s.convRepo.FindByID(ctx, scope, conversationID)
	if err != nil {
		return apperrors.Database(err)
	}
	if conv == nil {
		return apperrors.NotFound("Conversation")
	}

	if err := s.viewRepo.Upsert(ctx, scope, conversationID, userID, time.Now()); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// Complete is the explicit manual status flip; a new inbound message will
// reopen the conversation regardless.
func (s *ConversationService) Complete(ctx context.Context, scope repository.Scope, conversationID string) error {
	return s.setStatus(ctx, scope, conversationID, model.ConversationCompleted)
}

func (s *ConversationService) Reopen(ctx context.Context, scope repository.Scope, conversationID string) error {
	return s.setStatus(ctx, scope, conversationID, model.ConversationOpen)
}

func (s *ConversationService) setStatus(ctx context.Context, scope repository.Scope, conversationID string, status model.ConversationStatus) error {
	updated, err := s.convRepo.UpdateStatus(ctx, scope, conversationID, status)
	if err != nil {
		return apperrors.Database(err)
	}
	if !updated {
		return apperrors.NotFound("Conversation")
	}

	log.Info().
		Str("clinicId", scope.ClinicID()).
		Str("conversationId", conversationID).
		Str("status", string(status)).
		Msg("conversation status updated")

	return nil
}
