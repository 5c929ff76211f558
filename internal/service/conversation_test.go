package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/clinicware/comms-hub-go/internal/errors"
	"github.com/clinicware/comms-hub-go/internal/model"
)

func TestConversationService_Messages(t *testing.T) {
	scope := mustScope("clinic-1")

	t.Run("returns page and total for existing conversation", func(t *testing.T) {
		convRepo := new(mockConversationRepo)
		convRepo.On("FindByID", mock.Anything, scope, "conv-1").
			Return(&model.Conversation{ID: "conv-1"}, nil)

		msgRepo := new(mockMessageRepo)
		msgRepo.On("ListByConversation", mock.Anything, scope, "conv-1", 50, 0).
			Return([]model.Message{{ID: "m1"}, {ID: "m2"}}, nil)
		msgRepo.On("CountByConversation", mock.Anything, scope, "conv-1").Return(7, nil)

		svc := NewConversationService(convRepo, msgRepo, new(mockViewRepo))
		msgs, total, err := svc.Messages(context.Background(), scope, "conv-1", 50, 0)

		require.NoError(t, err)
		assert.Len(t, msgs, 2)
		assert.Equal(t, 7, total)
	})

	t.Run("unknown conversation is not found", func(t *testing.T) {
		convRepo := new(mockConversationRepo)
		convRepo.On("FindByID", mock.Anything, scope, "conv-x").Return(nil, nil)

		svc := NewConversationService(convRepo, new(mockMessageRepo), new(mockViewRepo))
		_, _, err := svc.Messages(context.Background(), scope, "conv-x", 50, 0)

		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestConversationService_MarkViewed(t *testing.T) {
	scope := mustScope("clinic-1")

	t.Run("upserts view record", func(t *testing.T) {
		convRepo := new(mockConversationRepo)
		convRepo.On("FindByID", mock.Anything, scope, "conv-1").
			Return(&model.Conversation{ID: "conv-1"}, nil)

		viewRepo := new(mockViewRepo)
		viewRepo.On("Upsert", mock.Anything, scope, "conv-1", "user-1", mock.Anything).Return(nil)

		svc := NewConversationService(convRepo, new(mockMessageRepo), viewRepo)
		err := svc.MarkViewed(context.Background(), scope, "conv-1", "user-1")

		require.NoError(t, err)
		viewRepo.AssertExpectations(t)
	})

	t.Run("unknown conversation is not found", func(t *testing.T) {
		convRepo := new(mockConversationRepo)
		convRepo.On("FindByID", mock.Anything, scope, "conv-x").Return(nil, nil)

		viewRepo := new(mockViewRepo)
		svc := NewConversationService(convRepo, new(mockMessageRepo), viewRepo)

		err := svc.MarkViewed(context.Background(), scope, "conv-x", "user-1")

		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
		viewRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestConversationService_Complete(t *testing.T) {
	scope := mustScope("clinic-1")

	t.Run("marks conversation completed", func(t *testing.T) {
		convRepo := new(mockConversationRepo)
		convRepo.On("UpdateStatus", mock.Anything, scope, "conv-1", model.ConversationCompleted).Return(true, nil)

		svc := NewConversationService(convRepo, new(mockMessageRepo), new(mockViewRepo))
		require.NoError(t, svc.Complete(context.Background(), scope, "conv-1"))
	})

	t.Run("unknown conversation is not found", func(t *testing.T) {
		convRepo := new(mockConversationRepo)
		convRepo.On("UpdateStatus", mock.Anything, scope, "conv-x", model.ConversationCompleted).Return(false, nil)

		svc := NewConversationService(convRepo, new(mockMessageRepo), new(mockViewRepo))
		err := svc.Complete(context.Background(), scope, "conv-x")

		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}
