package service

import (
	"context"
	"time"

	"github.com/clinicware/comms-hub-go/internal/config"
	"github.com/clinicware/comms-hub-go/internal/repository"
)

// WindowService answers whether a free-form outbound reply is currently
// permitted for a conversation. The provider only accepts free-form business
// replies within 24 hours of the customer's last message, so the check runs
// locally before any provider call and fails with an actionable error
// instead of an opaque provider rejection.
type WindowService struct {
	convRepo repository.ConversationRepository
	window   time.Duration
}

func NewWindowService(convRepo repository.ConversationRepository) *WindowService {
	return &WindowService{
		convRepo: convRepo,
		window:   config.MessagingWindow,
	}
}

// IsWithinWindow reports true iff the clinic's conversation for the canonical
// phone has an inbound message within the window. No conversation, or a
// conversation the customer has never written to, is outside the window.
func (s *WindowService) IsWithinWindow(ctx context.Context, scope repository.Scope, canonicalPhone string) (bool, error) {
	conv, err := s.convRepo.FindByPhone(ctx, scope, canonicalPhone)
	if err != nil {
		return false, err
	}
	if conv == nil || conv.LastInboundAt == nil {
		return false, nil
	}

	return time.Since(*conv.LastInboundAt) <= s.window, nil
}
