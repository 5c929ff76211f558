package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinicware/comms-hub-go/internal/config"
	apperrors "github.com/clinicware/comms-hub-go/internal/errors"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/phone"
	"github.com/clinicware/comms-hub-go/internal/provider"
	"github.com/clinicware/comms-hub-go/internal/repository"
)

type SendResult struct {
	ConversationID    string
	ProviderMessageID string
}

// DispatchService sends free-form outbound messages through a connected
// integration, gated by the 24-hour window. It performs no automatic
// retries: an outbound send carries no caller-supplied idempotency key, and
// a blind retry on a transient failure risks a duplicate message, which is
// worse than a surfaced failure the caller can retry explicitly.
type DispatchService struct {
	integrations *IntegrationService
	integRepo    repository.IntegrationRepository
	convRepo     repository.ConversationRepository
	msgRepo      repository.MessageRepository
	window       *WindowService
	sender       provider.Sender
}

func NewDispatchService(
	integrations *IntegrationService,
	integRepo repository.IntegrationRepository,
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	window *WindowService,
	sender provider.Sender,
) *DispatchService {
	return &DispatchService{
		integrations: integrations,
		integRepo:    integRepo,
		convRepo:     convRepo,
		msgRepo:      msgRepo,
		window:       window,
		sender:       sender,
	}
}

// Send validates preconditions in order (first failure wins), calls the
// provider, and records the outbound message. Provider failures surface to
// the caller unmodified except for credential scrubbing; auth failures
// additionally force-disconnect the integration.
func (s *DispatchService) Send(ctx context.Context, scope repository.Scope, to, text string) (*SendResult, error) {
	canonical := phone.Normalize(to)
	if len(canonical) < config.MinPhoneDigits {
		return nil, apperrors.InvalidInput("to", "phone number is too short")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.MissingRequired("text")
	}

	integ, err := s.integRepo.FindByProvider(ctx, scope, model.ProviderWhatsApp)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if integ == nil || integ.Status != model.IntegrationConnected {
		return nil, apperrors.NotConnected(string(model.ProviderWhatsApp))
	}

	within, err := s.window.IsWithinWindow(ctx, scope, canonical)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !within {
		return nil, apperrors.OutsideWindow()
	}

	creds, err := s.integrations.Credentials(integ)
	if err != nil {
		return nil, apperrors.Internal("Failed to read integration credentials").WithCause(err)
	}

	providerMessageID, err := s.sender.SendText(ctx, creds, canonical, text)
	if err != nil {
		s.recordSendFailure(ctx, scope, err)
		return nil, apperrors.Provider(string(model.ProviderWhatsApp), err)
	}

	now := time.Now()

	conv, err := s.convRepo.FindOrCreate(ctx, scope, canonical)
	if err != nil {
		// The provider accepted the message; losing the local row is logged
		// rather than surfaced as a send failure.
		log.Error().Err(err).Str("clinicId", scope.ClinicID()).Msg("send: conversation upsert failed after provider accept")
		return &SendResult{ProviderMessageID: providerMessageID}, nil
	}

	pmid := providerMessageID
	if _, err := s.msgRepo.InsertOutbound(ctx, scope, model.CreateMessageParams{
		ConversationID:    conv.ID,
		Direction:         model.DirectionOutbound,
		Body:              text,
		ProviderMessageID: &pmid,
		Timestamp:         now,
	}); err != nil {
		log.Error().Err(err).Str("conversationId", conv.ID).Msg("send: outbound message insert failed")
	}

	if err := s.convRepo.MarkOutbound(ctx, scope, conv.ID, now); err != nil {
		log.Error().Err(err).Str("conversationId", conv.ID).Msg("send: conversation update failed")
	}

	if err := s.integRepo.TouchLastSync(ctx, scope, model.ProviderWhatsApp, now); err != nil {
		log.Warn().Err(err).Str("clinicId", scope.ClinicID()).Msg("send: last sync update failed")
	}

	log.Info().
		Str("clinicId", scope.ClinicID()).
		Str("conversationId", conv.ID).
		Str("providerMessageId", providerMessageID).
		Msg("outbound message sent")

	return &SendResult{
		ConversationID:    conv.ID,
		ProviderMessageID: providerMessageID,
	}, nil
}

// recordSendFailure moves the integration to the error state, or scrubs it
// entirely when the provider rejected the credentials themselves.
func (s *DispatchService) recordSendFailure(ctx context.Context, scope repository.Scope, sendErr error) {
	if provider.IsAuthError(sendErr) {
		if err := s.integrations.ForceDisconnect(ctx, scope, model.ProviderWhatsApp, sendErr.Error()); err != nil {
			log.Error().Err(err).Str("clinicId", scope.ClinicID()).Msg("send: force disconnect failed")
		}
		return
	}

	if err := s.integrations.MarkError(ctx, scope, model.ProviderWhatsApp, sendErr.Error()); err != nil {
		log.Error().Err(err).Str("clinicId", scope.ClinicID()).Msg("send: mark error failed")
	}
}
