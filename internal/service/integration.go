package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/clinicware/comms-hub-go/internal/audit"
	apperrors "github.com/clinicware/comms-hub-go/internal/errors"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/provider"
	"github.com/clinicware/comms-hub-go/internal/repository"
	"github.com/clinicware/comms-hub-go/internal/statetoken"
	"github.com/clinicware/comms-hub-go/internal/util"
)

// validTransitions is the integration state machine. Transitions absent from
// the table are rejected at the boundary instead of being applied as ad hoc
// field updates. connected→connected covers idempotent reconnects, which
// always succeed by replacing credentials.
var validTransitions = map[model.IntegrationStatus]map[model.IntegrationStatus]bool{
	model.IntegrationDisconnected: {
		model.IntegrationConnected: true,
	},
	model.IntegrationConnected: {
		model.IntegrationConnected:    true,
		model.IntegrationError:        true,
		model.IntegrationDisconnected: true,
	},
	model.IntegrationError: {
		model.IntegrationConnected:    true,
		model.IntegrationDisconnected: true,
	},
}

func canTransition(from, to model.IntegrationStatus) bool {
	return validTransitions[from][to]
}

// IntegrationService owns the per-(clinic, provider) connection lifecycle.
type IntegrationService struct {
	repo          repository.IntegrationRepository
	userRepo      repository.ClinicUserRepository
	connectors    map[model.IntegrationProvider]provider.Connector
	signer        *statetoken.Signer
	encryptionKey string
}

func NewIntegrationService(
	repo repository.IntegrationRepository,
	userRepo repository.ClinicUserRepository,
	signer *statetoken.Signer,
	encryptionKey string,
	connectors ...provider.Connector,
) *IntegrationService {
	byType := make(map[model.IntegrationProvider]provider.Connector, len(connectors))
	for _, c := range connectors {
		byType[c.Type()] = c
	}
	return &IntegrationService{
		repo:          repo,
		userRepo:      userRepo,
		connectors:    byType,
		signer:        signer,
		encryptionKey: encryptionKey,
	}
}

func (s *IntegrationService) List(ctx context.Context, scope repository.Scope) ([]model.Integration, error) {
	integs, err := s.repo.List(ctx, scope)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return integs, nil
}

// AuthorizeURL builds the provider authorization URL carrying a signed state
// token that embeds the clinic and acting user. It never mutates persisted
// state; the connection only changes on callback completion.
func (s *IntegrationService) AuthorizeURL(ctx context.Context, scope repository.Scope, user *model.ClinicUser, prov model.IntegrationProvider) (string, error) {
	connector, ok := s.connectors[prov]
	if !ok {
		return "", apperrors.InvalidInput("provider", "unknown provider")
	}
	if user == nil || !user.IsAdmin() {
		return "", apperrors.Forbidden("Not authorized")
	}

	state, err := s.signer.Sign(scope.ClinicID(), user.ID, string(prov))
	if err != nil {
		return "", apperrors.Internal("Failed to build authorization URL").WithCause(err)
	}

	return connector.AuthorizeURL(state), nil
}

// CompleteCallback finishes the token exchange. The state token is untrusted
// input: the signature and expiry are checked first, and the embedded user
// must still be an admin of the embedded clinic before anything is persisted.
func (s *IntegrationService) CompleteCallback(ctx context.Context, prov model.IntegrationProvider, code, state string) (*model.Integration, error) {
	connector, ok := s.connectors[prov]
	if !ok {
		return nil, apperrors.InvalidInput("provider", "unknown provider")
	}

	claims, err := s.signer.Verify(state)
	if err != nil {
		audit.Log(ctx, audit.Event{
			Type:     audit.EventStateTokenRejected,
			Provider: string(prov),
			Details:  map[string]interface{}{"reason": err.Error()},
		})
		return nil, apperrors.InvalidToken("Invalid or expired state token")
	}
	if claims.Provider != string(prov) {
		return nil, apperrors.InvalidToken("State token issued for a different provider")
	}

	scope, err := repository.ForClinic(claims.ClinicID)
	if err != nil {
		return nil, apperrors.InvalidToken("Invalid state token")
	}

	user, err := s.userRepo.FindByID(ctx, scope, claims.UserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !user.IsAdmin() {
		audit.Log(ctx, audit.Event{
			Type:     audit.EventAuthFailure,
			ClinicID: claims.ClinicID,
			UserID:   claims.UserID,
			Provider: string(prov),
			Details:  map[string]interface{}{"reason": "callback user is not a clinic admin"},
		})
		return nil, apperrors.Forbidden("Not authorized")
	}

	result, err := connector.Exchange(ctx, code)
	if err != nil {
		return nil, apperrors.Provider(string(prov), err)
	}

	blob, err := s.sealCredentials(result.Credentials)
	if err != nil {
		return nil, apperrors.Internal("Failed to store credentials").WithCause(err)
	}

	var accountID *string
	if result.ProviderAccountID != "" {
		accountID = &result.ProviderAccountID
	}

	metadata := result.Metadata
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}

	integ, err := s.repo.UpsertConnected(ctx, scope, model.ConnectIntegrationParams{
		Provider:          prov,
		Credentials:       blob,
		Metadata:          metadata,
		ProviderAccountID: accountID,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventIntegrationConnected,
		ClinicID: scope.ClinicID(),
		UserID:   user.ID,
		Provider: string(prov),
	})

	log.Info().
		Str("clinicId", scope.ClinicID()).
		Str("provider", string(prov)).
		Msg("integration connected")

	return integ, nil
}

// Disconnect scrubs credentials and metadata. Scrubbing an already
// disconnected (or absent) integration is a no-op success.
func (s *IntegrationService) Disconnect(ctx context.Context, scope repository.Scope, prov model.IntegrationProvider) error {
	integ, err := s.repo.FindByProvider(ctx, scope, prov)
	if err != nil {
		return apperrors.Database(err)
	}
	if integ == nil || integ.Status == model.IntegrationDisconnected {
		return nil
	}

	if !canTransition(integ.Status, model.IntegrationDisconnected) {
		return apperrors.InvalidTransition(string(integ.Status), string(model.IntegrationDisconnected))
	}

	s.revokeUpstream(ctx, integ)

	if err := s.repo.Scrub(ctx, scope, prov); err != nil {
		return apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventIntegrationDisconnected,
		ClinicID: scope.ClinicID(),
		Provider: string(prov),
	})

	return nil
}

// MarkError records a non-authentication send/sync failure. Credentials are
// retained so the integration can recover without re-authorization.
func (s *IntegrationService) MarkError(ctx context.Context, scope repository.Scope, prov model.IntegrationProvider, message string) error {
	integ, err := s.repo.FindByProvider(ctx, scope, prov)
	if err != nil {
		return apperrors.Database(err)
	}
	if integ == nil {
		return apperrors.NotFound("Integration")
	}
	if !canTransition(integ.Status, model.IntegrationError) {
		return apperrors.InvalidTransition(string(integ.Status), string(model.IntegrationError))
	}

	if err := s.repo.SetError(ctx, scope, prov, message); err != nil {
		return apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventIntegrationError,
		ClinicID: scope.ClinicID(),
		Provider: string(prov),
		Details:  map[string]interface{}{"error": message},
	})

	return nil
}

// ForceDisconnect scrubs credentials after an authentication failure.
// Known-bad credentials cannot be trusted, so the integration does not pass
// through the error state.
func (s *IntegrationService) ForceDisconnect(ctx context.Context, scope repository.Scope, prov model.IntegrationProvider, reason string) error {
	if err := s.repo.Scrub(ctx, scope, prov); err != nil {
		return apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventIntegrationForcedOut,
		ClinicID: scope.ClinicID(),
		Provider: string(prov),
		Details:  map[string]interface{}{"reason": reason},
	})

	log.Warn().
		Str("clinicId", scope.ClinicID()).
		Str("provider", string(prov)).
		Str("reason", reason).
		Msg("integration force-disconnected after auth failure")

	return nil
}

// Credentials decrypts and decodes an integration's stored credential blob.
func (s *IntegrationService) Credentials(integ *model.Integration) (provider.Credentials, error) {
	blob := integ.Credentials
	if s.encryptionKey != "" {
		plain, err := util.Decrypt(s.encryptionKey, blob)
		if err != nil {
			return provider.Credentials{}, fmt.Errorf("decrypt credentials: %w", err)
		}
		blob = plain
	}
	return provider.DecodeCredentials(blob)
}

func (s *IntegrationService) sealCredentials(creds provider.Credentials) (string, error) {
	blob, err := creds.Encode()
	if err != nil {
		return "", err
	}
	if s.encryptionKey == "" {
		return blob, nil
	}
	return util.Encrypt(s.encryptionKey, blob)
}

// revokeUpstream invalidates the token with the provider when the connector
// supports it. Failures are logged only; the local scrub is what matters.
func (s *IntegrationService) revokeUpstream(ctx context.Context, integ *model.Integration) {
	type revoker interface {
		Revoke(ctx context.Context, creds provider.Credentials) error
	}

	connector, ok := s.connectors[integ.Provider]
	if !ok {
		return
	}
	rev, ok := connector.(revoker)
	if !ok {
		return
	}

	creds, err := s.Credentials(integ)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(integ.Provider)).Msg("skipping upstream revoke: cannot read credentials")
		return
	}
	if err := rev.Revoke(ctx, creds); err != nil {
		log.Warn().Err(err).Str("provider", string(integ.Provider)).Msg("upstream token revoke failed")
	}
}
