package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/clinicware/comms-hub-go/internal/errors"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/provider"
	"github.com/clinicware/comms-hub-go/internal/statetoken"
)

func adminUser(clinicID string) *model.ClinicUser {
	return &model.ClinicUser{ID: "user-1", ClinicID: clinicID, Role: model.RoleAdmin}
}

func staffUser(clinicID string) *model.ClinicUser {
	return &model.ClinicUser{ID: "user-2", ClinicID: clinicID, Role: model.RoleStaff}
}

func newIntegrationFixture(integRepo *mockIntegrationRepo, userRepo *mockUserRepo, connectors ...provider.Connector) (*IntegrationService, *statetoken.Signer) {
	signer := statetoken.NewSigner("test-secret", 10*time.Minute)
	return NewIntegrationService(integRepo, userRepo, signer, "", connectors...), signer
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from model.IntegrationStatus
		to   model.IntegrationStatus
		want bool
	}{
		{model.IntegrationDisconnected, model.IntegrationConnected, true},
		{model.IntegrationDisconnected, model.IntegrationError, false},
		{model.IntegrationConnected, model.IntegrationConnected, true},
		{model.IntegrationConnected, model.IntegrationError, true},
		{model.IntegrationConnected, model.IntegrationDisconnected, true},
		{model.IntegrationError, model.IntegrationConnected, true},
		{model.IntegrationError, model.IntegrationDisconnected, true},
		{model.IntegrationError, model.IntegrationError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
}

func TestIntegrationService_AuthorizeURL(t *testing.T) {
	scope := mustScope("clinic-1")
	connector := &stubConnector{provType: model.ProviderWhatsApp, authorizeURL: "https://auth.example.com/dialog?client_id=1"}
	svc, signer := newIntegrationFixture(new(mockIntegrationRepo), new(mockUserRepo), connector)

	t.Run("admin gets signed state", func(t *testing.T) {
		url, err := svc.AuthorizeURL(context.Background(), scope, adminUser("clinic-1"), model.ProviderWhatsApp)

		require.NoError(t, err)
		require.True(t, strings.HasPrefix(url, "https://auth.example.com/dialog?client_id=1&state="))

		state := strings.TrimPrefix(url, "https://auth.example.com/dialog?client_id=1&state=")
		claims, err := signer.Verify(state)
		require.NoError(t, err)
		assert.Equal(t, "clinic-1", claims.ClinicID)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "whatsapp", claims.Provider)
	})

	t.Run("staff is rejected", func(t *testing.T) {
		_, err := svc.AuthorizeURL(context.Background(), scope, staffUser("clinic-1"), model.ProviderWhatsApp)
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		_, err := svc.AuthorizeURL(context.Background(), scope, adminUser("clinic-1"), model.IntegrationProvider("fax"))
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}

func TestIntegrationService_CompleteCallback(t *testing.T) {
	scope := mustScope("clinic-1")

	newConnector := func() *stubConnector {
		return &stubConnector{
			provType: model.ProviderWhatsApp,
			result: &provider.ExchangeResult{
				Credentials:       provider.Credentials{AccessToken: "fresh-token", PhoneNumberID: "pn-9"},
				Metadata:          json.RawMessage(`{"display_phone_number":"+55 62 99691-5034"}`),
				ProviderAccountID: "pn-9",
			},
		}
	}

	t.Run("happy path connects", func(t *testing.T) {
		connector := newConnector()
		integRepo := new(mockIntegrationRepo)
		userRepo := new(mockUserRepo)
		svc, signer := newIntegrationFixture(integRepo, userRepo, connector)

		state, err := signer.Sign("clinic-1", "user-1", "whatsapp")
		require.NoError(t, err)

		userRepo.On("FindByID", mock.Anything, scope, "user-1").Return(adminUser("clinic-1"), nil)
		integRepo.On("UpsertConnected", mock.Anything, scope, mock.MatchedBy(func(p model.ConnectIntegrationParams) bool {
			return p.Provider == model.ProviderWhatsApp &&
				p.ProviderAccountID != nil && *p.ProviderAccountID == "pn-9" &&
				strings.Contains(p.Credentials, "fresh-token")
		})).Return(&model.Integration{ID: "integ-1", Status: model.IntegrationConnected}, nil)

		integ, err := svc.CompleteCallback(context.Background(), model.ProviderWhatsApp, "auth-code", state)

		require.NoError(t, err)
		assert.Equal(t, model.IntegrationConnected, integ.Status)
		assert.Equal(t, 1, connector.exchanged)
	})

	t.Run("tampered state is rejected before exchange", func(t *testing.T) {
		connector := newConnector()
		svc, signer := newIntegrationFixture(new(mockIntegrationRepo), new(mockUserRepo), connector)

		state, err := signer.Sign("clinic-1", "user-1", "whatsapp")
		require.NoError(t, err)

		_, err = svc.CompleteCallback(context.Background(), model.ProviderWhatsApp, "auth-code", state+"x")

		assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
		assert.Zero(t, connector.exchanged)
	})

	t.Run("state for another provider is rejected", func(t *testing.T) {
		connector := newConnector()
		svc, signer := newIntegrationFixture(new(mockIntegrationRepo), new(mockUserRepo), connector)

		state, err := signer.Sign("clinic-1", "user-1", "email")
		require.NoError(t, err)

		_, err = svc.CompleteCallback(context.Background(), model.ProviderWhatsApp, "auth-code", state)

		assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
		assert.Zero(t, connector.exchanged)
	})

	t.Run("role is re-checked at callback time", func(t *testing.T) {
		// The user was an admin when authorize ran but was demoted before
		// the callback landed.
		connector := newConnector()
		integRepo := new(mockIntegrationRepo)
		userRepo := new(mockUserRepo)
		svc, signer := newIntegrationFixture(integRepo, userRepo, connector)

		state, err := signer.Sign("clinic-1", "user-1", "whatsapp")
		require.NoError(t, err)

		userRepo.On("FindByID", mock.Anything, scope, "user-1").Return(staffUser("clinic-1"), nil)

		_, err = svc.CompleteCallback(context.Background(), model.ProviderWhatsApp, "auth-code", state)

		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
		assert.Zero(t, connector.exchanged)
		integRepo.AssertNotCalled(t, "UpsertConnected", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("provider exchange failure surfaces without persisting", func(t *testing.T) {
		connector := newConnector()
		connector.exchangeErr = &provider.Error{Status: 400, Message: "bad code"}
		integRepo := new(mockIntegrationRepo)
		userRepo := new(mockUserRepo)
		svc, signer := newIntegrationFixture(integRepo, userRepo, connector)

		state, err := signer.Sign("clinic-1", "user-1", "whatsapp")
		require.NoError(t, err)

		userRepo.On("FindByID", mock.Anything, scope, "user-1").Return(adminUser("clinic-1"), nil)

		_, err = svc.CompleteCallback(context.Background(), model.ProviderWhatsApp, "auth-code", state)

		assert.Equal(t, apperrors.ErrCodeProvider, apperrors.GetCode(err))
		integRepo.AssertNotCalled(t, "UpsertConnected", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIntegrationService_Disconnect(t *testing.T) {
	scope := mustScope("clinic-1")

	t.Run("connected integration is scrubbed", func(t *testing.T) {
		integRepo := new(mockIntegrationRepo)
		integRepo.On("FindByProvider", mock.Anything, scope, model.ProviderWhatsApp).
			Return(&model.Integration{Status: model.IntegrationConnected, Credentials: "{}"}, nil)
		integRepo.On("Scrub", mock.Anything, scope, model.ProviderWhatsApp).Return(nil)

		svc, _ := newIntegrationFixture(integRepo, new(mockUserRepo))
		err := svc.Disconnect(context.Background(), scope, model.ProviderWhatsApp)

		require.NoError(t, err)
		integRepo.AssertExpectations(t)
	})

	t.Run("already disconnected is a no-op", func(t *testing.T) {
		integRepo := new(mockIntegrationRepo)
		integRepo.On("FindByProvider", mock.Anything, scope, model.ProviderWhatsApp).
			Return(&model.Integration{Status: model.IntegrationDisconnected}, nil)

		svc, _ := newIntegrationFixture(integRepo, new(mockUserRepo))
		err := svc.Disconnect(context.Background(), scope, model.ProviderWhatsApp)

		require.NoError(t, err)
		integRepo.AssertNotCalled(t, "Scrub", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("absent integration is a no-op", func(t *testing.T) {
		integRepo := new(mockIntegrationRepo)
		integRepo.On("FindByProvider", mock.Anything, scope, model.ProviderWhatsApp).Return(nil, nil)

		svc, _ := newIntegrationFixture(integRepo, new(mockUserRepo))
		err := svc.Disconnect(context.Background(), scope, model.ProviderWhatsApp)

		require.NoError(t, err)
		integRepo.AssertNotCalled(t, "Scrub", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIntegrationService_MarkError(t *testing.T) {
	scope := mustScope("clinic-1")

	t.Run("connected moves to error", func(t *testing.T) {
		integRepo := new(mockIntegrationRepo)
		integRepo.On("FindByProvider", mock.Anything, scope, model.ProviderWhatsApp).
			Return(&model.Integration{Status: model.IntegrationConnected}, nil)
		integRepo.On("SetError", mock.Anything, scope, model.ProviderWhatsApp, "boom").Return(nil)

		svc, _ := newIntegrationFixture(integRepo, new(mockUserRepo))
		err := svc.MarkError(context.Background(), scope, model.ProviderWhatsApp, "boom")

		require.NoError(t, err)
		integRepo.AssertExpectations(t)
	})

	t.Run("disconnected cannot move to error", func(t *testing.T) {
		integRepo := new(mockIntegrationRepo)
		integRepo.On("FindByProvider", mock.Anything, scope, model.ProviderWhatsApp).
			Return(&model.Integration{Status: model.IntegrationDisconnected}, nil)

		svc, _ := newIntegrationFixture(integRepo, new(mockUserRepo))
		err := svc.MarkError(context.Background(), scope, model.ProviderWhatsApp, "boom")

		assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.GetCode(err))
		integRepo.AssertNotCalled(t, "SetError", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("absent integration is not found", func(t *testing.T) {
		integRepo := new(mockIntegrationRepo)
		integRepo.On("FindByProvider", mock.Anything, scope, model.ProviderWhatsApp).Return(nil, nil)

		svc, _ := newIntegrationFixture(integRepo, new(mockUserRepo))
		err := svc.MarkError(context.Background(), scope, model.ProviderWhatsApp, "boom")

		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestIntegrationService_CredentialsRoundTripWithEncryption(t *testing.T) {
	key := strings.Repeat("ab", 32)
	signer := statetoken.NewSigner("test-secret", time.Minute)
	svc := NewIntegrationService(new(mockIntegrationRepo), new(mockUserRepo), signer, key)

	blob, err := svc.sealCredentials(provider.Credentials{AccessToken: "secret-token", PhoneNumberID: "pn-1"})
	require.NoError(t, err)
	assert.NotContains(t, blob, "secret-token")

	creds, err := svc.Credentials(&model.Integration{Credentials: blob})
	require.NoError(t, err)
	assert.Equal(t, "secret-token", creds.AccessToken)
	assert.Equal(t, "pn-1", creds.PhoneNumberID)
}
