package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clinicware/comms-hub-go/internal/model"
)

type IntegrationRepository interface {
	FindByProvider(ctx context.Context, scope Scope, provider model.IntegrationProvider) (*model.Integration, error)
	List(ctx context.Context, scope Scope) ([]model.Integration, error)

	// FindByProviderAccountID is deliberately unscoped: it is the webhook
	// router's way of discovering which clinic an inbound event belongs to.
	FindByProviderAccountID(ctx context.Context, provider model.IntegrationProvider, accountID string) (*model.Integration, error)

	UpsertConnected(ctx context.Context, scope Scope, params model.ConnectIntegrationParams) (*model.Integration, error)
	SetError(ctx context.Context, scope Scope, provider model.IntegrationProvider, message string) error
	Scrub(ctx context.Context, scope Scope, provider model.IntegrationProvider) error
	TouchLastSync(ctx context.Context, scope Scope, provider model.IntegrationProvider, at time.Time) error
}

type integrationRepo struct {
	db *sqlx.DB
}

func NewIntegrationRepository(db *sqlx.DB) IntegrationRepository {
	return &integrationRepo{db: db}
}

func (r *integrationRepo) FindByProvider(ctx context.Context, scope Scope, provider model.IntegrationProvider) (*model.Integration, error) {
	var integ model.Integration
	err := r.db.GetContext(ctx, &integ, `
		SELECT * FROM integrations WHERE clinic_id = $1 AND provider = $2
	`, scope.ClinicID(), provider)
	return HandleNotFound(&integ, err)
}

func (r *integrationRepo) List(ctx context.Context, scope Scope) ([]model.Integration, error) {
	var integs []model.Integration
	err := r.db.SelectContext(ctx, &integs, `
		SELECT * FROM integrations
		WHERE clinic_id = $1
		ORDER BY provider
	`, scope.ClinicID())
	return integs, err
}

func (r *integrationRepo) FindByProviderAccountID(ctx context.Context, provider model.IntegrationProvider, accountID string) (*model.Integration, error) {
	var integ model.Integration
	err := r.db.GetContext(ctx, &integ, `
		SELECT * FROM integrations
		WHERE provider = $1 AND provider_account_id = $2
	`, provider, accountID)
	return HandleNotFound(&integ, err)
}

// UpsertConnected creates the integration row on first connect and replaces
// credentials on reconnect. Reconnecting is idempotent; the error fields are
// cleared either way.
func (r *integrationRepo) UpsertConnected(ctx context.Context, scope Scope, params model.ConnectIntegrationParams) (*model.Integration, error) {
	var integ model.Integration
	err := r.db.GetContext(ctx, &integ, `
		INSERT INTO integrations
			(clinic_id, provider, status, credentials, metadata, provider_account_id, connected_at)
		VALUES ($1, $2, 'connected', $3, $4, $5, NOW())
		ON CONFLICT (clinic_id, provider) DO UPDATE SET
			status = 'connected',
			credentials = EXCLUDED.credentials,
			metadata = EXCLUDED.metadata,
			provider_account_id = EXCLUDED.provider_account_id,
			connected_at = NOW(),
			error_message = NULL,
			updated_at = NOW()
		RETURNING *
	`, scope.ClinicID(), params.Provider, params.Credentials, params.Metadata, params.ProviderAccountID)
	if err != nil {
		return nil, err
	}
	return &integ, nil
}

func (r *integrationRepo) SetError(ctx context.Context, scope Scope, provider model.IntegrationProvider, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integrations SET
			status = 'error',
			error_message = $3,
			updated_at = NOW()
		WHERE clinic_id = $1 AND provider = $2
	`, scope.ClinicID(), provider, message)
	return err
}

// Scrub resets the row to the disconnected state. Credentials and metadata
// are emptied rather than the row deleted, so the (clinic, provider)
// uniqueness invariant survives reconnects.
func (r *integrationRepo) Scrub(ctx context.Context, scope Scope, provider model.IntegrationProvider) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integrations SET
			status = 'disconnected',
			credentials = '',
			metadata = '{}',
			provider_account_id = NULL,
			connected_at = NULL,
			last_sync_at = NULL,
			error_message = NULL,
			updated_at = NOW()
		WHERE clinic_id = $1 AND provider = $2
	`, scope.ClinicID(), provider)
	return err
}

func (r *integrationRepo) TouchLastSync(ctx context.Context, scope Scope, provider model.IntegrationProvider, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integrations SET
			last_sync_at = $3,
			updated_at = NOW()
		WHERE clinic_id = $1 AND provider = $2
	`, scope.ClinicID(), provider, at)
	return err
}
