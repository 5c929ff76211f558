package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/clinicware/comms-hub-go/internal/model"
)

type ClinicUserRepository interface {
	// FindByTokenHash is unscoped by design: the resolved user is what
	// establishes the clinic scope for the rest of the request.
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.ClinicUser, error)
	FindByID(ctx context.Context, scope Scope, id string) (*model.ClinicUser, error)
}

type clinicUserRepo struct {
	db *sqlx.DB
}

func NewClinicUserRepository(db *sqlx.DB) ClinicUserRepository {
	return &clinicUserRepo{db: db}
}

func (r *clinicUserRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.ClinicUser, error) {
	var user model.ClinicUser
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM clinic_users
		WHERE token_hash = $1 AND disabled_at IS NULL
	`, tokenHash)
	return HandleNotFound(&user, err)
}

func (r *clinicUserRepo) FindByID(ctx context.Context, scope Scope, id string) (*model.ClinicUser, error) {
	var user model.ClinicUser
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM clinic_users
		WHERE clinic_id = $1 AND id = $2 AND disabled_at IS NULL
	`, scope.ClinicID(), id)
	return HandleNotFound(&user, err)
}
