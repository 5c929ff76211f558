package model

import (
	"time"
)

// ClinicUser is a staff member of one clinic. API access uses an opaque
// bearer token stored as a sha256 hash.
type ClinicUser struct {
	ID         string     `db:"id" json:"id"`
	ClinicID   string     `db:"clinic_id" json:"clinicId"`
	Name       string     `db:"name" json:"name"`
	Email      string     `db:"email" json:"email"`
	Role       Role       `db:"role" json:"role"`
	TokenHash  string     `db:"token_hash" json:"-"`
	DisabledAt *time.Time `db:"disabled_at" json:"disabledAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

func (u *ClinicUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}
