package repository

import (
	"fmt"
)

// Scope binds every repository call to one clinic. Queries built from a Scope
// always carry the clinic_id predicate, so no call path can read or write
// across the tenant boundary by omitting a filter.
type Scope struct {
	clinicID string
}

// ForClinic constructs a Scope. An empty clinic id is a programming error
// and is rejected rather than silently widening the query.
func ForClinic(clinicID string) (Scope, error) {
	if clinicID == "" {
		return Scope{}, fmt.Errorf("clinic id must not be empty")
	}
	return Scope{clinicID: clinicID}, nil
}

func (s Scope) ClinicID() string {
	return s.clinicID
}
