package account

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a registrant as a private person or an organization.
type Kind string

const (
	KindIndividual   Kind = "individual"
	KindOrganization Kind = "organization"
)

// Valid reports whether the kind is a member of the enumeration. The zero
// value is deliberately not valid; an unset kind must be rejected, never
// defaulted.
func (k Kind) Valid() bool {
	switch k {
	case KindIndividual, KindOrganization:
		return true
	default:
		return false
	}
}

type Role string

const (
	RoleDonee Role = "donee"
	RoleAdmin Role = "admin"
)

// Account is the domain representation of a registered donee.
// It mirrors the accounts table and carries no JSON annotations so it can
// be reused by different presentation layers; the password hash must never
// reach a serialized response.
type Account struct {
	ID                uuid.UUID
	Email             string
	FirstName         string
	LastName          string
	Country           string
	PostalCode        string
	NationalID        string
	Kind              Kind
	OrganizationName  *string
	PasswordHash      string
	Verified          bool
	Role              Role
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
