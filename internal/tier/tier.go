// Package tier implements the knowledge base access policy.
//
// Every document in the knowledge base carries a tier, and every caller is
// resolved to a tier from their role. A caller at tier T may read any
// document whose tier is less than or equal to T. The mapping is pure and
// holds no state; all enforcement happens where documents are read.
package tier

import (
	"errors"
	"fmt"
)

// Tier is an ordinal knowledge base access level. Tiers are totally
// ordered: raising a caller's tier never hides previously visible
// documents.
type Tier int

const (
	// Customer is the base tier: operator-facing documentation.
	Customer Tier = 1

	// Engineer is the extended tier: technical and troubleshooting docs.
	Engineer Tier = 2

	// Master is the full tier: the complete knowledge base.
	Master Tier = 3
)

// Role names accepted by ForRole.
const (
	RoleCustomer = "customer"
	RoleEngineer = "engineer"
	RoleAdmin    = "admin"
)

// ErrInvalidTier indicates a tier value outside {1, 2, 3}.
var ErrInvalidTier = errors.New("invalid knowledge base tier")

// ForRole maps a caller role to its access tier.
// Unknown roles fall back to the Customer tier rather than failing: an
// unrecognized role must never grant elevated access.
func ForRole(role string) Tier {
	switch role {
	case RoleEngineer:
		return Engineer
	case RoleAdmin:
		return Master
	default:
		return Customer
	}
}

// Parse validates a raw tier value.
func Parse(v int) (Tier, error) {
	t := Tier(v)
	if t < Customer || t > Master {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTier, v)
	}
	return t, nil
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t >= Customer && t <= Master
}

// Visible reports whether a document at docTier is readable at tier t.
func (t Tier) Visible(docTier Tier) bool {
	return docTier <= t
}

// Persona is the prompt persona associated with a tier. Personas form a
// closed enumeration consumed by the response synthesizer.
type Persona string

const (
	PersonaBase     Persona = "base"
	PersonaExtended Persona = "extended"
	PersonaFull     Persona = "full"
)

// Persona returns the synthesizer persona for tier t.
func (t Tier) Persona() Persona {
	switch t {
	case Engineer:
		return PersonaExtended
	case Master:
		return PersonaFull
	default:
		return PersonaBase
	}
}

func (t Tier) String() string {
	switch t {
	case Customer:
		return "customer"
	case Engineer:
		return "engineer"
	case Master:
		return "master"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}
