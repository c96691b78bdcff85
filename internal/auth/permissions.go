package auth

import (
	"fmt"
	"strings"
)

// Capability is a permission bitmask. Each bit grants one action; handlers
// may require a conjunction of bits.
type Capability uint64

const (
	CapViewVenue Capability = 1 << iota
	CapEditVenue
	CapViewBookings
	CapManageBookings
	CapViewOperators
	CapCreateOperators
	CapEditOperators
	CapDeleteOperators
	CapResetOperatorSecrets
	CapViewAuditLogs
	CapManageVenueSettings
	CapTransferOwnership

	capSentinel
)

// CapAll covers every defined capability bit.
const CapAll = capSentinel - 1

// founderOnly bits are never granted outside the founder operator.
const founderOnly = CapManageVenueSettings | CapTransferOwnership

// Role classifies an operator. Roles are metadata for display and audit;
// all authorization decisions go through the permission bitmask.
type Role string

const (
	RoleFounder  Role = "founder"
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleStaff    Role = "staff"
)

var roleDefaults = map[Role]Capability{
	RoleFounder:  CapAll,
	RoleAdmin:    CapAll &^ founderOnly,
	RoleOperator: CapViewVenue | CapViewBookings | CapManageBookings | CapViewOperators,
	RoleStaff:    CapViewVenue | CapViewBookings,
}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := roleDefaults[role]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// DefaultMask returns the default capability bitmask for a role.
func DefaultMask(role Role) Capability {
	return roleDefaults[role]
}

// EffectiveMask resolves the mask an operator actually carries: the explicit
// override when present, the role default otherwise. Founders always carry
// the full mask regardless of stored values.
func EffectiveMask(role Role, founder bool, override Capability) Capability {
	if founder {
		return CapAll
	}
	mask := override
	if mask == 0 {
		mask = roleDefaults[role]
	}
	return mask &^ founderOnly
}

// HasCapability reports whether every bit in required is set in mask.
func HasCapability(mask, required Capability) bool {
	return mask&required == required
}
