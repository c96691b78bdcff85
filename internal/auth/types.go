package auth

import "time"

// Venue is a tenant account. RequiresOperatorSetup stays true until the
// founding operator is created.
type Venue struct {
	ID                    string
	Name                  string
	Email                 string
	SecretHash            string
	Active                bool
	RequiresOperatorSetup bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Operator is a named actor inside one venue. Exactly one operator per
// venue carries the founder flag; it implies the full capability mask.
type Operator struct {
	ID               string
	VenueID          string
	Username         string
	SecretHash       string
	Role             Role
	Permissions      Capability
	Active           bool
	Founder          bool
	FailedAttempts   int
	LockedUntil      time.Time
	MustChangeSecret bool
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectivePermissions resolves the mask this operator carries.
func (o *Operator) EffectivePermissions() Capability {
	return EffectiveMask(o.Role, o.Founder, o.Permissions)
}

// Locked reports whether the operator is inside a lockout window.
func (o *Operator) Locked(now time.Time) bool {
	return now.Before(o.LockedUntil)
}

// SessionKind distinguishes account-level from operator-level sessions.
type SessionKind string

const (
	SessionGateway     SessionKind = "gateway"
	SessionOperational SessionKind = "operational"
)

// Device describes the client a session belongs to.
type Device struct {
	Name string
	Type string
}

// Session represents one authenticated device. RefreshHash is the sha256
// of the opaque refresh secret; the plaintext is never stored.
// AccessTokenJTI tracks the last access token issued to this session so a
// logout can blacklist exactly that token.
type Session struct {
	ID               string
	Kind             SessionKind
	OwnerID          string
	VenueID          string
	RefreshHash      string
	RefreshExpiresAt time.Time
	Device           Device
	IP               string
	UserAgent        string
	LastActivity     time.Time
	Active           bool
	AccessTokenJTI   string
	CreatedAt        time.Time
}
