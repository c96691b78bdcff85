package auth

import (
	"context"
	"strings"
	"time"
)

// Identity is the result of a successful credential check.
type Identity struct {
	SubjectID string
	VenueID   string
}

// CredentialVerifier is the boundary to the identity store. The core only
// reacts to lockout state surfaced here; incrementing and resetting the
// failure counters is the verifier's responsibility.
type CredentialVerifier interface {
	// VerifyAccount checks venue-account credentials for the gateway tier.
	VerifyAccount(ctx context.Context, identifier, secret string) (Identity, error)
	// VerifyOperator checks a named operator's credentials inside one
	// venue. Returns ErrAccountLocked during a lockout window regardless
	// of whether the secret is correct.
	VerifyOperator(ctx context.Context, venueID, username, secret string) (Identity, error)
}

// StoreVerifier verifies credentials against the auth store with bcrypt
// hashes, maintaining the per-operator failure counter and lockout window.
type StoreVerifier struct {
	store     Store
	threshold int
	lockFor   time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// NewStoreVerifier constructs the default verifier. threshold failed
// attempts inside the window lock the operator for lockFor.
func NewStoreVerifier(store Store, threshold int, lockFor time.Duration) *StoreVerifier {
	if threshold <= 0 {
		threshold = 3
	}
	if lockFor <= 0 {
		lockFor = 15 * time.Minute
	}
	return &StoreVerifier{
		store:     store,
		threshold: threshold,
		lockFor:   lockFor,
		timeout:   5 * time.Second,
		now:       time.Now,
	}
}

// VerifyAccount checks venue-account credentials.
func (v *StoreVerifier) VerifyAccount(ctx context.Context, identifier, secret string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" || secret == "" {
		return Identity{}, ErrInvalidCredentials
	}
	venue, err := v.store.Venues(ctx).FindByEmail(ctx, identifier)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	if !venue.Active {
		return Identity{}, ErrInvalidCredentials
	}
	if err := VerifySecret(venue.SecretHash, secret); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{SubjectID: venue.ID, VenueID: venue.ID}, nil
}

// VerifyOperator checks operator credentials, enforcing the lockout window
// and counting failures atomically.
func (v *StoreVerifier) VerifyOperator(ctx context.Context, venueID, username, secret string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	username = strings.TrimSpace(strings.ToLower(username))
	if venueID == "" || username == "" || secret == "" {
		return Identity{}, ErrInvalidCredentials
	}
	operators := v.store.Operators(ctx)
	op, err := operators.FindByUsername(ctx, venueID, username)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	if !op.Active {
		return Identity{}, ErrInvalidCredentials
	}
	// Lockout wins over a correct secret: attempts during the window are
	// denied without touching bcrypt.
	if op.Locked(v.now()) {
		return Identity{}, ErrAccountLocked
	}
	if err := VerifySecret(op.SecretHash, secret); err != nil {
		attempts, _, recErr := operators.RecordFailedAttempt(ctx, venueID, op.ID, v.threshold, v.lockFor)
		if recErr == nil && attempts >= v.threshold {
			return Identity{}, ErrAccountLocked
		}
		return Identity{}, ErrInvalidCredentials
	}
	if op.FailedAttempts > 0 {
		_ = operators.ResetFailedAttempts(ctx, venueID, op.ID)
	}
	return Identity{SubjectID: op.ID, VenueID: venueID}, nil
}
