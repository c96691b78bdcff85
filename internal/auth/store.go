package auth

import (
	"context"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
)

// Store describes persistence operations required by the auth core.
type Store interface {
	Venues(ctx context.Context) VenueStore
	Operators(ctx context.Context) OperatorStore
	Sessions(ctx context.Context) SessionStore
	Audit(ctx context.Context) audit.Store
}

// VenueStore manages tenant accounts.
type VenueStore interface {
	Create(ctx context.Context, v *Venue) error
	Find(ctx context.Context, id string) (*Venue, error)
	FindByEmail(ctx context.Context, email string) (*Venue, error)
	// SetOperatorSetupDone flips RequiresOperatorSetup to false once the
	// founding operator exists.
	SetOperatorSetupDone(ctx context.Context, id string) error
}

// OperatorStore manages sub-operators.
type OperatorStore interface {
	Create(ctx context.Context, o *Operator) error
	Find(ctx context.Context, venueID, id string) (*Operator, error)
	FindByUsername(ctx context.Context, venueID, username string) (*Operator, error)
	ListByVenue(ctx context.Context, venueID string) ([]Operator, error)
	Update(ctx context.Context, o *Operator) error
	UpdateSecret(ctx context.Context, venueID, id, secretHash string, mustChange bool) error
	Delete(ctx context.Context, venueID, id string) error

	// RecordFailedAttempt increments the failure counter with a single
	// atomic statement and starts the lockout window when the threshold is
	// reached. It returns the post-increment state.
	RecordFailedAttempt(ctx context.Context, venueID, id string, threshold int, lockFor time.Duration) (attempts int, lockedUntil time.Time, err error)
	// ResetFailedAttempts clears the counter and lockout after success.
	ResetFailedAttempts(ctx context.Context, venueID, id string) error
}

// SessionStore tracks authenticated devices. All writes are single atomic
// operations so a cancelled request can never leave a row half-updated.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)

	// Rotate swaps the refresh hash only when the current hash still
	// matches oldHash on an active session. A raced second rotation sees
	// zero rows updated and returns ErrInvalidRefreshToken.
	Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error

	// Touch updates last-activity; best effort, errors are ignored by
	// callers.
	Touch(ctx context.Context, id string, at time.Time) error

	// BindAccessToken records the jti most recently issued to the session.
	BindAccessToken(ctx context.Context, id, jti string) error

	Deactivate(ctx context.Context, id string) error
	// DeactivateAll marks every active session of the owner inactive and
	// returns the access-token jtis that were bound to them so the caller
	// can blacklist each.
	DeactivateAll(ctx context.Context, kind SessionKind, ownerID string) (jtis []string, err error)

	ActiveByOwner(ctx context.Context, kind SessionKind, ownerID string) ([]Session, error)
	// DeleteExpired garbage-collects inactive sessions whose refresh
	// expiry passed before the cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
