// Package revocation tracks token ids that must be rejected even though
// they are cryptographically valid and unexpired. Signature checking is
// stateless, so this registry is the only way to express "this specific
// token was logged out a minute ago".
package revocation

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the registry backend could not answer. Callers
// performing authorization checks must fail closed on it.
var ErrUnavailable = errors.New("revocation: registry unavailable")

// Registry is a keyed jti blacklist with per-entry TTL. Lookups must be
// bounded-time; this is consulted on every request carrying a token.
type Registry interface {
	// Blacklist records a jti. ttl must be at least the remaining lifetime
	// of the target token, otherwise the entry would lapse while the token
	// is still valid; callers unsure of the exact expiry pass the
	// token-type's maximum configured lifetime.
	Blacklist(ctx context.Context, jti, reason string, ttl time.Duration) error

	// IsBlacklisted reports whether the jti is revoked. A false result may
	// lag a concurrent Blacklist by a short propagation window, but a true
	// result is never spurious.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
