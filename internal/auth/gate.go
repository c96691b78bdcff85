package auth

import (
	"context"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/obs"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/revocation"
)

// Tier is the trust level an endpoint demands.
type Tier int

const (
	// TierAny accepts either token type.
	TierAny Tier = iota
	// TierGateway requires an account-level token.
	TierGateway
	// TierOperational requires an operator-scoped token.
	TierOperational
)

// Requirement declares what an endpoint needs from the caller. Zero values
// relax the corresponding check.
type Requirement struct {
	Tier       Tier
	Capability Capability
	VenueID    string
}

// Principal is the authenticated caller, produced once per request by the
// gate and passed explicitly down the call chain.
type Principal struct {
	TokenType   string
	AccountID   string
	VenueID     string
	OperatorID  string
	Role        Role
	Permissions Capability
	JTI         string
	SessionID   string
	ExpiresAt   time.Time
}

// HasCapability reports whether the principal carries every required bit.
func (p Principal) HasCapability(required Capability) bool {
	return HasCapability(p.Permissions, required)
}

// RemainingTokenTTL is how long the presented token stays valid, used to
// size blacklist entries on logout.
func (p Principal) RemainingTokenTTL(now time.Time) time.Duration {
	return p.ExpiresAt.Sub(now)
}

// Gate is the request-time authorization decision function. Signature
// checking is stateless so gates run fully in parallel; the revocation
// registry is the only shared lookup and it fails closed.
type Gate struct {
	tokens   *TokenIssuer
	registry revocation.Registry
	timeout  time.Duration
}

// NewGate constructs a Gate.
func NewGate(tokens *TokenIssuer, registry revocation.Registry) *Gate {
	return &Gate{
		tokens:   tokens,
		registry: registry,
		timeout:  2 * time.Second,
	}
}

// Authorize validates the raw token against the requirement. Checks run in
// a fixed order: signature and expiry, token type, revocation, capability
// bitmask, venue scope. The first failure wins and is returned as a
// taxonomy error.
func (g *Gate) Authorize(ctx context.Context, rawToken string, req Requirement) (Principal, error) {
	claims, err := g.tokens.ParseAndValidate(rawToken)
	if err != nil {
		obs.ObserveGateDenial(denialReason(err))
		return Principal{}, err
	}

	switch req.Tier {
	case TierGateway:
		if claims.TokenType != TokenTypeGateway {
			obs.ObserveGateDenial("wrong_token_type")
			return Principal{}, ErrWrongTokenType
		}
	case TierOperational:
		if claims.TokenType != TokenTypeOperational {
			obs.ObserveGateDenial("wrong_token_type")
			return Principal{}, ErrWrongTokenType
		}
	}

	// Both tiers carry a jti and both can be revoked; a leaked gateway
	// token has the larger exposure window.
	revoked, err := g.checkRevoked(ctx, claims.ID)
	if err != nil {
		obs.ObserveRevocationError()
		return Principal{}, ErrRevocationCheck
	}
	if revoked {
		obs.ObserveBlacklistHit()
		obs.ObserveGateDenial("token_revoked")
		return Principal{}, ErrTokenRevoked
	}

	principal := principalFromClaims(claims)

	if req.Capability != 0 {
		if claims.TokenType != TokenTypeOperational {
			obs.ObserveGateDenial("wrong_token_type")
			return Principal{}, ErrWrongTokenType
		}
		if !principal.HasCapability(req.Capability) {
			obs.ObserveGateDenial("insufficient_permissions")
			return Principal{}, ErrInsufficientPermissions
		}
	}

	// Venue scope is independent of permission bits: a valid operator
	// token for venue A never acts on venue B's resources.
	if req.VenueID != "" && principal.VenueID != req.VenueID {
		obs.ObserveGateDenial("venue_mismatch")
		return Principal{}, ErrTenantMismatch
	}

	return principal, nil
}

func (g *Gate) checkRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.registry.IsBlacklisted(ctx, jti)
}

func principalFromClaims(claims *Claims) Principal {
	p := Principal{
		TokenType:   claims.TokenType,
		VenueID:     claims.VenueID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		JTI:         claims.ID,
		SessionID:   claims.SessionID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.TokenType == TokenTypeOperational {
		p.OperatorID = claims.Subject
	} else {
		p.AccountID = claims.Subject
	}
	return p
}

func denialReason(err error) string {
	switch err {
	case ErrExpiredToken:
		return "expired_token"
	default:
		return "invalid_token"
	}
}
