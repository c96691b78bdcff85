package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type claim values. Gateway tokens prove ownership of a venue
// account; operational tokens are scoped to one operator and carry the
// permission bitmask.
const (
	TokenTypeGateway     = "gateway"
	TokenTypeOperational = "operational"
)

// Claims is the typed claim set carried by both token tiers.
type Claims struct {
	TokenType   string     `json:"token_type"`
	VenueID     string     `json:"venue_id,omitempty"`
	OperatorID  string     `json:"operator_id,omitempty"`
	Role        Role       `json:"role,omitempty"`
	Permissions Capability `json:"permissions,omitempty"`
	SessionID   string     `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies signed tokens for both trust tiers.
type TokenIssuer struct {
	secret         []byte
	issuer         string
	gatewayTTL     time.Duration
	operationalTTL time.Duration
	now            func() time.Time
}

// IssuerOption configures TokenIssuer behavior.
type IssuerOption func(*TokenIssuer)

// WithIssuerClock overrides the time source, useful for tests.
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(t *TokenIssuer) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer signing with HS256.
func NewTokenIssuer(secret, issuer string, gatewayTTL, operationalTTL time.Duration, opts ...IssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if gatewayTTL <= 0 || operationalTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	ti := &TokenIssuer{
		secret:         []byte(secret),
		issuer:         issuer,
		gatewayTTL:     gatewayTTL,
		operationalTTL: operationalTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, nil
}

// GatewayTTL exposes the configured gateway token lifetime.
func (t *TokenIssuer) GatewayTTL() time.Duration { return t.gatewayTTL }

// OperationalTTL exposes the configured operational token lifetime.
func (t *TokenIssuer) OperationalTTL() time.Duration { return t.operationalTTL }

// IssueGateway mints an account-level token. The returned claims carry the
// fresh jti so the caller can bind it to the session record.
func (t *TokenIssuer) IssueGateway(accountID, venueID, sessionID string) (string, *Claims, error) {
	if accountID == "" {
		return "", nil, errors.New("auth: account id is required")
	}
	claims := &Claims{
		TokenType: TokenTypeGateway,
		VenueID:   venueID,
		SessionID: sessionID,
	}
	return t.sign(accountID, claims, t.gatewayTTL)
}

// IssueOperational mints a token scoped to one operator inside one venue.
// The permission bitmask is a point-in-time snapshot; permission changes
// take effect on the next issuance.
func (t *TokenIssuer) IssueOperational(venueID, operatorID string, role Role, mask Capability, sessionID string) (string, *Claims, error) {
	if venueID == "" || operatorID == "" {
		return "", nil, errors.New("auth: venue and operator ids are required")
	}
	claims := &Claims{
		TokenType:   TokenTypeOperational,
		VenueID:     venueID,
		OperatorID:  operatorID,
		Role:        role,
		Permissions: mask,
		SessionID:   sessionID,
	}
	return t.sign(operatorID, claims, t.operationalTTL)
}

func (t *TokenIssuer) sign(subject string, claims *Claims, ttl time.Duration) (string, *Claims, error) {
	now := t.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAndValidate verifies the token signature and required claims.
// Expired tokens surface as ErrExpiredToken, everything else as
// ErrInvalidToken.
func (t *TokenIssuer) ParseAndValidate(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return t.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := t.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *TokenIssuer) validateClaims(claims *Claims) error {
	if t.issuer != "" && claims.Issuer != t.issuer {
		return ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrInvalidToken
	}
	now := t.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return ErrInvalidToken
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrInvalidToken
	}
	switch claims.TokenType {
	case TokenTypeGateway:
		if claims.OperatorID != "" || claims.Permissions != 0 {
			return ErrInvalidToken
		}
	case TokenTypeOperational:
		if claims.VenueID == "" || claims.OperatorID == "" {
			return ErrInvalidToken
		}
	default:
		return ErrInvalidToken
	}
	return nil
}

// MaxTTL returns the configured maximum lifetime for a token type, used as
// the blacklist TTL when the exact expiry is unknown.
func (t *TokenIssuer) MaxTTL(tokenType string) time.Duration {
	if tokenType == TokenTypeGateway {
		return t.gatewayTTL
	}
	return t.operationalTTL
}
