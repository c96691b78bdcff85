package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/ids"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/revocation"
)

// revocationSkew pads blacklist TTLs so an entry never lapses before the
// token it targets, even with clock drift between instances.
const revocationSkew = time.Minute

// Service implements the account and operator flows on top of the store,
// token issuer and revocation registry. All dependencies are injected at
// construction; there is no lazily-initialised global state.
type Service struct {
	store      Store
	verifier   CredentialVerifier
	tokens     *TokenIssuer
	registry   revocation.Registry
	recorder   *audit.Recorder
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// NewService constructs the auth service.
func NewService(store Store, verifier CredentialVerifier, tokens *TokenIssuer, registry revocation.Registry, recorder *audit.Recorder, opts ...ServiceOption) *Service {
	svc := &Service{
		store:      store,
		verifier:   verifier,
		tokens:     tokens,
		registry:   registry,
		recorder:   recorder,
		refreshTTL: 14 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// DeviceInfo describes the client performing a login.
type DeviceInfo struct {
	Name      string
	Type      string
	IP        string
	UserAgent string
}

// VenueSummary is the minimal tenant projection returned on login.
type VenueSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OperatorSummary is the operator projection returned on login and listing.
type OperatorSummary struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Role        Role       `json:"role"`
	Permissions Capability `json:"permissions"`
	Founder     bool       `json:"founder"`
	Active      bool       `json:"active"`
}

func summarize(op *Operator) OperatorSummary {
	return OperatorSummary{
		ID:          op.ID,
		Username:    op.Username,
		Role:        op.Role,
		Permissions: op.EffectivePermissions(),
		Founder:     op.Founder,
		Active:      op.Active,
	}
}

// GatewayLoginResult is the account-level login response.
type GatewayLoginResult struct {
	Token                 string
	ExpiresAt             time.Time
	RequiresOperatorSetup bool
	Venue                 VenueSummary
}

// OperatorLoginResult is the operator-level login response.
type OperatorLoginResult struct {
	Token            string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Operator         OperatorSummary
	MustChangeSecret bool
}

// TokenPair is the refresh response: a new access token plus the rotated
// refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegisterVenue creates a venue account. The venue stays in
// requires-operator-setup state until its founding operator exists.
func (s *Service) RegisterVenue(ctx context.Context, name, email, secret string) (*Venue, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}
	if len(secret) < 8 {
		return nil, fmt.Errorf("%w: secret must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}
	venue := &Venue{
		ID:                    ids.New(),
		Name:                  name,
		Email:                 email,
		SecretHash:            hash,
		Active:                true,
		RequiresOperatorSetup: true,
	}
	if err := s.store.Venues(ctx).Create(ctx, venue); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.Entry{
		VenueID:    venue.ID,
		Action:     "venue.registered",
		EntityType: "venue",
		EntityID:   venue.ID,
		NewValue:   audit.Snapshot(VenueSummary{ID: venue.ID, Name: venue.Name}),
	}, DeviceInfo{})
	return venue, nil
}

// GatewayLogin authenticates a venue account and mints a gateway token.
func (s *Service) GatewayLogin(ctx context.Context, identifier, secret string, device DeviceInfo) (*GatewayLoginResult, error) {
	identity, err := s.verifier.VerifyAccount(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}
	venue, err := s.store.Venues(ctx).Find(ctx, identity.VenueID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	session, _, err := s.createSession(ctx, SessionGateway, venue.ID, venue.ID, device)
	if err != nil {
		return nil, err
	}
	token, claims, err := s.tokens.IssueGateway(venue.ID, venue.ID, session.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Sessions(ctx).BindAccessToken(ctx, session.ID, claims.ID); err != nil {
		return nil, err
	}

	s.audit(ctx, audit.Entry{
		VenueID:    venue.ID,
		Action:     "auth.gateway.login",
		EntityType: "session",
		EntityID:   session.ID,
	}, device)

	return &GatewayLoginResult{
		Token:                 token,
		ExpiresAt:             claims.ExpiresAt.Time,
		RequiresOperatorSetup: venue.RequiresOperatorSetup,
		Venue:                 VenueSummary{ID: venue.ID, Name: venue.Name},
	}, nil
}

// OperatorLogin authenticates a named operator inside a venue (venue
// identity comes from the caller's gateway token) and mints an operational
// token with the permission bitmask baked in.
func (s *Service) OperatorLogin(ctx context.Context, venueID, username, secret string, device DeviceInfo) (*OperatorLoginResult, error) {
	identity, err := s.verifier.VerifyOperator(ctx, venueID, username, secret)
	if err != nil {
		return nil, err
	}
	op, err := s.store.Operators(ctx).Find(ctx, venueID, identity.SubjectID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	session, refreshToken, err := s.createSession(ctx, SessionOperational, op.ID, venueID, device)
	if err != nil {
		return nil, err
	}
	token, claims, err := s.tokens.IssueOperational(venueID, op.ID, op.Role, op.EffectivePermissions(), session.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Sessions(ctx).BindAccessToken(ctx, session.ID, claims.ID); err != nil {
		return nil, err
	}

	s.audit(ctx, audit.Entry{
		VenueID:         venueID,
		ActorOperatorID: op.ID,
		Action:          "auth.operator.login",
		EntityType:      "session",
		EntityID:        session.ID,
	}, device)

	return &OperatorLoginResult{
		Token:            token,
		ExpiresAt:        claims.ExpiresAt.Time,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: session.RefreshExpiresAt,
		Operator:         summarize(op),
		MustChangeSecret: op.MustChangeSecret,
	}, nil
}

// Refresh rotates the refresh token and issues a fresh access token.
// Refresh tokens are single-use: a raced second rotation of the same token
// observes the swap and fails with ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sessions := s.store.Sessions(ctx)
	session, err := sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	now := s.now()
	if !session.Active || now.After(session.RefreshExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}
	oldHash := hashRefreshSecret(secret)
	if !constantTimeEqual(session.RefreshHash, oldHash) {
		// A mismatched secret for a live session looks like replay of a
		// rotated-out token; kill the session.
		_ = sessions.Deactivate(ctx, session.ID)
		return nil, ErrInvalidRefreshToken
	}

	newSecret, err := ids.NewSecret()
	if err != nil {
		return nil, err
	}
	newExpiry := now.Add(s.refreshTTL)
	if err := sessions.Rotate(ctx, session.ID, oldHash, hashRefreshSecret(newSecret), newExpiry); err != nil {
		return nil, err
	}

	var (
		token  string
		claims *Claims
	)
	switch session.Kind {
	case SessionOperational:
		op, err := s.store.Operators(ctx).Find(ctx, session.VenueID, session.OwnerID)
		if err != nil || !op.Active {
			return nil, ErrInvalidRefreshToken
		}
		token, claims, err = s.tokens.IssueOperational(session.VenueID, op.ID, op.Role, op.EffectivePermissions(), session.ID)
		if err != nil {
			return nil, err
		}
	default:
		venue, err := s.store.Venues(ctx).Find(ctx, session.OwnerID)
		if err != nil || !venue.Active {
			return nil, ErrInvalidRefreshToken
		}
		token, claims, err = s.tokens.IssueGateway(venue.ID, venue.ID, session.ID)
		if err != nil {
			return nil, err
		}
	}
	if err := sessions.BindAccessToken(ctx, session.ID, claims.ID); err != nil {
		return nil, err
	}
	_ = sessions.Touch(ctx, session.ID, now)

	return &TokenPair{
		AccessToken:      token,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshToken:     session.ID + "." + newSecret,
		RefreshExpiresAt: newExpiry,
	}, nil
}

// Logout deactivates the caller's session and blacklists the access token
// it presented, so the token stops working within one request cycle.
func (s *Service) Logout(ctx context.Context, p Principal, device DeviceInfo) error {
	if p.SessionID != "" {
		if err := s.store.Sessions(ctx).Deactivate(ctx, p.SessionID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if err := s.blacklist(ctx, p.JTI, "logout", p.RemainingTokenTTL(s.now())); err != nil {
		return err
	}
	s.audit(ctx, audit.Entry{
		VenueID:         p.VenueID,
		ActorOperatorID: p.OperatorID,
		Action:          "auth.logout",
		EntityType:      "session",
		EntityID:        p.SessionID,
	}, device)
	return nil
}

// LogoutAll deactivates every session of the caller and blacklists each
// bound access token.
func (s *Service) LogoutAll(ctx context.Context, p Principal, device DeviceInfo) error {
	kind := SessionGateway
	owner := p.AccountID
	if p.TokenType == TokenTypeOperational {
		kind = SessionOperational
		owner = p.OperatorID
	}
	jtis, err := s.store.Sessions(ctx).DeactivateAll(ctx, kind, owner)
	if err != nil {
		return err
	}
	maxTTL := s.tokens.MaxTTL(p.TokenType)
	for _, jti := range jtis {
		if err := s.blacklist(ctx, jti, "logout_all", maxTTL); err != nil {
			return err
		}
	}
	s.audit(ctx, audit.Entry{
		VenueID:         p.VenueID,
		ActorOperatorID: p.OperatorID,
		Action:          "auth.logout_all",
		EntityType:      "session",
		EntityID:        owner,
		Metadata:        map[string]string{"sessions": fmt.Sprintf("%d", len(jtis))},
	}, device)
	return nil
}

// CreateOperatorParams carries operator creation input. Permissions, when
// non-zero, overrides the role default mask.
type CreateOperatorParams struct {
	Username    string
	Secret      string
	Role        Role
	Permissions Capability
}

// CreateOperator creates a sub-operator. A gateway-tier caller may only
// create the founding operator while the venue still requires setup; after
// that, creation demands an operational token with CapCreateOperators.
func (s *Service) CreateOperator(ctx context.Context, actor Principal, venueID string, params CreateOperatorParams, device DeviceInfo) (*Operator, error) {
	venue, err := s.store.Venues(ctx).Find(ctx, venueID)
	if err != nil {
		return nil, err
	}

	founding := false
	switch actor.TokenType {
	case TokenTypeGateway:
		if !venue.RequiresOperatorSetup {
			return nil, ErrWrongTokenType
		}
		founding = true
	case TokenTypeOperational:
		if !actor.HasCapability(CapCreateOperators) {
			return nil, ErrInsufficientPermissions
		}
	default:
		return nil, ErrWrongTokenType
	}

	username := strings.TrimSpace(strings.ToLower(params.Username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(params.Secret) < 8 {
		return nil, fmt.Errorf("%w: secret must be at least 8 characters", ErrInvalidInput)
	}

	role := params.Role
	mask := params.Permissions &^ founderOnly
	if founding {
		role = RoleFounder
		mask = CapAll
	} else {
		if role == RoleFounder {
			return nil, ErrFounderProtected
		}
		if _, err := ParseRole(string(role)); err != nil {
			return nil, err
		}
	}

	hash, err := HashSecret(params.Secret)
	if err != nil {
		return nil, err
	}
	op := &Operator{
		ID:          ids.New(),
		VenueID:     venueID,
		Username:    username,
		SecretHash:  hash,
		Role:        role,
		Permissions: mask,
		Active:      true,
		Founder:     founding,
		CreatedBy:   actor.OperatorID,
	}
	if err := s.store.Operators(ctx).Create(ctx, op); err != nil {
		return nil, err
	}
	if founding {
		if err := s.store.Venues(ctx).SetOperatorSetupDone(ctx, venueID); err != nil {
			return nil, err
		}
	}

	s.audit(ctx, audit.Entry{
		VenueID:         venueID,
		ActorOperatorID: actor.OperatorID,
		Action:          "operator.created",
		EntityType:      "operator",
		EntityID:        op.ID,
		NewValue:        audit.Snapshot(summarize(op)),
	}, device)
	return op, nil
}

// UpdateOperatorParams carries a partial operator update. Nil fields are
// left untouched.
type UpdateOperatorParams struct {
	Role        *Role
	Permissions *Capability
	Active      *bool
}

// UpdateOperator applies a partial update under the self-mutation and
// founder guards. Reducing an operator's permissions also blacklists the
// access tokens currently bound to its sessions, so the reduction is
// effective within one request cycle rather than at next token reissue.
func (s *Service) UpdateOperator(ctx context.Context, actor Principal, venueID, operatorID string, params UpdateOperatorParams, device DeviceInfo) (*Operator, error) {
	operators := s.store.Operators(ctx)
	op, err := operators.Find(ctx, venueID, operatorID)
	if err != nil {
		return nil, err
	}

	if op.Founder {
		return nil, ErrFounderProtected
	}
	if actor.OperatorID == op.ID && (params.Role != nil || params.Permissions != nil || params.Active != nil) {
		return nil, ErrSelfMutation
	}

	oldSummary := summarize(op)
	oldMask := op.EffectivePermissions()

	if params.Role != nil {
		role, err := ParseRole(string(*params.Role))
		if err != nil {
			return nil, err
		}
		if role == RoleFounder {
			return nil, ErrFounderProtected
		}
		op.Role = role
	}
	if params.Permissions != nil {
		op.Permissions = *params.Permissions &^ founderOnly
	}
	if params.Active != nil {
		op.Active = *params.Active
	}

	if err := operators.Update(ctx, op); err != nil {
		return nil, err
	}

	newMask := op.EffectivePermissions()
	lostBits := oldMask &^ newMask
	if lostBits != 0 || !op.Active {
		if err := s.revokeOperatorTokens(ctx, op.ID, "permissions_changed"); err != nil {
			return nil, err
		}
	}

	s.audit(ctx, audit.Entry{
		VenueID:         venueID,
		ActorOperatorID: actor.OperatorID,
		Action:          "operator.updated",
		EntityType:      "operator",
		EntityID:        op.ID,
		OldValue:        audit.Snapshot(oldSummary),
		NewValue:        audit.Snapshot(summarize(op)),
	}, device)
	return op, nil
}

// DeleteOperator removes a sub-operator, terminates its sessions and
// blacklists its live tokens.
func (s *Service) DeleteOperator(ctx context.Context, actor Principal, venueID, operatorID string, device DeviceInfo) error {
	operators := s.store.Operators(ctx)
	op, err := operators.Find(ctx, venueID, operatorID)
	if err != nil {
		return err
	}
	if actor.OperatorID == op.ID {
		return ErrSelfMutation
	}
	if op.Founder {
		return ErrFounderProtected
	}
	if err := operators.Delete(ctx, venueID, op.ID); err != nil {
		return err
	}
	if err := s.revokeOperatorTokens(ctx, op.ID, "operator_deleted"); err != nil {
		return err
	}
	s.audit(ctx, audit.Entry{
		VenueID:         venueID,
		ActorOperatorID: actor.OperatorID,
		Action:          "operator.deleted",
		EntityType:      "operator",
		EntityID:        op.ID,
		OldValue:        audit.Snapshot(summarize(op)),
	}, device)
	return nil
}

// ResetOperatorSecret sets a new secret for the target operator, flags it
// must-change, terminates the target's sessions and blacklists every
// access token currently in play for them. When newSecret is empty a
// random temporary secret is generated and returned.
func (s *Service) ResetOperatorSecret(ctx context.Context, actor Principal, venueID, operatorID, newSecret string, device DeviceInfo) (string, error) {
	operators := s.store.Operators(ctx)
	op, err := operators.Find(ctx, venueID, operatorID)
	if err != nil {
		return "", err
	}
	if op.Founder && actor.OperatorID != op.ID && !actorIsFounder(actor) {
		return "", ErrFounderProtected
	}
	if newSecret == "" {
		newSecret, err = ids.NewSecret()
		if err != nil {
			return "", err
		}
	} else if len(newSecret) < 8 {
		return "", fmt.Errorf("%w: secret must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashSecret(newSecret)
	if err != nil {
		return "", err
	}
	if err := operators.UpdateSecret(ctx, venueID, op.ID, hash, true); err != nil {
		return "", err
	}
	if err := s.revokeOperatorTokens(ctx, op.ID, "secret_reset"); err != nil {
		return "", err
	}
	s.audit(ctx, audit.Entry{
		VenueID:         venueID,
		ActorOperatorID: actor.OperatorID,
		Action:          "operator.secret_reset",
		EntityType:      "operator",
		EntityID:        op.ID,
	}, device)
	return newSecret, nil
}

// ChangeOwnSecret lets an operator rotate its own secret after proving the
// current one.
func (s *Service) ChangeOwnSecret(ctx context.Context, actor Principal, currentSecret, newSecret string, device DeviceInfo) error {
	if actor.TokenType != TokenTypeOperational {
		return ErrWrongTokenType
	}
	operators := s.store.Operators(ctx)
	op, err := operators.Find(ctx, actor.VenueID, actor.OperatorID)
	if err != nil {
		return err
	}
	if err := VerifySecret(op.SecretHash, currentSecret); err != nil {
		return ErrInvalidCredentials
	}
	if len(newSecret) < 8 {
		return fmt.Errorf("%w: secret must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashSecret(newSecret)
	if err != nil {
		return err
	}
	if err := operators.UpdateSecret(ctx, actor.VenueID, op.ID, hash, false); err != nil {
		return err
	}
	s.audit(ctx, audit.Entry{
		VenueID:         actor.VenueID,
		ActorOperatorID: op.ID,
		Action:          "operator.secret_changed",
		EntityType:      "operator",
		EntityID:        op.ID,
	}, device)
	return nil
}

// ListOperators returns the venue's operators.
func (s *Service) ListOperators(ctx context.Context, venueID string) ([]OperatorSummary, error) {
	ops, err := s.store.Operators(ctx).ListByVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	out := make([]OperatorSummary, 0, len(ops))
	for i := range ops {
		out = append(out, summarize(&ops[i]))
	}
	return out, nil
}

// QueryAudit returns audit entries for the venue.
func (s *Service) QueryAudit(ctx context.Context, venueID string, filter audit.Filter) ([]audit.Entry, error) {
	return s.recorder.Query(ctx, venueID, filter)
}

// CleanupSessions garbage-collects expired inactive sessions.
func (s *Service) CleanupSessions(ctx context.Context) (int64, error) {
	return s.store.Sessions(ctx).DeleteExpired(ctx, s.now())
}

// --- internals ---

const sessionCreateRetries = 3

func (s *Service) createSession(ctx context.Context, kind SessionKind, ownerID, venueID string, device DeviceInfo) (*Session, string, error) {
	sessions := s.store.Sessions(ctx)
	now := s.now()

	var lastErr error
	for i := 0; i < sessionCreateRetries; i++ {
		secret, err := ids.NewSecret()
		if err != nil {
			return nil, "", err
		}
		session := &Session{
			ID:               ids.New(),
			Kind:             kind,
			OwnerID:          ownerID,
			VenueID:          venueID,
			RefreshHash:      hashRefreshSecret(secret),
			RefreshExpiresAt: now.Add(s.refreshTTL),
			Device:           Device{Name: device.Name, Type: device.Type},
			IP:               device.IP,
			UserAgent:        device.UserAgent,
			LastActivity:     now,
			Active:           true,
		}
		if err := sessions.Create(ctx, session); err != nil {
			// Refresh hashes are globally unique; a collision retries with
			// a fresh secret instead of overwriting another session.
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return nil, "", err
		}
		return session, session.ID + "." + secret, nil
	}
	return nil, "", fmt.Errorf("auth: session create retries exhausted: %w", lastErr)
}

// revokeOperatorTokens deactivates the operator's sessions and blacklists
// every access token bound to them.
func (s *Service) revokeOperatorTokens(ctx context.Context, operatorID, reason string) error {
	jtis, err := s.store.Sessions(ctx).DeactivateAll(ctx, SessionOperational, operatorID)
	if err != nil {
		return err
	}
	maxTTL := s.tokens.MaxTTL(TokenTypeOperational)
	for _, jti := range jtis {
		if err := s.blacklist(ctx, jti, reason, maxTTL); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) blacklist(ctx context.Context, jti, reason string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return s.registry.Blacklist(ctx, jti, reason, ttl+revocationSkew)
}

// audit records an entry. Append failure never fails the calling
// operation; the recorder logs it and the entry is dropped.
func (s *Service) audit(ctx context.Context, entry audit.Entry, device DeviceInfo) {
	entry.IP = device.IP
	entry.UserAgent = device.UserAgent
	_ = s.recorder.Record(ctx, entry)
}

func actorIsFounder(p Principal) bool {
	return p.Role == RoleFounder
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func hashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
