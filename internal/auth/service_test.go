package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/obs"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/revocation"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/store/memory"
)

type fixture struct {
	svc   *auth.Service
	gate  *auth.Gate
	store *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	registry := revocation.NewMemoryRegistry()
	issuer, err := auth.NewTokenIssuer("test-secret", "e7gezly", 12*time.Hour, 30*time.Minute)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	recorder := audit.NewRecorder(store.Audit(context.Background()), nil, obs.Logger())
	verifier := auth.NewStoreVerifier(store, 3, 15*time.Minute)
	svc := auth.NewService(store, verifier, issuer, registry, recorder)
	return &fixture{svc: svc, gate: auth.NewGate(issuer, registry), store: store}
}

// setupVenue registers a venue, performs the gateway login and returns the
// venue id plus the gateway principal.
func (f *fixture) setupVenue(t *testing.T) (string, auth.Principal) {
	t.Helper()
	ctx := context.Background()
	venue, err := f.svc.RegisterVenue(ctx, "Padel Club", "club@example.com", "venue-secret")
	if err != nil {
		t.Fatalf("register venue: %v", err)
	}
	res, err := f.svc.GatewayLogin(ctx, "club@example.com", "venue-secret", auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("gateway login: %v", err)
	}
	if !res.RequiresOperatorSetup {
		t.Fatalf("fresh venue should require operator setup")
	}
	p, err := f.gate.Authorize(ctx, res.Token, auth.Requirement{Tier: auth.TierGateway})
	if err != nil {
		t.Fatalf("authorize gateway token: %v", err)
	}
	return venue.ID, p
}

// setupFounder creates the founding operator and logs it in.
func (f *fixture) setupFounder(t *testing.T) (string, auth.Principal, *auth.OperatorLoginResult) {
	t.Helper()
	ctx := context.Background()
	venueID, gatewayPrincipal := f.setupVenue(t)
	op, err := f.svc.CreateOperator(ctx, gatewayPrincipal, venueID, auth.CreateOperatorParams{
		Username: "owner",
		Secret:   "owner-secret",
	}, auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("create founder: %v", err)
	}
	if !op.Founder || op.Role != auth.RoleFounder {
		t.Fatalf("first operator should be founder: %+v", op)
	}
	res, err := f.svc.OperatorLogin(ctx, venueID, "owner", "owner-secret", auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("founder login: %v", err)
	}
	p, err := f.gate.Authorize(ctx, res.Token, auth.Requirement{Tier: auth.TierOperational})
	if err != nil {
		t.Fatalf("authorize founder token: %v", err)
	}
	return venueID, p, res
}

func TestFoundingOperatorFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venueID, gatewayPrincipal := f.setupVenue(t)

	op, err := f.svc.CreateOperator(ctx, gatewayPrincipal, venueID, auth.CreateOperatorParams{
		Username: "owner",
		Secret:   "owner-secret",
	}, auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("create founder: %v", err)
	}
	if op.EffectivePermissions() != auth.CapAll {
		t.Fatalf("founder mask %b, want full", op.EffectivePermissions())
	}

	// The setup window is closed: gateway-tier creation now fails.
	if _, err := f.svc.CreateOperator(ctx, gatewayPrincipal, venueID, auth.CreateOperatorParams{
		Username: "second",
		Secret:   "second-secret",
	}, auth.DeviceInfo{}); !errors.Is(err, auth.ErrWrongTokenType) {
		t.Fatalf("got %v, want ErrWrongTokenType", err)
	}

	venue, err := f.store.Venues(ctx).Find(ctx, venueID)
	if err != nil {
		t.Fatalf("find venue: %v", err)
	}
	if venue.RequiresOperatorSetup {
		t.Fatalf("setup flag should be cleared")
	}
}

func TestOperatorLockoutAfterThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venueID, _, _ := f.setupFounder(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.OperatorLogin(ctx, venueID, "owner", "wrong-secret", auth.DeviceInfo{})
		if err == nil {
			t.Fatalf("attempt %d should fail", i)
		}
	}
	// The window is active: even the correct secret is rejected.
	if _, err := f.svc.OperatorLogin(ctx, venueID, "owner", "owner-secret", auth.DeviceInfo{}); !errors.Is(err, auth.ErrAccountLocked) {
		t.Fatalf("got %v, want ErrAccountLocked", err)
	}
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, login := f.setupFounder(t)

	pair, err := f.svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if pair.RefreshToken == login.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	// Replaying the consumed token fails and kills the session, so the
	// rotated token dies with it.
	if _, err := f.svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, auth.ErrInvalidRefreshToken) {
		t.Fatalf("replay: got %v, want ErrInvalidRefreshToken", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidRefreshToken) {
		t.Fatalf("rotated token after replay: got %v, want ErrInvalidRefreshToken", err)
	}
}

func TestLogoutBlacklistsPresentedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, principal, login := f.setupFounder(t)

	if err := f.svc.Logout(ctx, principal, auth.DeviceInfo{}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.gate.Authorize(ctx, login.Token, auth.Requirement{Tier: auth.TierOperational}); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("got %v, want ErrTokenRevoked", err)
	}
	if _, err := f.svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, auth.ErrInvalidRefreshToken) {
		t.Fatalf("refresh after logout: got %v, want ErrInvalidRefreshToken", err)
	}
}

func TestSelfMutationForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venueID, founderPrincipal, _ := f.setupFounder(t)

	op, err := f.svc.CreateOperator(ctx, founderPrincipal, venueID, auth.CreateOperatorParams{
		Username: "cashier",
		Secret:   "cashier-secret",
		Role:     auth.RoleStaff,
	}, auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("create operator: %v", err)
	}
	login, err := f.svc.OperatorLogin(ctx, venueID, "cashier", "cashier-secret", auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("cashier login: %v", err)
	}
	selfPrincipal, err := f.gate.Authorize(ctx, login.Token, auth.Requirement{Tier: auth.TierOperational})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	role := auth.RoleAdmin
	if _, err := f.svc.UpdateOperator(ctx, selfPrincipal, venueID, op.ID, auth.UpdateOperatorParams{Role: &role}, auth.DeviceInfo{}); !errors.Is(err, auth.ErrSelfMutation) {
		t.Fatalf("self role change: got %v, want ErrSelfMutation", err)
	}
	if err := f.svc.DeleteOperator(ctx, selfPrincipal, venueID, op.ID, auth.DeviceInfo{}); !errors.Is(err, auth.ErrSelfMutation) {
		t.Fatalf("self delete: got %v, want ErrSelfMutation", err)
	}
}

func TestFounderProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venueID, founderPrincipal, _ := f.setupFounder(t)

	// Another operator with full admin rights still cannot touch the founder.
	_, err := f.svc.CreateOperator(ctx, founderPrincipal, venueID, auth.CreateOperatorParams{
		Username: "manager",
		Secret:   "manager-secret",
		Role:     auth.RoleAdmin,
	}, auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	login, err := f.svc.OperatorLogin(ctx, venueID, "manager", "manager-secret", auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("manager login: %v", err)
	}
	adminPrincipal, err := f.gate.Authorize(ctx, login.Token, auth.Requirement{Tier: auth.TierOperational})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	founderID := founderPrincipal.OperatorID
	active := false
	if _, err := f.svc.UpdateOperator(ctx, adminPrincipal, venueID, founderID, auth.UpdateOperatorParams{Active: &active}, auth.DeviceInfo{}); !errors.Is(err, auth.ErrFounderProtected) {
		t.Fatalf("deactivate founder: got %v, want ErrFounderProtected", err)
	}
	if err := f.svc.DeleteOperator(ctx, adminPrincipal, venueID, founderID, auth.DeviceInfo{}); !errors.Is(err, auth.ErrFounderProtected) {
		t.Fatalf("delete founder: got %v, want ErrFounderProtected", err)
	}
	role := auth.RoleFounder
	if _, err := f.svc.CreateOperator(ctx, adminPrincipal, venueID, auth.CreateOperatorParams{
		Username: "usurper",
		Secret:   "usurper-secret",
		Role:     role,
	}, auth.DeviceInfo{}); !errors.Is(err, auth.ErrFounderProtected) {
		t.Fatalf("create second founder: got %v, want ErrFounderProtected", err)
	}
}

func TestResetSecretRevokesLiveTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venueID, founderPrincipal, _ := f.setupFounder(t)

	op, err := f.svc.CreateOperator(ctx, founderPrincipal, venueID, auth.CreateOperatorParams{
		Username: "cashier",
		Secret:   "cashier-secret",
		Role:     auth.RoleStaff,
	}, auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("create operator: %v", err)
	}
	login, err := f.svc.OperatorLogin(ctx, venueID, "cashier", "cashier-secret", auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("cashier login: %v", err)
	}

	temp, err := f.svc.ResetOperatorSecret(ctx, founderPrincipal, venueID, op.ID, "", auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("reset secret: %v", err)
	}
	if temp == "" {
		t.Fatalf("expected generated temporary secret")
	}

	// The live token dies within one request cycle.
	if _, err := f.gate.Authorize(ctx, login.Token, auth.Requirement{Tier: auth.TierOperational}); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("got %v, want ErrTokenRevoked", err)
	}
	// The old secret is gone, the temporary one works and flags must-change.
	if _, err := f.svc.OperatorLogin(ctx, venueID, "cashier", "cashier-secret", auth.DeviceInfo{}); err == nil {
		t.Fatalf("old secret should be rejected")
	}
	relogin, err := f.svc.OperatorLogin(ctx, venueID, "cashier", temp, auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("login with temporary secret: %v", err)
	}
	if !relogin.MustChangeSecret {
		t.Fatalf("must-change flag should be set")
	}
}

func TestPermissionReductionRevokesTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venueID, founderPrincipal, _ := f.setupFounder(t)

	op, err := f.svc.CreateOperator(ctx, founderPrincipal, venueID, auth.CreateOperatorParams{
		Username: "manager",
		Secret:   "manager-secret",
		Role:     auth.RoleOperator,
	}, auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("create operator: %v", err)
	}
	login, err := f.svc.OperatorLogin(ctx, venueID, "manager", "manager-secret", auth.DeviceInfo{})
	if err != nil {
		t.Fatalf("manager login: %v", err)
	}

	reduced := auth.CapViewVenue
	if _, err := f.svc.UpdateOperator(ctx, founderPrincipal, venueID, op.ID, auth.UpdateOperatorParams{Permissions: &reduced}, auth.DeviceInfo{}); err != nil {
		t.Fatalf("reduce permissions: %v", err)
	}
	if _, err := f.gate.Authorize(ctx, login.Token, auth.Requirement{Tier: auth.TierOperational}); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("got %v, want ErrTokenRevoked", err)
	}
}

func TestLogoutAllKillsEverySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venueID, _, first := f.setupFounder(t)

	second, err := f.svc.OperatorLogin(ctx, venueID, "owner", "owner-secret", auth.DeviceInfo{Name: "tablet"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	principal, err := f.gate.Authorize(ctx, second.Token, auth.Requirement{Tier: auth.TierOperational})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	if err := f.svc.LogoutAll(ctx, principal, auth.DeviceInfo{}); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, token := range []string{first.Token, second.Token} {
		if _, err := f.gate.Authorize(ctx, token, auth.Requirement{Tier: auth.TierOperational}); !errors.Is(err, auth.ErrTokenRevoked) {
			t.Fatalf("got %v, want ErrTokenRevoked", err)
		}
	}
	for _, refresh := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := f.svc.Refresh(ctx, refresh); !errors.Is(err, auth.ErrInvalidRefreshToken) {
			t.Fatalf("refresh after logout-all: got %v, want ErrInvalidRefreshToken", err)
		}
	}
}

func TestAuditTrailRecordsOperatorLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venueID, founderPrincipal, _ := f.setupFounder(t)

	op, err := f.svc.CreateOperator(ctx, founderPrincipal, venueID, auth.CreateOperatorParams{
		Username: "cashier",
		Secret:   "cashier-secret",
		Role:     auth.RoleStaff,
	}, auth.DeviceInfo{IP: "10.0.0.5"})
	if err != nil {
		t.Fatalf("create operator: %v", err)
	}
	if err := f.svc.DeleteOperator(ctx, founderPrincipal, venueID, op.ID, auth.DeviceInfo{}); err != nil {
		t.Fatalf("delete operator: %v", err)
	}

	entries, err := f.svc.QueryAudit(ctx, venueID, audit.Filter{Action: "operator.created"})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d operator.created entries, want 2", len(entries))
	}
	deleted, err := f.svc.QueryAudit(ctx, venueID, audit.Filter{Action: "operator.deleted"})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(deleted) != 1 || deleted[0].EntityID != op.ID {
		t.Fatalf("unexpected delete trail: %+v", deleted)
	}
}
