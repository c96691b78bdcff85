package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/revocation"
)

type downRegistry struct{}

func (downRegistry) Blacklist(context.Context, string, string, time.Duration) error {
	return revocation.ErrUnavailable
}

func (downRegistry) IsBlacklisted(context.Context, string) (bool, error) {
	return false, revocation.ErrUnavailable
}

func gateFixture(t *testing.T) (*Gate, *TokenIssuer, *revocation.MemoryRegistry) {
	t.Helper()
	issuer := testIssuer(t, time.Now)
	registry := revocation.NewMemoryRegistry()
	return NewGate(issuer, registry), issuer, registry
}

func TestGateAcceptsValidOperationalToken(t *testing.T) {
	gate, issuer, _ := gateFixture(t)
	token, _, err := issuer.IssueOperational("venue-1", "op-1", RoleOperator, CapViewBookings, "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	p, err := gate.Authorize(context.Background(), token, Requirement{
		Tier:       TierOperational,
		Capability: CapViewBookings,
		VenueID:    "venue-1",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if p.OperatorID != "op-1" || p.VenueID != "venue-1" || p.SessionID != "sess-1" {
		t.Fatalf("principal mismatch: %+v", p)
	}
}

func TestGateRejectsGatewayTokenOnOperationalEndpoint(t *testing.T) {
	gate, issuer, _ := gateFixture(t)
	token, _, err := issuer.IssueGateway("venue-1", "venue-1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := gate.Authorize(context.Background(), token, Requirement{Tier: TierOperational}); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("got %v, want ErrWrongTokenType", err)
	}
	// A capability demand alone also rejects gateway tokens.
	if _, err := gate.Authorize(context.Background(), token, Requirement{Capability: CapViewBookings}); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("got %v, want ErrWrongTokenType", err)
	}
}

func TestGateRejectsMissingCapability(t *testing.T) {
	gate, issuer, _ := gateFixture(t)
	token, _, err := issuer.IssueOperational("venue-1", "op-1", RoleStaff, CapViewVenue, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := gate.Authorize(context.Background(), token, Requirement{
		Tier:       TierOperational,
		Capability: CapDeleteOperators,
	}); !errors.Is(err, ErrInsufficientPermissions) {
		t.Fatalf("got %v, want ErrInsufficientPermissions", err)
	}
}

func TestGateRejectsCrossTenantRegardlessOfMask(t *testing.T) {
	gate, issuer, _ := gateFixture(t)
	token, _, err := issuer.IssueOperational("venue-1", "op-1", RoleAdmin, CapAll&^founderOnly, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := gate.Authorize(context.Background(), token, Requirement{
		Tier:       TierOperational,
		Capability: CapViewBookings,
		VenueID:    "venue-2",
	}); !errors.Is(err, ErrTenantMismatch) {
		t.Fatalf("got %v, want ErrTenantMismatch", err)
	}
}

func TestGateRejectsRevokedToken(t *testing.T) {
	gate, issuer, registry := gateFixture(t)
	token, claims, err := issuer.IssueOperational("venue-1", "op-1", RoleOperator, CapViewBookings, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := registry.Blacklist(context.Background(), claims.ID, "logout", time.Hour); err != nil {
		t.Fatalf("blacklist: %v", err)
	}

	if _, err := gate.Authorize(context.Background(), token, Requirement{Tier: TierOperational}); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("got %v, want ErrTokenRevoked", err)
	}
}

func TestGateFailsClosedWhenRegistryDown(t *testing.T) {
	issuer := testIssuer(t, time.Now)
	gate := NewGate(issuer, downRegistry{})
	token, _, err := issuer.IssueOperational("venue-1", "op-1", RoleOperator, CapViewBookings, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := gate.Authorize(context.Background(), token, Requirement{Tier: TierOperational}); !errors.Is(err, ErrRevocationCheck) {
		t.Fatalf("got %v, want ErrRevocationCheck", err)
	}
}

func TestGateRejectsGarbage(t *testing.T) {
	gate, _, _ := gateFixture(t)
	if _, err := gate.Authorize(context.Background(), "not-a-token", Requirement{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}
