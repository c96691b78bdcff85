package auth

import "testing"

func TestDefaultMasks(t *testing.T) {
	cases := []struct {
		role Role
		want Capability
	}{
		{RoleFounder, CapAll},
		{RoleAdmin, CapAll &^ (CapManageVenueSettings | CapTransferOwnership)},
		{RoleOperator, CapViewVenue | CapViewBookings | CapManageBookings | CapViewOperators},
		{RoleStaff, CapViewVenue | CapViewBookings},
	}
	for _, tc := range cases {
		if got := DefaultMask(tc.role); got != tc.want {
			t.Fatalf("role %s: mask %b, want %b", tc.role, got, tc.want)
		}
	}
}

func TestEffectiveMaskFounderAlwaysFull(t *testing.T) {
	if got := EffectiveMask(RoleStaff, true, CapViewVenue); got != CapAll {
		t.Fatalf("founder mask %b, want full", got)
	}
}

func TestEffectiveMaskOverrideStripsFounderBits(t *testing.T) {
	override := CapViewBookings | CapManageVenueSettings | CapTransferOwnership
	got := EffectiveMask(RoleOperator, false, override)
	if got != CapViewBookings {
		t.Fatalf("mask %b, want only view bookings", got)
	}
}

func TestEffectiveMaskZeroOverrideFallsBackToRole(t *testing.T) {
	if got := EffectiveMask(RoleStaff, false, 0); got != DefaultMask(RoleStaff) {
		t.Fatalf("mask %b, want staff default", got)
	}
}

func TestHasCapabilityConjunction(t *testing.T) {
	mask := CapViewVenue | CapViewBookings
	if !HasCapability(mask, CapViewVenue) {
		t.Fatalf("single bit should pass")
	}
	if !HasCapability(mask, CapViewVenue|CapViewBookings) {
		t.Fatalf("full subset should pass")
	}
	if HasCapability(mask, CapViewVenue|CapManageBookings) {
		t.Fatalf("missing bit should fail")
	}
	if !HasCapability(mask, 0) {
		t.Fatalf("empty requirement always passes")
	}
}

func TestParseRole(t *testing.T) {
	if _, err := ParseRole(" Admin "); err != nil {
		t.Fatalf("parse admin: %v", err)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatalf("unknown role should fail")
	}
}
