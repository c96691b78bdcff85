package auth

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatalf("empty context should carry no principal")
	}

	p := Principal{TokenType: TokenTypeOperational, VenueID: "venue-1", OperatorID: "op-1"}
	ctx := ContextWithPrincipal(context.Background(), p)
	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatalf("principal missing")
	}
	if got.OperatorID != "op-1" || got.VenueID != "venue-1" {
		t.Fatalf("principal mismatch: %+v", got)
	}
}
