package revocation

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRegistryBlacklist(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	revoked, err := r.IsBlacklisted(ctx, "jti-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if revoked {
		t.Fatalf("unknown jti should not be blacklisted")
	}

	if err := r.Blacklist(ctx, "jti-1", "logout", time.Hour); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	revoked, err = r.IsBlacklisted(ctx, "jti-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !revoked {
		t.Fatalf("blacklisted jti should be visible immediately")
	}
}

func TestMemoryRegistryEntriesExpire(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Blacklist(ctx, "jti-2", "logout", 10*time.Millisecond); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	revoked, err := r.IsBlacklisted(ctx, "jti-2")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if revoked {
		t.Fatalf("expired entry should not be reported")
	}
}
