package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

var (
	orgKeyPattern = regexp.MustCompile(`^org_[0-9a-f]{32}$`)
	appKeyPattern = regexp.MustCompile(`^app_[0-9a-f]{32}$`)
)

func TestAPIKeyShapes(t *testing.T) {
	if key := NewOrgAPIKey(); !orgKeyPattern.MatchString(key) {
		t.Fatalf("org key %q does not match expected shape", key)
	}
	if key := NewAppAPIKey(); !appKeyPattern.MatchString(key) {
		t.Fatalf("app key %q does not match expected shape", key)
	}
}

func TestAPIKeyUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 20000)
	for i := 0; i < 10000; i++ {
		for _, key := range []string{NewOrgAPIKey(), NewAppAPIKey()} {
			if _, dup := seen[key]; dup {
				t.Fatalf("api key collision after %d generations: %s", i, key)
			}
			seen[key] = struct{}{}
		}
	}
}

func TestResolverPublicNamespace(t *testing.T) {
	store := NewMemStore()
	org := seedOrg(t, store, "acme")
	app := seedApp(t, store, org, "web")
	resolver := NewResolver(store)
	ctx := context.Background()

	// Absent key means a potential org owner.
	p, err := resolver.Resolve(ctx, "", "/api/auth/signup")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Kind != PrincipalPotentialOrgOwner {
		t.Fatalf("expected PotentialOrgOwner, got %v", p.Kind)
	}

	// An unresolvable key falls through to unauthenticated, not an error.
	for _, key := range []string{"org_ffffffffffffffffffffffffffffffff", "app_ffffffffffffffffffffffffffffffff", "junk"} {
		p, err := resolver.Resolve(ctx, key, "/api/auth/login")
		if err != nil {
			t.Fatalf("Resolve(%q): %v", key, err)
		}
		if p.Kind != PrincipalUnauthenticated {
			t.Fatalf("Resolve(%q): expected Unauthenticated, got %v", key, p.Kind)
		}
	}

	// Resolvable keys resolve the same way as everywhere else.
	p, err = resolver.Resolve(ctx, org.OwnerAPIKey, "/api/auth/signup")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Kind != PrincipalOrgOwner || p.OrganizationID != org.ID {
		t.Fatalf("unexpected principal: %+v", p)
	}

	p, err = resolver.Resolve(ctx, app.APIKey, "/api/auth/signup")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Kind != PrincipalClientApp || p.ClientAppID != app.ID || p.OrganizationID != org.ID {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestResolverProtectedPaths(t *testing.T) {
	store := NewMemStore()
	org := seedOrg(t, store, "acme")
	resolver := NewResolver(store)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, "", "/api/orgs"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing key: expected ErrUnauthorized, got %v", err)
	}
	if _, err := resolver.Resolve(ctx, "org_ffffffffffffffffffffffffffffffff", "/api/orgs"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unresolvable key: expected ErrUnauthorized, got %v", err)
	}
	if _, err := resolver.Resolve(ctx, "weird_prefix", "/api/orgs"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown prefix: expected ErrUnauthorized, got %v", err)
	}

	p, err := resolver.Resolve(ctx, org.OwnerAPIKey, "/api/orgs")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Kind != PrincipalOrgOwner {
		t.Fatalf("expected OrgOwner, got %v", p.Kind)
	}
}
