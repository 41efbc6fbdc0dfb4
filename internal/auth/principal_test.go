package auth

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("expected no principal on fresh context")
	}

	want := Principal{
		Kind:           PrincipalClientApp,
		APIKey:         "app_0123",
		OrganizationID: "org-1",
		ClientAppID:    "app-1",
	}
	ctx = ContextWithPrincipal(ctx, want)
	got, ok := PrincipalFromContext(ctx)
	if !ok || got != want {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
}

func TestPrincipalKindString(t *testing.T) {
	cases := map[PrincipalKind]string{
		PrincipalUnauthenticated:   "UNAUTHENTICATED",
		PrincipalPotentialOrgOwner: "POTENTIAL_ORG_OWNER",
		PrincipalOrgOwner:          "ORG_OWNER",
		PrincipalClientApp:         "CLIENT_APP",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("%d.String()=%q, want %q", kind, got, want)
		}
	}
}

func TestPrincipalAuthenticated(t *testing.T) {
	if (Principal{Kind: PrincipalUnauthenticated}).Authenticated() {
		t.Fatal("unauthenticated principal must not report authenticated")
	}
	if (Principal{Kind: PrincipalPotentialOrgOwner}).Authenticated() {
		t.Fatal("potential org owner must not report authenticated")
	}
	if !(Principal{Kind: PrincipalOrgOwner}).Authenticated() {
		t.Fatal("org owner must report authenticated")
	}
	if !(Principal{Kind: PrincipalClientApp}).Authenticated() {
		t.Fatal("client app must report authenticated")
	}
}
