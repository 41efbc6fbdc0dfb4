package auth

import "context"

// PrincipalKind is the closed set of identities a request credential can
// resolve to. Every decision point switches over it exhaustively.
type PrincipalKind int

const (
	// PrincipalUnauthenticated means no principal could be resolved. Under
	// the public auth namespace this includes unresolvable keys.
	PrincipalUnauthenticated PrincipalKind = iota

	// PrincipalPotentialOrgOwner marks a request under the auth namespace
	// that carried no api-key at all: an org-owner signup or login.
	PrincipalPotentialOrgOwner

	// PrincipalOrgOwner is a resolved "org_" key.
	PrincipalOrgOwner

	// PrincipalClientApp is a resolved "app_" key.
	PrincipalClientApp
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalPotentialOrgOwner:
		return "POTENTIAL_ORG_OWNER"
	case PrincipalOrgOwner:
		return "ORG_OWNER"
	case PrincipalClientApp:
		return "CLIENT_APP"
	default:
		return "UNAUTHENTICATED"
	}
}

// Principal is the resolved identity of a request credential. Only the
// fields relevant to the Kind are populated.
type Principal struct {
	Kind   PrincipalKind
	APIKey string

	// OrganizationID is set for OrgOwner and ClientApp kinds.
	OrganizationID string
	// ClientAppID is set for the ClientApp kind only.
	ClientAppID string
}

// Authenticated reports whether the principal carries a resolved identity.
func (p Principal) Authenticated() bool {
	return p.Kind == PrincipalOrgOwner || p.Kind == PrincipalClientApp
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the resolved principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the principal attached by the resolver.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
