package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Api-key prefixes form a closed discriminant: "org_" and "app_" are the
// only valid kinds.
const (
	OrgKeyPrefix = "org_"
	AppKeyPrefix = "app_"
)

// AuthPathPrefix is the public namespace where requests may arrive without a
// resolvable credential.
const AuthPathPrefix = "/api/auth/"

// NewOrgAPIKey generates an organization owner api-key: "org_" followed by
// 32 lowercase hex characters. Keys are immutable once generated.
func NewOrgAPIKey() string {
	return OrgKeyPrefix + keyMaterial()
}

// NewAppAPIKey generates a client-app api-key: "app_" followed by 32
// lowercase hex characters.
func NewAppAPIKey() string {
	return AppKeyPrefix + keyMaterial()
}

func keyMaterial() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Resolver classifies a raw credential header value into a Principal. It
// performs lookups only and never writes.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve classifies the credential for a request on the given path.
//
// Under the auth namespace an absent key yields PotentialOrgOwner and an
// unresolvable key yields Unauthenticated without error; downstream
// operations treat both as "no credential". Everywhere else the key is
// mandatory and must resolve, otherwise ErrUnauthorized is returned before
// any business logic runs. Store failures other than a lookup miss propagate
// unmodified.
func (r *Resolver) Resolve(ctx context.Context, apiKey, path string) (Principal, error) {
	public := strings.HasPrefix(path, AuthPathPrefix)

	if apiKey == "" {
		if public {
			return Principal{Kind: PrincipalPotentialOrgOwner}, nil
		}
		return Principal{}, ErrUnauthorized
	}

	principal, err := r.lookup(ctx, apiKey)
	switch {
	case err == nil:
		return principal, nil
	case errors.Is(err, ErrNotFound):
		if public {
			return Principal{Kind: PrincipalUnauthenticated}, nil
		}
		return Principal{}, ErrUnauthorized
	default:
		return Principal{}, err
	}
}

// lookup resolves the key by its prefix. Unknown prefixes and lookup misses
// both report ErrNotFound.
func (r *Resolver) lookup(ctx context.Context, apiKey string) (Principal, error) {
	switch {
	case strings.HasPrefix(apiKey, OrgKeyPrefix):
		org, err := r.store.Organizations(ctx).FindByOwnerAPIKey(ctx, apiKey)
		if err != nil {
			return Principal{}, err
		}
		return Principal{
			Kind:           PrincipalOrgOwner,
			APIKey:         apiKey,
			OrganizationID: org.ID,
		}, nil
	case strings.HasPrefix(apiKey, AppKeyPrefix):
		app, err := r.store.ClientApps(ctx).FindByAPIKey(ctx, apiKey)
		if err != nil {
			return Principal{}, err
		}
		return Principal{
			Kind:           PrincipalClientApp,
			APIKey:         apiKey,
			OrganizationID: app.OrganizationID,
			ClientAppID:    app.ID,
		}, nil
	default:
		return Principal{}, ErrNotFound
	}
}
