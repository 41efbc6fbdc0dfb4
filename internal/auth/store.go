package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations the auth subsystem consumes.
// Uniqueness of organization names, both api-key kinds and scoped usernames
// is enforced by the store; a losing concurrent writer surfaces the matching
// ErrDuplicate* sentinel, never a silent overwrite.
type Store interface {
	Organizations(ctx context.Context) OrganizationStore
	OrgOwners(ctx context.Context) OrgOwnerStore
	ClientApps(ctx context.Context) ClientAppStore
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore

	// WithinTx runs fn against a transactional view of the store. Any error
	// rolls back every write made inside fn.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// OrganizationStore manages organizations.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	FindByName(ctx context.Context, name string) (*Organization, error)
	FindByOwnerAPIKey(ctx context.Context, apiKey string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
	Update(ctx context.Context, org *Organization) error
	Delete(ctx context.Context, id string) error
}

// OrgOwnerStore manages organization owners.
type OrgOwnerStore interface {
	Create(ctx context.Context, owner *OrgOwner) error
	Find(ctx context.Context, id string) (*OrgOwner, error)
	FindByUsername(ctx context.Context, username string) (*OrgOwner, error)
}

// ClientAppStore manages client applications.
type ClientAppStore interface {
	Create(ctx context.Context, app *ClientApp) error
	Find(ctx context.Context, id string) (*ClientApp, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*ClientApp, error)
	ListByOrg(ctx context.Context, orgID string) ([]*ClientApp, error)
	Update(ctx context.Context, app *ClientApp) error
	Delete(ctx context.Context, id string) error
}

// UserStore manages end users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByUsernameInApp looks up a user by username scoped to one client
	// app; the same username may exist under other apps.
	FindByUsernameInApp(ctx context.Context, username, clientAppID string) (*User, error)
}

// RefreshTokenStore manages the refresh-token ledger.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	// Revoke marks the row revoked by token value. Unknown and
	// already-revoked tokens are not an error.
	Revoke(ctx context.Context, token string) error
	// RevokeActive revokes the row only if it is still live; it reports
	// ErrNotFound when no unrevoked row matched, which makes rotation
	// single-use under concurrent presentation.
	RevokeActive(ctx context.Context, token string) error
	// PurgeExpired deletes rows past their expiry and reports how many.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
