package auth

import "time"

// Organization is the top-level tenant. It owns exactly one OrgOwner and any
// number of ClientApps; every User belongs to it transitively.
type Organization struct {
	ID          string
	Name        string
	Description string
	// OwnerAPIKey is generated once at creation and never changes.
	OwnerAPIKey string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrgOwner is the administrative principal of one Organization. Owner
// usernames are globally unique.
type OrgOwner struct {
	ID             string
	OrganizationID string
	Username       string
	PasswordHash   string
	Email          string
	FirstName      string
	LastName       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClientApp is a tenant-scoped application boundary. Its name is unique
// within the owning Organization; its APIKey is globally unique.
type ClientApp struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	APIKey         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// User is an end-user principal scoped to exactly one ClientApp. Usernames
// are unique only within that ClientApp.
type User struct {
	ID             string
	OrganizationID string
	ClientAppID    string
	Username       string
	PasswordHash   string
	Email          string
	FirstName      string
	LastName       string
	// Metadata is a free-form blob supplied at signup and copied verbatim
	// into token claims and SSO-provisioned identities.
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshToken is a persisted single-use refresh credential. An empty UserID
// marks an org-owner-issued token.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Expired reports whether the row is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
