package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	tokens, err := NewTokenService("test-secret")
	require.NoError(t, err)
	return NewService(store, tokens), store
}

func seedOrg(t *testing.T, store Store, name string) *Organization {
	t.Helper()
	ctx := context.Background()
	org := &Organization{
		Name:        name,
		Description: name + " organization",
		OwnerAPIKey: NewOrgAPIKey(),
	}
	if err := store.Organizations(ctx).Create(ctx, org); err != nil {
		t.Fatalf("seed organization %s: %v", name, err)
	}
	return org
}

func seedApp(t *testing.T, store Store, org *Organization, name string) *ClientApp {
	t.Helper()
	ctx := context.Background()
	app := &ClientApp{
		OrganizationID: org.ID,
		Name:           name,
		APIKey:         NewAppAPIKey(),
	}
	if err := store.ClientApps(ctx).Create(ctx, app); err != nil {
		t.Fatalf("seed client app %s: %v", name, err)
	}
	return app
}

func appPrincipal(app *ClientApp) Principal {
	return Principal{
		Kind:           PrincipalClientApp,
		APIKey:         app.APIKey,
		OrganizationID: app.OrganizationID,
		ClientAppID:    app.ID,
	}
}

var noCredential = Principal{Kind: PrincipalPotentialOrgOwner}

func TestSignupOrgOwnerDefaultsOrganizationName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Signup(ctx, SignupRequest{Username: "alice", Password: "p1"}, noCredential)
	require.NoError(t, err)

	assert.Equal(t, "alice-org", result.Claims["organizationName"])
	assert.Equal(t, UserTypeOrgOwner, result.Claims["userType"])
	assert.Regexp(t, `^org_[0-9a-f]{32}$`, result.OrgOwnerAPIKey)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Empty(t, result.ClientAppAPIKey)

	// Login afterwards resolves the same organization.
	login, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "p1"}, noCredential)
	require.NoError(t, err)
	assert.Equal(t, result.Claims["organizationId"], login.Claims["organizationId"])
	assert.Equal(t, result.OrgOwnerAPIKey, login.OrgOwnerAPIKey)
}

func TestSignupOrgOwnerDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Username: "alice", Password: "p1"}, noCredential)
	require.NoError(t, err)

	_, err = svc.Signup(ctx, SignupRequest{Username: "alice", Password: "p2"}, noCredential)
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Signup(ctx, SignupRequest{
		Username:         "bob",
		Password:         "p3",
		OrganizationName: "alice-org",
	}, noCredential)
	assert.ErrorIs(t, err, ErrDuplicateOrganizationName)
}

func TestSignupRejectsOrgOwnerCredential(t *testing.T) {
	svc, store := newTestService(t)
	org := seedOrg(t, store, "acme")

	_, err := svc.Signup(context.Background(), SignupRequest{Username: "x", Password: "y"}, Principal{
		Kind:           PrincipalOrgOwner,
		APIKey:         org.OwnerAPIKey,
		OrganizationID: org.ID,
	})
	assert.ErrorIs(t, err, ErrUnsupportedCredential)
}

func TestSignupClientUser(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	org := seedOrg(t, store, "acme")
	app := seedApp(t, store, org, "web")

	metadata := map[string]any{"plan": "free", "beta": true}
	result, err := svc.Signup(ctx, SignupRequest{
		Username: "bob",
		Password: "p1",
		Email:    "bob@example.com",
		Metadata: metadata,
	}, appPrincipal(app))
	require.NoError(t, err)

	assert.Equal(t, UserTypeClientUser, result.Claims["userType"])
	assert.Equal(t, org.ID, result.Claims["organizationId"])
	assert.Equal(t, app.ID, result.Claims["clientAppId"])
	assert.Equal(t, metadata, result.Claims["user_metadata"])
	assert.Equal(t, app.APIKey, result.ClientAppAPIKey)
}

func TestScopedUsernameUniqueness(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	org := seedOrg(t, store, "acme")
	web := seedApp(t, store, org, "web")
	mobile := seedApp(t, store, org, "mobile")

	_, err := svc.Signup(ctx, SignupRequest{Username: "bob", Password: "p1"}, appPrincipal(web))
	require.NoError(t, err)

	// Same username under a sibling app is fine.
	_, err = svc.Signup(ctx, SignupRequest{Username: "bob", Password: "p2"}, appPrincipal(mobile))
	require.NoError(t, err)

	// Same username under the same app is not.
	_, err = svc.Signup(ctx, SignupRequest{Username: "bob", Password: "p3"}, appPrincipal(web))
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestLoginInvalidCredentialsDoNotLeak(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	org := seedOrg(t, store, "acme")
	app := seedApp(t, store, org, "web")

	_, err := svc.Signup(ctx, SignupRequest{Username: "alice", Password: "right"}, noCredential)
	require.NoError(t, err)
	_, err = svc.Signup(ctx, SignupRequest{Username: "bob", Password: "right"}, appPrincipal(app))
	require.NoError(t, err)

	// Unknown principal and wrong password collapse to the same error.
	_, missErr := svc.Login(ctx, LoginRequest{Username: "nobody", Password: "x"}, noCredential)
	_, pwErr := svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"}, noCredential)
	assert.ErrorIs(t, missErr, ErrInvalidCredentials)
	assert.ErrorIs(t, pwErr, ErrInvalidCredentials)
	assert.Equal(t, missErr, pwErr)

	_, missErr = svc.Login(ctx, LoginRequest{Username: "nobody", Password: "x"}, appPrincipal(app))
	_, pwErr = svc.Login(ctx, LoginRequest{Username: "bob", Password: "wrong"}, appPrincipal(app))
	assert.ErrorIs(t, missErr, ErrInvalidCredentials)
	assert.ErrorIs(t, pwErr, ErrInvalidCredentials)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	org := seedOrg(t, store, "acme")
	app := seedApp(t, store, org, "web")

	signup, err := svc.Signup(ctx, SignupRequest{Username: "bob", Password: "p1"}, appPrincipal(app))
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, signup.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, signup.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, signup.Claims["userId"], rotated.Claims["userId"])
	assert.Equal(t, signup.Claims["clientAppId"], rotated.Claims["clientAppId"])

	// Presenting the rotated-out token again must fail.
	_, err = svc.Refresh(ctx, signup.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The replacement still works.
	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, SignupRequest{Username: "alice", Password: "p1"}, noCredential)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, signup.RefreshToken))
	_, err = svc.Refresh(ctx, signup.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Logout is idempotent, including for unknown tokens.
	require.NoError(t, svc.Logout(ctx, signup.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "never-issued"))
}

func TestRefreshRejectsExpiredRegardlessOfRevocation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	for _, revoked := range []bool{false, true} {
		tok := &RefreshToken{
			Token:     NewOrgAPIKey(), // any unique opaque value
			ExpiresAt: time.Now().UTC().Add(-time.Minute),
			Revoked:   revoked,
		}
		require.NoError(t, store.RefreshTokens(ctx).Create(ctx, tok))
		_, err := svc.Refresh(ctx, tok.Token)
		assert.ErrorIs(t, err, ErrInvalidToken, "revoked=%v", revoked)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Refresh(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshOrgOwnerTokenYieldsEmptyClaims(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, SignupRequest{Username: "alice", Password: "p1"}, noCredential)
	require.NoError(t, err)

	// Org-owner-issued rows have no linked user, so the rebuilt claim map
	// is empty. That mirrors the original system; callers needing full
	// context must log in again.
	rotated, err := svc.Refresh(ctx, signup.RefreshToken)
	require.NoError(t, err)
	assert.Empty(t, rotated.Claims)

	parsed, err := svc.tokens.ParseAndVerify(rotated.AccessToken)
	require.NoError(t, err)
	assert.NotContains(t, parsed, "userId")
}

func TestPurgeExpiredTokens(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	live := &RefreshToken{Token: "live", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	dead := &RefreshToken{Token: "dead", ExpiresAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, store.RefreshTokens(ctx).Create(ctx, live))
	require.NoError(t, store.RefreshTokens(ctx).Create(ctx, dead))

	n, err := svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.RefreshTokens(ctx).FindByToken(ctx, "live")
	require.NoError(t, err)
	_, err = store.RefreshTokens(ctx).FindByToken(ctx, "dead")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreTxRollsBackOnError(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx Store) error {
		org := &Organization{Name: "acme", OwnerAPIKey: NewOrgAPIKey()}
		if err := tx.Organizations(ctx).Create(ctx, org); err != nil {
			return err
		}
		// Duplicate owner username forces the unit of work to fail.
		if err := tx.OrgOwners(ctx).Create(ctx, &OrgOwner{OrganizationID: org.ID, Username: "alice"}); err != nil {
			return err
		}
		return tx.OrgOwners(ctx).Create(ctx, &OrgOwner{OrganizationID: org.ID, Username: "alice"})
	})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	// Nothing from the failed transaction may remain visible.
	_, err = store.Organizations(ctx).FindByName(ctx, "acme")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.OrgOwners(ctx).FindByUsername(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}
