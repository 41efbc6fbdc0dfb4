package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// User types carried in the "userType" claim.
const (
	UserTypeOrgOwner   = "ORG_OWNER"
	UserTypeClientUser = "CLIENT_USER"
)

// Service drives signup, login, refresh and logout. Every call is an
// independent unit of work: there is no cross-request in-memory state, and
// the multi-write paths run inside a single store transaction.
type Service struct {
	store  Store
	tokens *TokenService
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the orchestrator on top of a Store and TokenService.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) *Service {
	s := &Service{store: store, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignupRequest carries the fields accepted by both signup paths. The
// organization fields only apply to the org-owner path; Metadata only to the
// client-user path.
type SignupRequest struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string

	OrganizationName        string
	OrganizationDescription string

	Metadata map[string]any
}

// LoginRequest carries login credentials for either path.
type LoginRequest struct {
	Username string
	Password string
}

// AuthResult is the token pair handed back to the boundary layer.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access-token lifetime in seconds.
	ExpiresIn int64
	// Claims echoes the claim map embedded in the access token.
	Claims map[string]any

	// Exactly one of the api-key fields is set, matching the principal the
	// tokens were issued for. Refresh results carry neither.
	OrgOwnerAPIKey  string
	ClientAppAPIKey string
}

// Signup registers a new identity. The resolved principal picks the path: no
// credential (or an unresolvable one, which the resolver leaves
// unauthenticated) registers an org owner with a fresh Organization; a
// client-app credential registers an end user under that app. A resolved
// org-owner credential has no signup meaning and is rejected.
func (s *Service) Signup(ctx context.Context, req SignupRequest, principal Principal) (AuthResult, error) {
	switch principal.Kind {
	case PrincipalPotentialOrgOwner, PrincipalUnauthenticated:
		return s.signupOrgOwner(ctx, req)
	case PrincipalClientApp:
		return s.signupClientUser(ctx, req, principal)
	case PrincipalOrgOwner:
		return AuthResult{}, ErrUnsupportedCredential
	default:
		return AuthResult{}, ErrUnsupportedCredential
	}
}

func (s *Service) signupOrgOwner(ctx context.Context, req SignupRequest) (AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	if _, err := s.store.OrgOwners(ctx).FindByUsername(ctx, username); err == nil {
		return AuthResult{}, ErrDuplicateUsername
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}

	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		orgName = username + "-org"
	}
	if _, err := s.store.Organizations(ctx).FindByName(ctx, orgName); err == nil {
		return AuthResult{}, ErrDuplicateOrganizationName
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}
	orgDesc := req.OrganizationDescription
	if orgDesc == "" {
		orgDesc = username + "'s organization"
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return AuthResult{}, err
	}

	org := &Organization{
		Name:        orgName,
		Description: orgDesc,
		OwnerAPIKey: NewOrgAPIKey(),
	}
	owner := &OrgOwner{
		Username:     username,
		PasswordHash: hash,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}

	refresh, err := s.tokens.IssueRefresh()
	if err != nil {
		return AuthResult{}, err
	}

	// Organization and owner are one atomic unit; the refresh-token row
	// rides in the same transaction.
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Organizations(ctx).Create(ctx, org); err != nil {
			return err
		}
		owner.OrganizationID = org.ID
		if err := tx.OrgOwners(ctx).Create(ctx, owner); err != nil {
			return err
		}
		return tx.RefreshTokens(ctx).Create(ctx, &RefreshToken{
			Token:     refresh,
			ExpiresAt: s.now().UTC().Add(s.tokens.RefreshTTL()),
		})
	})
	if err != nil {
		return AuthResult{}, err
	}

	claims := orgOwnerClaims(owner, org)
	access, err := s.tokens.IssueAccess(claims)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken:    access,
		RefreshToken:   refresh,
		ExpiresIn:      s.tokens.AccessTTLSeconds(),
		Claims:         claims,
		OrgOwnerAPIKey: org.OwnerAPIKey,
	}, nil
}

func (s *Service) signupClientUser(ctx context.Context, req SignupRequest, principal Principal) (AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	app, err := s.store.ClientApps(ctx).Find(ctx, principal.ClientAppID)
	if err != nil {
		return AuthResult{}, err
	}
	org, err := s.store.Organizations(ctx).Find(ctx, app.OrganizationID)
	if err != nil {
		return AuthResult{}, err
	}

	if _, err := s.store.Users(ctx).FindByUsernameInApp(ctx, username, app.ID); err == nil {
		return AuthResult{}, ErrDuplicateUsername
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return AuthResult{}, err
	}
	user := &User{
		OrganizationID: org.ID,
		ClientAppID:    app.ID,
		Username:       username,
		PasswordHash:   hash,
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Metadata:       req.Metadata,
	}

	refresh, err := s.tokens.IssueRefresh()
	if err != nil {
		return AuthResult{}, err
	}

	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Users(ctx).Create(ctx, user); err != nil {
			return err
		}
		return tx.RefreshTokens(ctx).Create(ctx, &RefreshToken{
			Token:     refresh,
			UserID:    user.ID,
			ExpiresAt: s.now().UTC().Add(s.tokens.RefreshTTL()),
		})
	})
	if err != nil {
		return AuthResult{}, err
	}

	claims := clientUserClaims(user, org, app)
	access, err := s.tokens.IssueAccess(claims)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken:     access,
		RefreshToken:    refresh,
		ExpiresIn:       s.tokens.AccessTTLSeconds(),
		Claims:          claims,
		ClientAppAPIKey: app.APIKey,
	}, nil
}

// Login authenticates an existing identity on the path picked by the
// resolved principal. A lookup miss and a wrong password both surface as
// ErrInvalidCredentials so callers learn nothing about which half failed.
func (s *Service) Login(ctx context.Context, req LoginRequest, principal Principal) (AuthResult, error) {
	switch principal.Kind {
	case PrincipalPotentialOrgOwner, PrincipalUnauthenticated:
		return s.loginOrgOwner(ctx, req)
	case PrincipalClientApp:
		return s.loginClientUser(ctx, req, principal)
	case PrincipalOrgOwner:
		return AuthResult{}, ErrUnsupportedCredential
	default:
		return AuthResult{}, ErrUnsupportedCredential
	}
}

func (s *Service) loginOrgOwner(ctx context.Context, req LoginRequest) (AuthResult, error) {
	owner, err := s.store.OrgOwners(ctx).FindByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, ErrNotFound) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}
	if err := VerifyPassword(owner.PasswordHash, req.Password); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	org, err := s.store.Organizations(ctx).Find(ctx, owner.OrganizationID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}

	claims := orgOwnerClaims(owner, org)
	result, err := s.issuePair(ctx, claims, "")
	if err != nil {
		return AuthResult{}, err
	}
	if org != nil {
		result.OrgOwnerAPIKey = org.OwnerAPIKey
	}
	return result, nil
}

func (s *Service) loginClientUser(ctx context.Context, req LoginRequest, principal Principal) (AuthResult, error) {
	app, err := s.store.ClientApps(ctx).Find(ctx, principal.ClientAppID)
	if err != nil {
		return AuthResult{}, err
	}
	user, err := s.store.Users(ctx).FindByUsernameInApp(ctx, strings.TrimSpace(req.Username), app.ID)
	if errors.Is(err, ErrNotFound) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}
	if err := VerifyPassword(user.PasswordHash, req.Password); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	org, err := s.store.Organizations(ctx).Find(ctx, app.OrganizationID)
	if err != nil {
		return AuthResult{}, err
	}

	claims := clientUserClaims(user, org, app)
	result, err := s.issuePair(ctx, claims, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	result.ClientAppAPIKey = app.APIKey
	return result, nil
}

// Refresh rotates a refresh token: the presented value is revoked and a new
// row persisted atomically, so every token is single-use. Claims are rebuilt
// strictly from the linked user; an org-owner-issued token has no linked
// user and rebuilds an empty claim map.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	rec, err := s.store.RefreshTokens(ctx).FindByToken(ctx, refreshToken)
	if errors.Is(err, ErrNotFound) {
		return AuthResult{}, ErrInvalidToken
	}
	if err != nil {
		return AuthResult{}, err
	}
	if rec.Expired(s.now().UTC()) || rec.Revoked {
		return AuthResult{}, ErrInvalidToken
	}

	claims := map[string]any{}
	if rec.UserID != "" {
		user, err := s.store.Users(ctx).Find(ctx, rec.UserID)
		if errors.Is(err, ErrNotFound) {
			return AuthResult{}, ErrInvalidToken
		}
		if err != nil {
			return AuthResult{}, err
		}
		org, err := s.store.Organizations(ctx).Find(ctx, user.OrganizationID)
		if err != nil {
			return AuthResult{}, err
		}
		app, err := s.store.ClientApps(ctx).Find(ctx, user.ClientAppID)
		if err != nil {
			return AuthResult{}, err
		}
		claims = clientUserClaims(user, org, app)
	}

	newRefresh, err := s.tokens.IssueRefresh()
	if err != nil {
		return AuthResult{}, err
	}

	// Revoke-old plus insert-new is one transaction; RevokeActive loses the
	// race when the token was already rotated, which must fail.
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.RefreshTokens(ctx).RevokeActive(ctx, refreshToken); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		return tx.RefreshTokens(ctx).Create(ctx, &RefreshToken{
			Token:     newRefresh,
			UserID:    rec.UserID,
			ExpiresAt: s.now().UTC().Add(s.tokens.RefreshTTL()),
		})
	})
	if err != nil {
		return AuthResult{}, err
	}

	access, err := s.tokens.IssueAccess(claims)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken:  access,
		RefreshToken: newRefresh,
		ExpiresIn:    s.tokens.AccessTTLSeconds(),
		Claims:       claims,
	}, nil
}

// ValidateAccessToken verifies the signature and expiry of an access token
// and returns its claim map.
func (s *Service) ValidateAccessToken(accessToken string) (map[string]any, error) {
	return s.tokens.ParseAndVerify(accessToken)
}

// Logout revokes the presented refresh token by value. Revoking an unknown
// or already-revoked token is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.store.RefreshTokens(ctx).Revoke(ctx, refreshToken)
}

// PurgeExpiredTokens deletes refresh-token rows past their expiry. The purge
// is an ordering-independent maintenance task; correctness never depends on
// it running.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.store.RefreshTokens(ctx).PurgeExpired(ctx, s.now().UTC())
}

// issuePair mints an access+refresh pair and persists the refresh row.
// userID may be empty for org-owner-issued tokens.
func (s *Service) issuePair(ctx context.Context, claims map[string]any, userID string) (AuthResult, error) {
	access, err := s.tokens.IssueAccess(claims)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, err := s.tokens.IssueRefresh()
	if err != nil {
		return AuthResult{}, err
	}
	err = s.store.RefreshTokens(ctx).Create(ctx, &RefreshToken{
		Token:     refresh,
		UserID:    userID,
		ExpiresAt: s.now().UTC().Add(s.tokens.RefreshTTL()),
	})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.AccessTTLSeconds(),
		Claims:       claims,
	}, nil
}

func orgOwnerClaims(owner *OrgOwner, org *Organization) map[string]any {
	claims := map[string]any{
		"userId":   owner.ID,
		"username": owner.Username,
		"userType": UserTypeOrgOwner,
	}
	if org != nil {
		claims["organizationId"] = org.ID
		claims["organizationName"] = org.Name
	}
	return claims
}

func clientUserClaims(user *User, org *Organization, app *ClientApp) map[string]any {
	claims := map[string]any{
		"userId":           user.ID,
		"username":         user.Username,
		"userType":         UserTypeClientUser,
		"organizationId":   org.ID,
		"organizationName": org.Name,
		"clientAppId":      app.ID,
	}
	if user.Metadata != nil {
		claims["user_metadata"] = user.Metadata
	}
	return claims
}
