package auth

import (
	"context"
	"errors"
)

// ExchangeToken converts a live access token issued for one client app into
// a token pair for a sibling app under the same organization, without
// re-entering credentials. When the user has no identity under the target
// app yet, one is provisioned by copying credentials and profile from the
// source identity; re-running the exchange reuses that identity.
func (s *Service) ExchangeToken(ctx context.Context, accessToken, targetAPIKey string) (AuthResult, error) {
	claims, err := s.tokens.ParseAndVerify(accessToken)
	if err != nil {
		return AuthResult{}, ErrInvalidToken
	}

	// Org-owner tokens are not exchangeable: only client users have
	// per-app identities.
	if userType, _ := claims["userType"].(string); userType != UserTypeClientUser {
		return AuthResult{}, ErrForbidden
	}
	userID, _ := claims["userId"].(string)
	orgID, _ := claims["organizationId"].(string)
	if userID == "" || orgID == "" {
		return AuthResult{}, ErrInvalidToken
	}

	target, err := s.store.ClientApps(ctx).FindByAPIKey(ctx, targetAPIKey)
	if err != nil {
		return AuthResult{}, err
	}

	// Tenant boundary: the target app must live in the organization the
	// token was issued for.
	if target.OrganizationID != orgID {
		return AuthResult{}, ErrForbidden
	}

	// Re-resolve the source user and cross-check the claim, defending
	// against stale or forged organization claims.
	source, err := s.store.Users(ctx).Find(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return AuthResult{}, ErrForbidden
	}
	if err != nil {
		return AuthResult{}, err
	}
	if source.OrganizationID != orgID {
		return AuthResult{}, ErrForbidden
	}

	user, err := s.findOrProvision(ctx, source, target)
	if err != nil {
		return AuthResult{}, err
	}

	org, err := s.store.Organizations(ctx).Find(ctx, target.OrganizationID)
	if err != nil {
		return AuthResult{}, err
	}

	newClaims := clientUserClaims(user, org, target)
	result, err := s.issuePair(ctx, newClaims, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	result.ClientAppAPIKey = target.APIKey
	return result, nil
}

// findOrProvision returns the target-app user matching the source username,
// creating a shadow identity when none exists. Each client app gets an
// independently addressable identity sharing the source credentials.
func (s *Service) findOrProvision(ctx context.Context, source *User, target *ClientApp) (*User, error) {
	users := s.store.Users(ctx)

	existing, err := users.FindByUsernameInApp(ctx, source.Username, target.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	provisioned := &User{
		OrganizationID: target.OrganizationID,
		ClientAppID:    target.ID,
		Username:       source.Username,
		PasswordHash:   source.PasswordHash,
		Email:          source.Email,
		FirstName:      source.FirstName,
		LastName:       source.LastName,
		Metadata:       source.Metadata,
	}
	err = users.Create(ctx, provisioned)
	if errors.Is(err, ErrDuplicateUsername) {
		// A concurrent exchange provisioned the identity first; reuse it.
		return users.FindByUsernameInApp(ctx, source.Username, target.ID)
	}
	if err != nil {
		return nil, err
	}
	return provisioned, nil
}
