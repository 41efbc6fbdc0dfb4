// Package orgs manages organizations and their client apps. The auth core
// consumes these records through the shared store; this service is the write
// path org owners use to administer their tenant.
package orgs

import (
	"context"
	"errors"
	"strings"

	"keygate.io/internal/auth"
)

// Service provides organization and client-app management.
type Service struct {
	store auth.Store
}

func NewService(store auth.Store) *Service {
	return &Service{store: store}
}

// OrganizationInput carries the mutable organization fields.
type OrganizationInput struct {
	Name        string
	Description string
}

// ClientAppInput carries the mutable client-app fields.
type ClientAppInput struct {
	Name        string
	Description string
}

// CreateOrganization creates a tenant with a freshly generated owner
// api-key. The key is immutable for the lifetime of the organization.
func (s *Service) CreateOrganization(ctx context.Context, in OrganizationInput) (*auth.Organization, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("orgs: organization name is required")
	}
	if _, err := s.store.Organizations(ctx).FindByName(ctx, name); err == nil {
		return nil, auth.ErrDuplicateOrganizationName
	} else if !errors.Is(err, auth.ErrNotFound) {
		return nil, err
	}

	org := &auth.Organization{
		Name:        name,
		Description: in.Description,
		OwnerAPIKey: auth.NewOrgAPIKey(),
	}
	if err := s.store.Organizations(ctx).Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) GetOrganization(ctx context.Context, id string) (*auth.Organization, error) {
	return s.store.Organizations(ctx).Find(ctx, id)
}

func (s *Service) GetOrganizationByAPIKey(ctx context.Context, apiKey string) (*auth.Organization, error) {
	return s.store.Organizations(ctx).FindByOwnerAPIKey(ctx, apiKey)
}

func (s *Service) ListOrganizations(ctx context.Context) ([]*auth.Organization, error) {
	return s.store.Organizations(ctx).List(ctx)
}

// UpdateOrganization renames or re-describes an organization. The owner
// api-key never changes.
func (s *Service) UpdateOrganization(ctx context.Context, id string, in OrganizationInput) (*auth.Organization, error) {
	org, err := s.store.Organizations(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("orgs: organization name is required")
	}
	if name != org.Name {
		if _, err := s.store.Organizations(ctx).FindByName(ctx, name); err == nil {
			return nil, auth.ErrDuplicateOrganizationName
		} else if !errors.Is(err, auth.ErrNotFound) {
			return nil, err
		}
	}
	org.Name = name
	org.Description = in.Description
	if err := s.store.Organizations(ctx).Update(ctx, org); err != nil {
		return nil, err
	}
	return s.store.Organizations(ctx).Find(ctx, id)
}

func (s *Service) DeleteOrganization(ctx context.Context, id string) error {
	return s.store.Organizations(ctx).Delete(ctx, id)
}

// CreateClientApp registers an application under an organization. App names
// are unique per organization; the store surfaces a losing concurrent
// creation as ErrDuplicateClientAppName.
func (s *Service) CreateClientApp(ctx context.Context, orgID string, in ClientAppInput) (*auth.ClientApp, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("orgs: client app name is required")
	}
	org, err := s.store.Organizations(ctx).Find(ctx, orgID)
	if err != nil {
		return nil, err
	}

	app := &auth.ClientApp{
		OrganizationID: org.ID,
		Name:           name,
		Description:    in.Description,
		APIKey:         auth.NewAppAPIKey(),
	}
	if err := s.store.ClientApps(ctx).Create(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *Service) GetClientApp(ctx context.Context, id string) (*auth.ClientApp, error) {
	return s.store.ClientApps(ctx).Find(ctx, id)
}

func (s *Service) GetClientAppByAPIKey(ctx context.Context, apiKey string) (*auth.ClientApp, error) {
	return s.store.ClientApps(ctx).FindByAPIKey(ctx, apiKey)
}

func (s *Service) ListClientApps(ctx context.Context, orgID string) ([]*auth.ClientApp, error) {
	return s.store.ClientApps(ctx).ListByOrg(ctx, orgID)
}

// UpdateClientApp renames or re-describes a client app; its api-key never
// changes.
func (s *Service) UpdateClientApp(ctx context.Context, id string, in ClientAppInput) (*auth.ClientApp, error) {
	app, err := s.store.ClientApps(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("orgs: client app name is required")
	}
	app.Name = name
	app.Description = in.Description
	if err := s.store.ClientApps(ctx).Update(ctx, app); err != nil {
		return nil, err
	}
	return s.store.ClientApps(ctx).Find(ctx, id)
}

func (s *Service) DeleteClientApp(ctx context.Context, id string) error {
	return s.store.ClientApps(ctx).Delete(ctx, id)
}
