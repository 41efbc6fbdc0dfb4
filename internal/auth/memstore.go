package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"keygate.io/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store in memory. It backs the development mode of the
// API process (no DSN configured) and the orchestrator tests. Transactions
// copy the dataset up front and swap it in on commit, so a failing unit of
// work leaves no partial writes behind.
type MemStore struct {
	mu   sync.Mutex
	data *memData
	inTx bool
}

type memData struct {
	orgs   map[string]*Organization
	owners map[string]*OrgOwner
	apps   map[string]*ClientApp
	users  map[string]*User
	tokens map[string]*RefreshToken // keyed by token value
}

func NewMemStore() *MemStore {
	return &MemStore{data: &memData{
		orgs:   make(map[string]*Organization),
		owners: make(map[string]*OrgOwner),
		apps:   make(map[string]*ClientApp),
		users:  make(map[string]*User),
		tokens: make(map[string]*RefreshToken),
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		orgs:   make(map[string]*Organization, len(d.orgs)),
		owners: make(map[string]*OrgOwner, len(d.owners)),
		apps:   make(map[string]*ClientApp, len(d.apps)),
		users:  make(map[string]*User, len(d.users)),
		tokens: make(map[string]*RefreshToken, len(d.tokens)),
	}
	for k, v := range d.orgs {
		cp := *v
		c.orgs[k] = &cp
	}
	for k, v := range d.owners {
		cp := *v
		c.owners[k] = &cp
	}
	for k, v := range d.apps {
		cp := *v
		c.apps[k] = &cp
	}
	for k, v := range d.users {
		cp := *v
		c.users[k] = &cp
	}
	for k, v := range d.tokens {
		cp := *v
		c.tokens[k] = &cp
	}
	return c
}

// lock serializes access unless the store is a transactional view, which is
// already serialized by the parent.
func (s *MemStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemStore) Organizations(context.Context) OrganizationStore { return &memOrgStore{s} }
func (s *MemStore) OrgOwners(context.Context) OrgOwnerStore         { return &memOwnerStore{s} }
func (s *MemStore) ClientApps(context.Context) ClientAppStore       { return &memAppStore{s} }
func (s *MemStore) Users(context.Context) UserStore                 { return &memUserStore{s} }
func (s *MemStore) RefreshTokens(context.Context) RefreshTokenStore { return &memTokenStore{s} }

func (s *MemStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := s.data.clone()
	tx := &MemStore{data: clone, inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = clone
	return nil
}

// Organization store -------------------------------------------------------

type memOrgStore struct{ s *MemStore }

func (m *memOrgStore) Create(_ context.Context, org *Organization) error {
	defer m.s.lock()()
	for _, existing := range m.s.data.orgs {
		if existing.Name == org.Name {
			return ErrDuplicateOrganizationName
		}
	}
	if org.ID == "" {
		org.ID = ids.New()
	}
	now := time.Now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now
	cp := *org
	m.s.data.orgs[org.ID] = &cp
	return nil
}

func (m *memOrgStore) Find(_ context.Context, id string) (*Organization, error) {
	defer m.s.lock()()
	org, ok := m.s.data.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *memOrgStore) FindByName(_ context.Context, name string) (*Organization, error) {
	defer m.s.lock()()
	for _, org := range m.s.data.orgs {
		if org.Name == name {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrgStore) FindByOwnerAPIKey(_ context.Context, apiKey string) (*Organization, error) {
	defer m.s.lock()()
	for _, org := range m.s.data.orgs {
		if org.OwnerAPIKey == apiKey {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrgStore) List(_ context.Context) ([]*Organization, error) {
	defer m.s.lock()()
	res := make([]*Organization, 0, len(m.s.data.orgs))
	for _, org := range m.s.data.orgs {
		cp := *org
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *memOrgStore) Update(_ context.Context, org *Organization) error {
	defer m.s.lock()()
	existing, ok := m.s.data.orgs[org.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.s.data.orgs {
		if other.ID != org.ID && other.Name == org.Name {
			return ErrDuplicateOrganizationName
		}
	}
	existing.Name = org.Name
	existing.Description = org.Description
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memOrgStore) Delete(_ context.Context, id string) error {
	defer m.s.lock()()
	if _, ok := m.s.data.orgs[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.data.orgs, id)
	return nil
}

// OrgOwner store -----------------------------------------------------------

type memOwnerStore struct{ s *MemStore }

func (m *memOwnerStore) Create(_ context.Context, owner *OrgOwner) error {
	defer m.s.lock()()
	for _, existing := range m.s.data.owners {
		if existing.Username == owner.Username {
			return ErrDuplicateUsername
		}
	}
	if owner.ID == "" {
		owner.ID = ids.New()
	}
	now := time.Now().UTC()
	owner.CreatedAt, owner.UpdatedAt = now, now
	cp := *owner
	m.s.data.owners[owner.ID] = &cp
	return nil
}

func (m *memOwnerStore) Find(_ context.Context, id string) (*OrgOwner, error) {
	defer m.s.lock()()
	owner, ok := m.s.data.owners[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *owner
	return &cp, nil
}

func (m *memOwnerStore) FindByUsername(_ context.Context, username string) (*OrgOwner, error) {
	defer m.s.lock()()
	for _, owner := range m.s.data.owners {
		if owner.Username == username {
			cp := *owner
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ClientApp store ----------------------------------------------------------

type memAppStore struct{ s *MemStore }

func (m *memAppStore) Create(_ context.Context, app *ClientApp) error {
	defer m.s.lock()()
	for _, existing := range m.s.data.apps {
		if existing.OrganizationID == app.OrganizationID && existing.Name == app.Name {
			return ErrDuplicateClientAppName
		}
	}
	if app.ID == "" {
		app.ID = ids.New()
	}
	now := time.Now().UTC()
	app.CreatedAt, app.UpdatedAt = now, now
	cp := *app
	m.s.data.apps[app.ID] = &cp
	return nil
}

func (m *memAppStore) Find(_ context.Context, id string) (*ClientApp, error) {
	defer m.s.lock()()
	app, ok := m.s.data.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (m *memAppStore) FindByAPIKey(_ context.Context, apiKey string) (*ClientApp, error) {
	defer m.s.lock()()
	for _, app := range m.s.data.apps {
		if app.APIKey == apiKey {
			cp := *app
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memAppStore) ListByOrg(_ context.Context, orgID string) ([]*ClientApp, error) {
	defer m.s.lock()()
	var apps []*ClientApp
	for _, app := range m.s.data.apps {
		if app.OrganizationID == orgID {
			cp := *app
			apps = append(apps, &cp)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
	return apps, nil
}

func (m *memAppStore) Update(_ context.Context, app *ClientApp) error {
	defer m.s.lock()()
	existing, ok := m.s.data.apps[app.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.s.data.apps {
		if other.ID != app.ID && other.OrganizationID == existing.OrganizationID && other.Name == app.Name {
			return ErrDuplicateClientAppName
		}
	}
	existing.Name = app.Name
	existing.Description = app.Description
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memAppStore) Delete(_ context.Context, id string) error {
	defer m.s.lock()()
	if _, ok := m.s.data.apps[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.data.apps, id)
	return nil
}

// User store ---------------------------------------------------------------

type memUserStore struct{ s *MemStore }

func (m *memUserStore) Create(_ context.Context, u *User) error {
	defer m.s.lock()()
	for _, existing := range m.s.data.users {
		if existing.ClientAppID == u.ClientAppID && existing.Username == u.Username {
			return ErrDuplicateUsername
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.s.data.users[u.ID] = &cp
	return nil
}

func (m *memUserStore) Find(_ context.Context, id string) (*User, error) {
	defer m.s.lock()()
	u, ok := m.s.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) FindByUsernameInApp(_ context.Context, username, clientAppID string) (*User, error) {
	defer m.s.lock()()
	for _, u := range m.s.data.users {
		if u.ClientAppID == clientAppID && u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// RefreshToken store -------------------------------------------------------

type memTokenStore struct{ s *MemStore }

func (m *memTokenStore) Create(_ context.Context, tok *RefreshToken) error {
	defer m.s.lock()()
	if _, ok := m.s.data.tokens[tok.Token]; ok {
		return errors.New("auth: refresh token value already exists")
	}
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	tok.CreatedAt = time.Now().UTC()
	cp := *tok
	m.s.data.tokens[tok.Token] = &cp
	return nil
}

func (m *memTokenStore) FindByToken(_ context.Context, token string) (*RefreshToken, error) {
	defer m.s.lock()()
	tok, ok := m.s.data.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memTokenStore) Revoke(_ context.Context, token string) error {
	defer m.s.lock()()
	if tok, ok := m.s.data.tokens[token]; ok {
		tok.Revoked = true
	}
	return nil
}

func (m *memTokenStore) RevokeActive(_ context.Context, token string) error {
	defer m.s.lock()()
	tok, ok := m.s.data.tokens[token]
	if !ok || tok.Revoked {
		return ErrNotFound
	}
	tok.Revoked = true
	return nil
}

func (m *memTokenStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	defer m.s.lock()()
	var n int64
	for value, tok := range m.s.data.tokens {
		if now.After(tok.ExpiresAt) {
			delete(m.s.data.tokens, value)
			n++
		}
	}
	return n, nil
}
