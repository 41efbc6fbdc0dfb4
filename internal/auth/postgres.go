package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"keygate.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx so the same sub-stores
// serve plain and transactional access.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
	q  querier
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, q: db}
}

// OpenPG opens a pooled PostgreSQL store using the pgx stdlib driver.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewPGStore(db), nil
}

func (s *PGStore) DB() *sql.DB  { return s.db }
func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) Organizations(context.Context) OrganizationStore { return &pgOrgStore{q: s.q} }
func (s *PGStore) OrgOwners(context.Context) OrgOwnerStore         { return &pgOwnerStore{q: s.q} }
func (s *PGStore) ClientApps(context.Context) ClientAppStore       { return &pgAppStore{q: s.q} }
func (s *PGStore) Users(context.Context) UserStore                 { return &pgUserStore{q: s.q} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore { return &pgTokenStore{q: s.q} }

// WithinTx runs fn inside one database transaction. Nested calls reuse the
// already-open transaction.
func (s *PGStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&PGStore{db: s.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// mapPGError translates unique-constraint violations into the matching
// DuplicateX sentinel. Everything else propagates unmodified; store
// unavailability is the caller's problem, not ours.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "organizations_name_key":
		return ErrDuplicateOrganizationName
	case "org_owners_username_key":
		return ErrDuplicateUsername
	case "users_client_app_id_username_key":
		return ErrDuplicateUsername
	case "client_apps_organization_id_name_key":
		return ErrDuplicateClientAppName
	default:
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)
	}
}

// Organization store -------------------------------------------------------

type pgOrgStore struct{ q querier }

func (s *pgOrgStore) Create(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	_, err := s.q.ExecContext(ctx,
		`insert into organizations(id, name, description, owner_api_key) values($1,$2,$3,$4)`,
		org.ID, org.Name, org.Description, org.OwnerAPIKey,
	)
	return mapPGError(err)
}

const orgColumns = `id, name, description, owner_api_key, created_at, updated_at`

func (s *pgOrgStore) scanOne(row *sql.Row) (*Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.Description, &org.OwnerAPIKey, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *pgOrgStore) Find(ctx context.Context, id string) (*Organization, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where id=$1`, id))
}

func (s *pgOrgStore) FindByName(ctx context.Context, name string) (*Organization, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where name=$1`, name))
}

func (s *pgOrgStore) FindByOwnerAPIKey(ctx context.Context, apiKey string) (*Organization, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where owner_api_key=$1`, apiKey))
}

func (s *pgOrgStore) List(ctx context.Context) ([]*Organization, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+orgColumns+` from organizations order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Description, &org.OwnerAPIKey, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &org)
	}
	return res, rows.Err()
}

func (s *pgOrgStore) Update(ctx context.Context, org *Organization) error {
	res, err := s.q.ExecContext(ctx,
		`update organizations set name=$2, description=$3, updated_at=now() where id=$1`,
		org.ID, org.Name, org.Description,
	)
	if err != nil {
		return mapPGError(err)
	}
	return requireRow(res)
}

func (s *pgOrgStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from organizations where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// OrgOwner store -----------------------------------------------------------

type pgOwnerStore struct{ q querier }

func (s *pgOwnerStore) Create(ctx context.Context, owner *OrgOwner) error {
	if owner.ID == "" {
		owner.ID = ids.New()
	}
	_, err := s.q.ExecContext(ctx,
		`insert into org_owners(id, organization_id, username, password_hash, email, first_name, last_name)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		owner.ID, owner.OrganizationID, owner.Username, owner.PasswordHash,
		owner.Email, owner.FirstName, owner.LastName,
	)
	return mapPGError(err)
}

const ownerColumns = `id, organization_id, username, password_hash, email, first_name, last_name, created_at, updated_at`

func (s *pgOwnerStore) scanOne(row *sql.Row) (*OrgOwner, error) {
	var o OrgOwner
	err := row.Scan(&o.ID, &o.OrganizationID, &o.Username, &o.PasswordHash,
		&o.Email, &o.FirstName, &o.LastName, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *pgOwnerStore) Find(ctx context.Context, id string) (*OrgOwner, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+ownerColumns+` from org_owners where id=$1`, id))
}

func (s *pgOwnerStore) FindByUsername(ctx context.Context, username string) (*OrgOwner, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+ownerColumns+` from org_owners where username=$1`, username))
}

// ClientApp store ----------------------------------------------------------

type pgAppStore struct{ q querier }

func (s *pgAppStore) Create(ctx context.Context, app *ClientApp) error {
	if app.ID == "" {
		app.ID = ids.New()
	}
	_, err := s.q.ExecContext(ctx,
		`insert into client_apps(id, organization_id, name, description, api_key) values($1,$2,$3,$4,$5)`,
		app.ID, app.OrganizationID, app.Name, app.Description, app.APIKey,
	)
	return mapPGError(err)
}

const appColumns = `id, organization_id, name, description, api_key, created_at, updated_at`

func (s *pgAppStore) scanOne(row *sql.Row) (*ClientApp, error) {
	var a ClientApp
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Description, &a.APIKey, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *pgAppStore) Find(ctx context.Context, id string) (*ClientApp, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+appColumns+` from client_apps where id=$1`, id))
}

func (s *pgAppStore) FindByAPIKey(ctx context.Context, apiKey string) (*ClientApp, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+appColumns+` from client_apps where api_key=$1`, apiKey))
}

func (s *pgAppStore) ListByOrg(ctx context.Context, orgID string) ([]*ClientApp, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+appColumns+` from client_apps where organization_id=$1 order by created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []*ClientApp
	for rows.Next() {
		var a ClientApp
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Description, &a.APIKey, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		apps = append(apps, &a)
	}
	return apps, rows.Err()
}

func (s *pgAppStore) Update(ctx context.Context, app *ClientApp) error {
	res, err := s.q.ExecContext(ctx,
		`update client_apps set name=$2, description=$3, updated_at=now() where id=$1`,
		app.ID, app.Name, app.Description,
	)
	if err != nil {
		return mapPGError(err)
	}
	return requireRow(res)
}

func (s *pgAppStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from client_apps where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// User store ---------------------------------------------------------------

type pgUserStore struct{ q querier }

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	var metadata []byte
	if u.Metadata != nil {
		var err error
		metadata, err = json.Marshal(u.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := s.q.ExecContext(ctx,
		`insert into users(id, organization_id, client_app_id, username, password_hash, email, first_name, last_name, metadata)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.OrganizationID, u.ClientAppID, u.Username, u.PasswordHash,
		u.Email, u.FirstName, u.LastName, metadata,
	)
	return mapPGError(err)
}

const userColumns = `id, organization_id, client_app_id, username, password_hash, email, first_name, last_name, metadata, created_at, updated_at`

func (s *pgUserStore) scanOne(row *sql.Row) (*User, error) {
	var (
		u        User
		metadata []byte
	)
	err := row.Scan(&u.ID, &u.OrganizationID, &u.ClientAppID, &u.Username, &u.PasswordHash,
		&u.Email, &u.FirstName, &u.LastName, &metadata, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &u.Metadata); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *pgUserStore) FindByUsernameInApp(ctx context.Context, username, clientAppID string) (*User, error) {
	return s.scanOne(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1 and client_app_id=$2`, username, clientAppID))
}

// RefreshToken store -------------------------------------------------------

type pgTokenStore struct{ q querier }

func (s *pgTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	var userID any
	if tok.UserID != "" {
		userID = tok.UserID
	}
	_, err := s.q.ExecContext(ctx,
		`insert into refresh_tokens(id, token, user_id, expires_at, revoked) values($1,$2,$3,$4,$5)`,
		tok.ID, tok.Token, userID, tok.ExpiresAt, tok.Revoked,
	)
	return mapPGError(err)
}

func (s *pgTokenStore) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	row := s.q.QueryRowContext(ctx,
		`select id, token, user_id, expires_at, revoked, created_at from refresh_tokens where token=$1`, token)
	var (
		t      RefreshToken
		userID sql.NullString
	)
	err := row.Scan(&t.ID, &t.Token, &userID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.UserID = userID.String
	return &t, nil
}

func (s *pgTokenStore) Revoke(ctx context.Context, token string) error {
	_, err := s.q.ExecContext(ctx,
		`update refresh_tokens set revoked=true where token=$1`, token)
	return err
}

func (s *pgTokenStore) RevokeActive(ctx context.Context, token string) error {
	res, err := s.q.ExecContext(ctx,
		`update refresh_tokens set revoked=true where token=$1 and not revoked`, token)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *pgTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `delete from refresh_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
