package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapPGError(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{"organizations_name_key", ErrDuplicateOrganizationName},
		{"org_owners_username_key", ErrDuplicateUsername},
		{"users_client_app_id_username_key", ErrDuplicateUsername},
		{"client_apps_organization_id_name_key", ErrDuplicateClientAppName},
	}
	for _, tc := range cases {
		err := mapPGError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: tc.constraint})
		if !errors.Is(err, tc.want) {
			t.Fatalf("constraint %s: got %v, want %v", tc.constraint, err, tc.want)
		}
	}

	// Non-unique violations propagate unmodified.
	plain := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}
	if got := mapPGError(plain); !errors.Is(got, plain) {
		t.Fatalf("expected passthrough, got %v", got)
	}
	if got := mapPGError(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestPGStoreRotationTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked=true").
		WithArgs("old-token").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "new-token", nil, sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.WithinTx(ctx, func(tx Store) error {
		if err := tx.RefreshTokens(ctx).RevokeActive(ctx, "old-token"); err != nil {
			return err
		}
		return tx.RefreshTokens(ctx).Create(ctx, &RefreshToken{
			Token:     "new-token",
			ExpiresAt: time.Now().Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreRotationLosesRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()

	// Another request already revoked the row: zero rows updated, the
	// transaction rolls back and nothing is inserted.
	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked=true").
		WithArgs("old-token").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = store.WithinTx(ctx, func(tx Store) error {
		if err := tx.RefreshTokens(ctx).RevokeActive(ctx, "old-token"); err != nil {
			return err
		}
		return tx.RefreshTokens(ctx).Create(ctx, &RefreshToken{Token: "new-token"})
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindByTokenMapsNullUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "token", "user_id", "expires_at", "revoked", "created_at"}).
		AddRow("tok-1", "value", nil, now.Add(time.Hour), false, now)
	mock.ExpectQuery("select id, token, user_id, expires_at, revoked, created_at from refresh_tokens").
		WithArgs("value").
		WillReturnRows(rows)

	tok, err := store.RefreshTokens(ctx).FindByToken(ctx, "value")
	if err != nil {
		t.Fatalf("FindByToken: %v", err)
	}
	if tok.UserID != "" {
		t.Fatalf("expected empty UserID for org-owner-issued row, got %q", tok.UserID)
	}
}

func TestPGStoreLookupMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()

	mock.ExpectQuery("select .* from organizations where owner_api_key=").
		WithArgs("org_ffffffffffffffffffffffffffffffff").
		WillReturnError(sql.ErrNoRows)

	_, err = store.Organizations(ctx).FindByOwnerAPIKey(ctx, "org_ffffffffffffffffffffffffffffffff")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreCreateUserMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()

	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{
			Code:           pgerrcode.UniqueViolation,
			ConstraintName: "users_client_app_id_username_key",
		})

	err = store.Users(ctx).Create(ctx, &User{
		OrganizationID: "org-1",
		ClientAppID:    "app-1",
		Username:       "bob",
	})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}
