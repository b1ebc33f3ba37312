package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"gatehouse.io/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestFindByEmailLoadsRolesEagerly(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("select id, email, password_digest, full_name, is_active, provider, refresh_token_hash, created_at, updated_at from users where email").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "password_digest", "full_name", "is_active",
			"provider", "refresh_token_hash", "created_at", "updated_at",
		}).AddRow("u1", "alice@example.com", "digest", "Alice", true, nil, nil, now, now))

	mock.ExpectQuery("select r.id, r.name, r.description, p.id, p.name, p.description").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"r_id", "r_name", "r_description", "p_id", "p_name", "p_description",
		}).
			AddRow("r1", "ADMIN", "", "p1", "MANAGE_ROLES", "").
			AddRow("r1", "ADMIN", "", "p2", "VIEW_USERS", "").
			AddRow("r2", "USER", "", nil, nil, nil))

	user, err := store.Users().FindByEmail(context.Background(), " Alice@Example.COM ")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "u1" || len(user.Roles) != 2 {
		t.Fatalf("unexpected user: %+v", user)
	}
	if len(user.Roles[0].Permissions) != 2 {
		t.Fatalf("admin permissions not folded: %+v", user.Roles[0])
	}
	if len(user.Roles[1].Permissions) != 0 {
		t.Fatalf("left join null permissions must be skipped: %+v", user.Roles[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from users where id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "password_digest", "full_name", "is_active",
			"provider", "refresh_token_hash", "created_at", "updated_at",
		}))

	_, err := store.Users().FindByID(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserTranslatesUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "dup@example.com", nil, "", true, nil).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := store.Users().Create(context.Background(), &auth.User{
		Email:    "dup@example.com",
		IsActive: true,
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserLinksRoles(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "new@example.com", nil, "New", true, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("insert into user_roles").
		WithArgs(sqlmock.AnyArg(), "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u := &auth.User{
		Email:    "New@example.com",
		FullName: "New",
		IsActive: true,
		Roles:    []auth.Role{{ID: "r1", Name: "USER"}},
	}
	if err := store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if u.Email != "new@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetRefreshTokenHashMissingUser(t *testing.T) {
	store, mock := newMockStore(t)
	hash := "deadbeef"

	mock.ExpectExec("update users set refresh_token_hash").
		WithArgs("missing", "deadbeef").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users().SetRefreshTokenHash(context.Background(), "missing", &hash)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceRolesRewritesLinks(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_roles").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into user_roles").
		WithArgs("u1", "r9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Users().ReplaceRoles(context.Background(), "u1", []string{"r9"}); err != nil {
		t.Fatalf("ReplaceRoles: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleCreateLinksPermissions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("insert into roles").
		WithArgs(sqlmock.AnyArg(), "SUPPORT", "desc").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("insert into role_permissions").
		WithArgs(sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	role := &auth.Role{
		Name:        "SUPPORT",
		Description: "desc",
		Permissions: []auth.Permission{{ID: "p1", Name: "VIEW_USERS"}},
	}
	if err := store.Roles().Create(context.Background(), role); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleCreateConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into roles").
		WithArgs(sqlmock.AnyArg(), "DUP", "").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := store.Roles().Create(context.Background(), &auth.Role{Name: "DUP"})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPermissionDeleteNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from permissions").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Permissions().Delete(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
