// internal/acl/store_test.go
//
// Unit-tests for acl.store helpers using sqlmock.
//
// Run: go test ./internal/acl -v

package acl

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func TestUserRoles(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT r.name FROM user_role ur JOIN role r ON r.id = ur.role_id WHERE ur.user_id = ? AND r.enabled = TRUE`,
	)).
		WithArgs("u-42").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("trusted").AddRow("moderator"))

	got, err := UserRoles(context.Background(), db, "u-42")
	if err != nil {
		t.Fatalf("UserRoles error: %v", err)
	}
	if len(got) != 2 || got[0] != "trusted" || got[1] != "moderator" {
		t.Fatalf("unexpected result: %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRoleAllowed(t *testing.T) {
	db, mock := newMock(t)

	q := `SELECT 1 FROM role_acl ra JOIN role r ON r.id = ra.role_id WHERE r.name IN (?, ?) AND ra.component = ? AND ra.action = ? AND ra.permitted = TRUE LIMIT 1`

	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("trusted", "moderator", "reviews", "moderate").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := RoleAllowed(context.Background(), db,
		[]string{"trusted", "moderator"}, "reviews", "moderate")
	if err != nil {
		t.Fatalf("RoleAllowed error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok = true, got false")
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM role_acl`)).
		WithArgs("trusted", "reviews", "moderate").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ok, err = RoleAllowed(context.Background(), db, []string{"trusted"}, "reviews", "moderate")
	if err != nil || ok {
		t.Fatalf("expected false, nil; got %v, %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRoleAllowedNoRoles(t *testing.T) {
	db, _ := newMock(t)
	ok, err := RoleAllowed(context.Background(), db, nil, "reviews", "moderate")
	if err != nil || ok {
		t.Fatalf("expected false, nil; got %v, %v", ok, err)
	}
}

func TestGrantRole(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO user_role`)).
		WithArgs("u-1", "superuser").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := GrantRole(context.Background(), db, "u-1", "superuser"); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
