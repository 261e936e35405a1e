// Package user stores accounts and turns them into request identities.
//
// Passwords are hashed with bcrypt.  Account names are unique; the database
// enforces it and Create maps the MySQL duplicate-key error to ErrNameTaken.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/yanizio/reviews/internal/acl"
	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/resource"
)

// MinPasswordLength is enforced by Create.
const MinPasswordLength = 8

var (
	ErrBadCredentials   = errors.New("user: bad credentials")
	ErrNameTaken        = errors.New("user: name taken")
	ErrPasswordTooShort = errors.New("user: password too short")
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// Migrations creates the account table.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS user (
		id            CHAR(36) PRIMARY KEY,
		name          VARCHAR(64) NOT NULL UNIQUE,
		email         VARCHAR(255) NULL,
		password_hash VARBINARY(60) NOT NULL,
		created       DATETIME(6) NOT NULL
	)`,
}

// Account is one row of the user table.
type Account struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Email        sql.NullString `db:"email"`
	PasswordHash []byte         `db:"password_hash"`
	Created      time.Time      `db:"created"`
}

// Store is safe for concurrent use.
type Store struct {
	db         *sqlx.DB
	superusers map[string]bool
	cost       int
	now        func() time.Time
}

// NewStore returns a Store.  Accounts registered under a name in superusers
// get the superuser role.
func NewStore(db *sqlx.DB, superusers []string) *Store {
	s := &Store{db: db, superusers: make(map[string]bool), cost: bcrypt.DefaultCost, now: time.Now}
	for _, n := range superusers {
		s.superusers[strings.ToLower(n)] = true
	}
	return s
}

const selectAccount = `SELECT id, name, email, password_hash, created FROM user`

// ByID loads an account.  A missing row wraps resource.ErrNotFound.
func (s *Store) ByID(ctx context.Context, id string) (*Account, error) {
	return s.get(ctx, selectAccount+` WHERE id = ?`, id)
}

// ByName loads an account by its unique name.
func (s *Store) ByName(ctx context.Context, name string) (*Account, error) {
	return s.get(ctx, selectAccount+` WHERE name = ?`, name)
}

func (s *Store) get(ctx context.Context, q string, arg string) (*Account, error) {
	var a Account
	err := s.db.GetContext(ctx, &a, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", arg, resource.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", arg, err)
	}
	return &a, nil
}

// Identity implements auth.Loader.
func (s *Store) Identity(ctx context.Context, id string) (*auth.User, error) {
	a, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	roles, err := acl.UserRoles(ctx, s.db, a.ID)
	if err != nil {
		return nil, fmt.Errorf("roles for %s: %w", a.ID, err)
	}
	u := &auth.User{ID: a.ID, Name: a.Name}
	u.ApplyRoles(roles)
	return u, nil
}

// Authenticate checks name and password.  Unknown names and wrong passwords
// both return ErrBadCredentials.
func (s *Store) Authenticate(ctx context.Context, name, password string) (*Account, error) {
	a, err := s.ByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, resource.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return a, nil
}

// Create registers a new account.
func (s *Store) Create(ctx context.Context, name, password, email string) (*Account, error) {
	name = strings.TrimSpace(name)
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &Account{
		ID:           uuid.NewString(),
		Name:         name,
		PasswordHash: hash,
		Created:      s.now().UTC(),
	}
	if email = strings.TrimSpace(email); email != "" {
		a.Email = sql.NullString{String: email, Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO user (id, name, email, password_hash, created)
		 VALUES (:id, :name, :email, :password_hash, :created)`, a)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return nil, ErrNameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if s.superusers[strings.ToLower(name)] {
		if err := acl.GrantRole(ctx, tx, a.ID, auth.RoleSuperUser); err != nil {
			return nil, fmt.Errorf("grant superuser: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}
