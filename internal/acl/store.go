// internal/acl/store.go
//
// Small query helpers for Role-Based Access Control.
//
// Context
// -------
// The ACL model lives in three tables:
//
//	role        (id PK, name, enabled)
//	role_acl    (role_id, component, action, permitted)
//	user_role   (user_id, role_id)
//
// Components and middleware need fast answers to two questions:
//  1. Which *role names* does user X have?        → `UserRoles()`
//  2. Is role R permitted for component/action?   → `RoleAllowed()`
//
// The helpers take any sqlx.QueryerContext (a *sqlx.DB or *sqlx.Tx) and run
// simple parameterised queries.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.
package acl

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Migrations creates the ACL tables and seeds the built-in roles.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS role (
		id      INT AUTO_INCREMENT PRIMARY KEY,
		name    VARCHAR(64) NOT NULL UNIQUE,
		enabled BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS role_acl (
		role_id   INT NOT NULL,
		component VARCHAR(64) NOT NULL,
		action    VARCHAR(64) NOT NULL,
		permitted BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (role_id, component, action)
	)`,
	`CREATE TABLE IF NOT EXISTS user_role (
		user_id CHAR(36) NOT NULL,
		role_id INT NOT NULL,
		PRIMARY KEY (user_id, role_id)
	)`,
	`INSERT IGNORE INTO role (name) VALUES ('trusted'), ('moderator'), ('superuser')`,
	`INSERT IGNORE INTO role_acl (role_id, component, action)
	   SELECT id, 'reviews', 'moderate' FROM role WHERE name IN ('moderator', 'superuser')`,
}

// UserRoles returns the role *names* bound to userID.  Disabled roles are
// filtered out.
func UserRoles(ctx context.Context, db sqlx.QueryerContext, userID string) ([]string, error) {
	const q = `SELECT r.name
                 FROM user_role ur
                 JOIN role r ON r.id = ur.role_id
                WHERE ur.user_id = ? AND r.enabled = TRUE`

	roles := make([]string, 0, 4)
	if err := sqlx.SelectContext(ctx, db, &roles, q, userID); err != nil {
		return nil, err
	}
	return roles, nil
}

// RoleAllowed reports whether *any* of the candidate roles is permitted for the
// given component + action.
//
// Empty roles slice returns false, nil.
func RoleAllowed(ctx context.Context, db sqlx.QueryerContext, roles []string, component, action string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	q, args, err := sqlx.In(`SELECT 1
            FROM role_acl ra
            JOIN role r ON r.id = ra.role_id
           WHERE r.name IN (?)
             AND ra.component = ?
             AND ra.action   = ?
             AND ra.permitted = TRUE
           LIMIT 1`, roles, component, action)
	if err != nil {
		return false, err
	}

	var dummy int
	err = sqlx.GetContext(ctx, db, &dummy, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GrantRole binds a role to a user.  Unknown role names are ignored.
func GrantRole(ctx context.Context, db sqlx.ExecerContext, userID, role string) error {
	const q = `INSERT IGNORE INTO user_role (user_id, role_id)
               SELECT ?, id FROM role WHERE name = ?`
	_, err := db.ExecContext(ctx, q, userID, role)
	return err
}
