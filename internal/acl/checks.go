// internal/acl/checks.go
//
// Permission predicates for form actions.
//
// Context
//   The predicates plug into formhandler action tables: the identity checks
//   as pre-flight Checks, the record checks as PermissionChecks.  Each one
//   renders its own failure (sign-in page or permission page) and returns
//   false; on success it returns true and touches nothing.
//
//------------------------------------------------------------------------------

package acl

import (
	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/formhandler"
)

// Permissioned is a record that can compute what the viewer may do with it.
type Permissioned interface {
	PopulateUserInfo(u *auth.User)
	UserCanEdit() bool
	UserCanDelete() bool
}

// UserIsSignedIn requires a signed-in visitor.
func UserIsSignedIn(c *formhandler.Context) bool {
	if auth.CurrentUser(c.Ctx()).SignedIn() {
		return true
	}
	c.Responder.SignInRequired(c.W, c.R)
	return false
}

// UserIsTrusted requires a trusted (or more privileged) visitor.
func UserIsTrusted(c *formhandler.Context) bool {
	u := auth.CurrentUser(c.Ctx())
	if u.SignedIn() && u.IsTrusted {
		return true
	}
	c.Responder.PermissionError(c.W, c.R, c.TitleKey, "must be trusted")
	return false
}

// UserCanEdit requires edit rights on res.
func UserCanEdit[T Permissioned](c *formhandler.Context, res T) bool {
	res.PopulateUserInfo(auth.CurrentUser(c.Ctx()))
	if res.UserCanEdit() {
		return true
	}
	c.Responder.PermissionError(c.W, c.R, c.TitleKey, "cannot edit")
	return false
}

// UserCanDelete requires delete rights on res.
func UserCanDelete[T Permissioned](c *formhandler.Context, res T) bool {
	res.PopulateUserInfo(auth.CurrentUser(c.Ctx()))
	if res.UserCanDelete() {
		return true
	}
	c.Responder.PermissionError(c.W, c.R, c.TitleKey, "cannot delete")
	return false
}
