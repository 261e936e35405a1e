// internal/auth/context.go
//
// Request identity.
//
// Context
//   The session cookie carries only a user id.  Middleware turns that id into
//   a *User once per request, and everything downstream (permission
//   predicates, templates, the error pipeline) asks CurrentUser instead of
//   touching the session.
//
// Usage
// -----
//     ctx = auth.WithUser(ctx, u)
//     if u := auth.CurrentUser(ctx); u != nil { … }
//
// Notes
// -----
// • A nil *User means anonymous.  Every method on User is nil-safe.
// • Oxford commas, two spaces after periods.

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/resource"
	"github.com/yanizio/reviews/internal/session"
)

// Role names granting the capability flags.
const (
	RoleTrusted   = "trusted"
	RoleModerator = "moderator"
	RoleSuperUser = "superuser"
)

// User is the signed-in identity.
type User struct {
	ID              string
	Name            string
	IsTrusted       bool
	IsSiteModerator bool
	IsSuperUser     bool
}

// ApplyRoles sets the capability flags from role names.  Moderators and
// superusers are implicitly trusted.
func (u *User) ApplyRoles(roles []string) {
	for _, r := range roles {
		switch r {
		case RoleTrusted:
			u.IsTrusted = true
		case RoleModerator:
			u.IsSiteModerator = true
		case RoleSuperUser:
			u.IsSuperUser = true
		}
	}
	if u.IsSiteModerator || u.IsSuperUser {
		u.IsTrusted = true
	}
}

// SignedIn reports whether u is a real user.
func (u *User) SignedIn() bool { return u != nil && u.ID != "" }

// userKey is unexported to avoid context-key collisions.
type userKey struct{}

// WithUser returns a new context carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// CurrentUser returns the request user, or nil when anonymous.
func CurrentUser(ctx context.Context) *User {
	u, _ := ctx.Value(userKey{}).(*User)
	return u
}

// UserID extracts the user id from ctx.
func UserID(ctx context.Context) (string, bool) {
	if u := CurrentUser(ctx); u.SignedIn() {
		return u.ID, true
	}
	return "", false
}

// Loader resolves a user id to an identity with roles applied.
type Loader interface {
	Identity(ctx context.Context, id string) (*User, error)
}

// Middleware attaches the session user to the request context.  A session
// pointing at a user that no longer exists is signed out.  It must run after
// the session middleware.
func Middleware(users Loader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.FromContext(r.Context())
			if s == nil || s.UserID == "" {
				next.ServeHTTP(w, r)
				return
			}

			u, err := users.Identity(r.Context(), s.UserID)
			switch {
			case errors.Is(err, resource.ErrNotFound):
				s.SignOut()
			case err != nil:
				logger.FromContext(r.Context()).Errorw("load session user", "uid", s.UserID, "err", err)
			default:
				r = r.WithContext(WithUser(r.Context(), u))
			}
			next.ServeHTTP(w, r)
		})
	}
}
