// internal/acl/middleware.go
//
// Chi middleware helpers that enforce RBAC.

package acl

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/formhandler"
	"github.com/yanizio/reviews/internal/logger"
)

// Guard builds route middleware over the role tables.
type Guard struct {
	DB        sqlx.QueryerContext
	Responder formhandler.Responder
	// TitleKey heads the permission page.
	TitleKey string
}

// RequireRole ensures the current user possesses ANY of the supplied roles.
func (g *Guard) RequireRole(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("acl.RequireRole: at least one role name must be supplied")
	}
	allowSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowSet[n] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles, ok := g.roles(w, r)
			if !ok {
				return
			}
			for _, rname := range roles {
				if _, ok := allowSet[rname]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			g.Responder.PermissionError(w, r, g.TitleKey, "missing role")
		})
	}
}

// RequirePermission verifies that the user's roles allow component/action.
func (g *Guard) RequirePermission(component, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles, ok := g.roles(w, r)
			if !ok {
				return
			}
			allowed, err := RoleAllowed(r.Context(), g.DB, roles, component, action)
			if err != nil {
				logger.FromContext(r.Context()).Errorw("acl role allowed", "err", err)
				g.Responder.Error(w, r, err)
				return
			}
			if !allowed {
				g.Responder.PermissionError(w, r, g.TitleKey, "missing role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// roles loads the current user's roles, rendering the failure when there is
// no user or the query fails.
func (g *Guard) roles(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		g.Responder.SignInRequired(w, r)
		return nil, false
	}
	roles, err := UserRoles(r.Context(), g.DB, uid)
	if err != nil {
		logger.FromContext(r.Context()).Errorw("acl user roles", "err", err)
		g.Responder.Error(w, r, err)
		return nil, false
	}
	return roles, true
}
