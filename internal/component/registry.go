// internal/component/registry.go
//
// Component registry.
//
// Each feature area lives under components/<name> and is constructed in
// cmd/web with its dependencies, then handed to a Registry.  The registry
// collects every component's schema migrations and mounts its routes at "/"
// on one chi router.

package component

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/reviews/internal/database"
)

// Component contract.
//
// Migrations() may return nil if the component has no schema of its own.
// Routes() registers the component's pages directly on r:
//
//	r.Get("/signin", c.signinForm)
//	r.Post("/signin", c.signin)
type Component interface {
	Name() string
	Routes(r chi.Router)
	Migrations() []string
}

// Registry holds components in registration order.
type Registry struct {
	comps []Component
	names map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Register adds c.  Names must be unique.
func (g *Registry) Register(c Component) error {
	if g.names[c.Name()] {
		return fmt.Errorf("component %q registered twice", c.Name())
	}
	g.names[c.Name()] = true
	g.comps = append(g.comps, c)
	return nil
}

// Names lists the registered components, sorted.
func (g *Registry) Names() []string {
	out := make([]string, 0, len(g.comps))
	for _, c := range g.comps {
		out = append(out, c.Name())
	}
	sort.Strings(out)
	return out
}

// Migrate runs base first, then each component's migrations in
// registration order.
func (g *Registry) Migrate(ctx context.Context, db *sqlx.DB, base ...[]string) error {
	for _, stmts := range base {
		if err := database.Migrate(ctx, db, stmts); err != nil {
			return err
		}
	}
	for _, c := range g.comps {
		if err := database.Migrate(ctx, db, c.Migrations()); err != nil {
			return fmt.Errorf("component %s: %w", c.Name(), err)
		}
	}
	return nil
}

// Mount registers every component's routes on r.
func (g *Registry) Mount(r chi.Router) {
	for _, c := range g.comps {
		c.Routes(r)
	}
}
