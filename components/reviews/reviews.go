// components/reviews/reviews.go
//
// Reviews component: listing, reading, writing, editing, and deleting
// reviews, plus the moderator pages.
//
// Context
//   The three form pages (create, edit, delete) share one formhandler table
//   over *review.Review.  Every action requires a signed-in user; edit and
//   delete load the review first and check the viewer's rights on it.
//   Creation can additionally be limited to trusted users.
//
// Routes
//   GET       /                       recent reviews
//   GET       /review/{id}            one review (JSON-LD in <head>)
//   GET|POST  /new/review             create
//   GET|POST  /review/{id}/edit       edit
//   GET|POST  /review/{id}/delete     delete
//   GET       /review/{id}/history    revisions (moderators, superusers)
//   GET       /moderation             recently deleted (reviews/moderate)
//
//------------------------------------------------------------------------------

package reviews

import (
	"context"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/reviews/internal/acl"
	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/component"
	"github.com/yanizio/reviews/internal/form"
	"github.com/yanizio/reviews/internal/formhandler"
	"github.com/yanizio/reviews/internal/head"
	"github.com/yanizio/reviews/internal/i18n"
	"github.com/yanizio/reviews/internal/resource"
	"github.com/yanizio/reviews/internal/review"
	"github.com/yanizio/reviews/internal/view"
)

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Store is the subset of *review.Store the component needs.
type Store interface {
	Get(ctx context.Context, id string) (*review.Review, error)
	Recent(ctx context.Context, limit int) ([]*review.Review, error)
	RecentlyDeleted(ctx context.Context, limit int) ([]*review.Review, error)
	Revisions(ctx context.Context, id string) ([]review.Revision, error)
	Create(ctx context.Context, r *review.Review) error
	Update(ctx context.Context, r *review.Review, userID string) error
	Delete(ctx context.Context, id, userID string) error
}

// Renderer renders pages and the shared failure pages.
type Renderer interface {
	formhandler.Responder
	Render(w http.ResponseWriter, r *http.Request, status int, name string, p view.Page)
}

// Options tune the component.
type Options struct {
	RequireTrusted bool
	RecentLimit    int
}

// Component encapsulates the review pages.
type Component struct {
	store   Store
	parser  *form.Parser
	defs    *form.Definitions
	view    Renderer
	guard   *acl.Guard
	catalog *i18n.Catalog
	opts    Options

	forms *formhandler.Handler[*review.Review]
}

// New wires the component.
func New(store Store, parser *form.Parser, defs *form.Definitions, v Renderer,
	guard *acl.Guard, cat *i18n.Catalog, opts Options) *Component {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 20
	}
	c := &Component{
		store:   store,
		parser:  parser,
		defs:    defs,
		view:    v,
		guard:   guard,
		catalog: cat,
		opts:    opts,
	}
	c.forms = formhandler.New(c.formConfig(), v)
	return c
}

/*────────────────── component.Component methods ───────────────────────────*/

// Name returns the canonical component key.
func (c *Component) Name() string { return "reviews" }

// Migrations creates the review tables.
func (c *Component) Migrations() []string { return review.Migrations }

// Routes registers the review pages.
func (c *Component) Routes(r chi.Router) {
	r.Get("/", c.index)
	r.Get("/review/{id}", c.show)
	r.Get("/new/review", c.action(formhandler.Create))
	r.Post("/new/review", c.action(formhandler.Create))
	r.Get("/review/{id}/edit", c.action(formhandler.Edit))
	r.Post("/review/{id}/edit", c.action(formhandler.Edit))
	r.Get("/review/{id}/delete", c.action(formhandler.Delete))
	r.Post("/review/{id}/delete", c.action(formhandler.Delete))

	r.With(c.guard.RequireRole(auth.RoleModerator, auth.RoleSuperUser)).
		Get("/review/{id}/history", c.history)
	r.With(c.guard.RequirePermission("reviews", "moderate")).
		Get("/moderation", c.moderation)
}

// formConfig builds the action table.  Every action needs a signed-in user.
func (c *Component) formConfig() *formhandler.Config[*review.Review] {
	createChecks := []formhandler.Check(nil)
	if c.opts.RequireTrusted {
		createChecks = append(createChecks, acl.UserIsTrusted)
	}
	return formhandler.NewConfig(map[formhandler.Action]formhandler.ActionSpec[*review.Review]{
		formhandler.Create: {
			Handlers: map[string]formhandler.VerbFunc[*review.Review]{
				http.MethodGet:  c.createForm,
				http.MethodPost: c.saveReview,
			},
			Checks:   createChecks,
			TitleKey: "add review",
		},
		formhandler.Edit: {
			Handlers: map[string]formhandler.VerbFunc[*review.Review]{
				http.MethodGet:  c.editForm,
				http.MethodPost: c.saveReview,
			},
			Load:       c.store.Get,
			Permission: acl.UserCanEdit[*review.Review],
			TitleKey:   "edit review",
		},
		formhandler.Delete: {
			Handlers: map[string]formhandler.VerbFunc[*review.Review]{
				http.MethodGet:  c.deleteForm,
				http.MethodPost: c.deleteReview,
			},
			Load:       c.store.Get,
			Permission: acl.UserCanDelete[*review.Review],
			TitleKey:   "delete review",
		},
	}, acl.UserIsSignedIn)
}

// action adapts one formhandler action to an http.HandlerFunc.
func (c *Component) action(a formhandler.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := c.forms.Execute(w, r, formhandler.Options{Action: a, ID: chi.URLParam(r, "id")})
		if err != nil {
			c.view.Error(w, r, err)
		}
	}
}

/*──────────────────────────── read-only pages ─────────────────────────────*/

// IndexData is the data of the "index" page.
type IndexData struct {
	Reviews []*review.Review
}

func (c *Component) index(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.Recent(r.Context(), c.opts.RecentLimit)
	if err != nil {
		c.view.Error(w, r, err)
		return
	}
	h := head.New()
	h.Description(c.catalog.Translate(i18n.Lang(r.Context()), "recent reviews"))
	c.view.Render(w, r, http.StatusOK, "index", view.Page{
		TitleKey: "recent reviews",
		Data:     IndexData{Reviews: list},
		Head:     h,
	})
}

func (c *Component) show(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rv, err := c.store.Get(r.Context(), id)
	switch {
	case resource.Unavailable(rv, err):
		c.view.NotFound(w, r, "review", id)
		return
	case err != nil:
		c.view.Error(w, r, err)
		return
	}
	rv.PopulateUserInfo(auth.CurrentUser(r.Context()))

	h := head.New()
	lang := i18n.Lang(r.Context())
	title, _ := rv.Title.Resolve(lang, c.catalog.Default())
	h.Description(html.UnescapeString(title))
	if err := h.JSONLD(structuredData(rv, lang, c.catalog.Default())); err != nil {
		c.view.Error(w, r, err)
		return
	}
	c.view.Render(w, r, http.StatusOK, "review", view.Page{TitleKey: "review", Data: rv, Head: h})
}

// HistoryData is the data of the "history" page.
type HistoryData struct {
	Review    *review.Review
	Revisions []review.Revision
}

// history lists a review's archived states.  Deleted reviews are included;
// moderators use this page to see what was removed.
func (c *Component) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rv, err := c.store.Get(r.Context(), id)
	switch {
	case resource.Unavailable(nil, err):
		c.view.NotFound(w, r, "revision history", id)
		return
	case err != nil:
		c.view.Error(w, r, err)
		return
	}
	revs, err := c.store.Revisions(r.Context(), id)
	if err != nil {
		c.view.Error(w, r, err)
		return
	}
	h := head.New()
	h.NoIndex()
	c.view.Render(w, r, http.StatusOK, "history", view.Page{
		TitleKey: "revision history",
		Data:     HistoryData{Review: rv, Revisions: revs},
		Head:     h,
	})
}

func (c *Component) moderation(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.RecentlyDeleted(r.Context(), c.opts.RecentLimit)
	if err != nil {
		c.view.Error(w, r, err)
		return
	}
	h := head.New()
	h.NoIndex()
	c.view.Render(w, r, http.StatusOK, "moderation", view.Page{TitleKey: "moderation", Data: list, Head: h})
}

/*──────────────────────────── structured data ─────────────────────────────*/

type ldThing struct {
	Type string `json:"@type"`
	URL  string `json:"url"`
}

type ldRating struct {
	Type        string `json:"@type"`
	RatingValue int    `json:"ratingValue"`
	BestRating  int    `json:"bestRating"`
	WorstRating int    `json:"worstRating"`
}

type ldPerson struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type ldReview struct {
	Context       string    `json:"@context"`
	Type          string    `json:"@type"`
	Name          string    `json:"name"`
	InLanguage    string    `json:"inLanguage,omitempty"`
	DatePublished string    `json:"datePublished"`
	ItemReviewed  ldThing   `json:"itemReviewed"`
	ReviewRating  ldRating  `json:"reviewRating"`
	Author        *ldPerson `json:"author,omitempty"`
}

// structuredData describes rv as a schema.org Review.
func structuredData(rv *review.Review, lang, fallback string) ldReview {
	title, used := rv.Title.Resolve(lang, fallback)
	ld := ldReview{
		Context:       "https://schema.org",
		Type:          "Review",
		Name:          html.UnescapeString(title),
		InLanguage:    used,
		DatePublished: rv.Created.Format("2006-01-02"),
		ItemReviewed:  ldThing{Type: "Thing", URL: rv.URL},
		ReviewRating:  ldRating{Type: "Rating", RatingValue: rv.StarRating, BestRating: 5, WorstRating: 1},
	}
	if rv.CreatorName != "" {
		ld.Author = &ldPerson{Type: "Person", Name: rv.CreatorName}
	}
	return ld
}
