// internal/view/view.go
//
// HTML rendering for every page on the site.
//
// Context
//   Pages are html/template sets embedded in the binary.  Each set is the
//   shared layout, the shared partials, and one page file that defines
//   "content".  Sets are parsed once at start-up.  Per language the set is
//   cloned with a func-map bound to that language and kept in an LRU, so a
//   request never parses templates.
//
// Workflow
//   •  Render translates the page title, builds the <head>, pulls the flash
//      buckets, mints a CSRF token for the session, and executes the set into
//      a buffer.  Only a successful execution reaches the client.
//   •  NotFound, SignInRequired, PermissionError, and Error implement
//      formhandler.Responder on top of Render.
//
// Notes
//   Multilingual values (mlstring.String) are escaped when a form is parsed,
//   so the "mls" helper returns them as template.HTML.
//
//------------------------------------------------------------------------------

package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/cache"
	"github.com/yanizio/reviews/internal/form"
	"github.com/yanizio/reviews/internal/head"
	"github.com/yanizio/reviews/internal/i18n"
	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/message"
	"github.com/yanizio/reviews/internal/mlstring"
	"github.com/yanizio/reviews/internal/requestinfo"
	"github.com/yanizio/reviews/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Names of the page templates rendered by this package itself.
const (
	PageNotFound        = "404"
	PageSignInRequired  = "signin-required"
	PagePermissionError = "permission-error"
	PageError           = "error"
)

// Options configure a Renderer.
type Options struct {
	Catalog *i18n.Catalog
	CSRF    *form.CSRF
	// Dev shows error details to every visitor.
	Dev bool
	// CacheSize bounds the per-language template clones.  Zero means 64.
	CacheSize int
	// FS overrides the embedded templates (tests).
	FS fs.FS
}

// Renderer executes page templates.  It is safe for concurrent use.
type Renderer struct {
	opts  Options
	base  map[string]*template.Template
	clone *cache.LRU
}

// Page is what a handler passes to Render.
type Page struct {
	TitleKey    string
	TitleParams []string
	Data        any
	// Head may be nil; Render creates one.
	Head *head.Builder
}

// pageData is the dot value of every template.
type pageData struct {
	Title     string
	Lang      string
	Languages []string
	User      *auth.User
	CSRF      string
	Errors    []string
	Messages  []string
	Head      *head.Builder
	Path      string
	Dev       bool
	Data      any
}

// New parses every page under templates/.
func New(opts Options) (*Renderer, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("view: catalog is required")
	}
	if opts.FS == nil {
		sub, err := fs.Sub(templateFS, "templates")
		if err != nil {
			return nil, err
		}
		opts.FS = sub
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 64
	}

	pages, err := fs.Glob(opts.FS, "*.html")
	if err != nil {
		return nil, err
	}

	v := &Renderer{opts: opts, base: make(map[string]*template.Template), clone: cache.New(opts.CacheSize)}
	for _, p := range pages {
		name := strings.TrimSuffix(p, ".html")
		if name == "layout" || name == "partials" {
			continue
		}
		t, err := template.New("layout.html").
			Funcs(funcMap(opts.Catalog, opts.Catalog.Default())).
			ParseFS(opts.FS, "layout.html", "partials.html", p)
		if err != nil {
			return nil, fmt.Errorf("view: parse %s: %w", p, err)
		}
		v.base[name] = t
	}
	return v, nil
}

// lookup returns the set for name bound to lang.
func (v *Renderer) lookup(name, lang string) (*template.Template, error) {
	base, ok := v.base[name]
	if !ok {
		return nil, fmt.Errorf("view: no page %q", name)
	}
	t, err := v.clone.GetOrAdd(lang+"::"+name, func() (any, error) {
		c, err := base.Clone()
		if err != nil {
			return nil, err
		}
		return c.Funcs(funcMap(v.opts.Catalog, lang)), nil
	})
	if err != nil {
		return nil, err
	}
	return t.(*template.Template), nil
}

// Render writes page name with status.
func (v *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, p Page) {
	ctx := r.Context()
	lang := i18n.Lang(ctx)
	cat := v.opts.Catalog

	t, err := v.lookup(name, lang)
	if err != nil {
		v.fail(w, r, err)
		return
	}

	title := cat.Translate(lang, p.TitleKey, p.TitleParams...)
	h := p.Head
	if h == nil {
		h = head.New()
	}
	if p.TitleKey != "" {
		h.SetTitle(title + " - " + cat.Translate(lang, "site name"))
	} else {
		h.SetTitle(cat.Translate(lang, "site name"))
	}
	h.Alternates(r.URL.Path, cat.Languages())

	d := pageData{
		Title:     title,
		Lang:      lang,
		Languages: cat.Languages(),
		User:      auth.CurrentUser(ctx),
		Errors:    message.Pull(ctx, message.Errors),
		Messages:  message.Pull(ctx, message.Messages),
		Head:      h,
		Path:      r.URL.Path,
		Dev:       v.opts.Dev,
		Data:      p.Data,
	}
	if p.TitleKey == "" {
		d.Title = ""
	}
	if s := session.FromContext(ctx); s != nil && v.opts.CSRF != nil {
		if d.CSRF, err = v.opts.CSRF.Token(s.ID); err != nil {
			v.fail(w, r, err)
			return
		}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", d); err != nil {
		v.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// fail is the last resort when a page cannot be rendered at all.
func (v *Renderer) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Errorw("render failed", "path", r.URL.Path, "err", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

/*──────────────────────────── responder ───────────────────────────────────*/

// NotFound renders the 404 page for the record id.
func (v *Renderer) NotFound(w http.ResponseWriter, r *http.Request, titleKey, id string) {
	if titleKey == "" {
		titleKey = "page not found"
	}
	h := head.New()
	h.NoIndex()
	v.Render(w, r, http.StatusNotFound, PageNotFound, Page{TitleKey: titleKey, Data: id, Head: h})
}

// SignInRequired renders the sign-in prompt with a 401.
func (v *Renderer) SignInRequired(w http.ResponseWriter, r *http.Request) {
	h := head.New()
	h.NoIndex()
	v.Render(w, r, http.StatusUnauthorized, PageSignInRequired, Page{
		TitleKey: "sign in",
		Data:     r.URL.RequestURI(),
		Head:     h,
	})
}

// PermissionError renders a 403 explaining detailsKey.
func (v *Renderer) PermissionError(w http.ResponseWriter, r *http.Request, titleKey, detailsKey string) {
	if titleKey == "" {
		titleKey = "permission error"
	}
	h := head.New()
	h.NoIndex()
	v.Render(w, r, http.StatusForbidden, PagePermissionError, Page{TitleKey: titleKey, Data: detailsKey, Head: h})
}

// ErrorData is the dot.Data of the error page.
type ErrorData struct {
	ID      string
	Details string // empty unless the viewer may see it
}

// Error logs err under a fresh error id and renders a 500.  Developers and
// trusted users see the error text.
func (v *Renderer) Error(w http.ResponseWriter, r *http.Request, err error) {
	id := uuid.NewString()
	fields := []any{"error_id", id, "path", r.URL.Path, "err", err}
	if info := requestinfo.FromContext(r.Context()); info != nil {
		fields = append(fields, "browser", info.UA.Browser, "country", info.Geo.CountryISO)
	}
	logger.FromContext(r.Context()).Errorw("request failed", fields...)

	d := ErrorData{ID: id}
	if u := auth.CurrentUser(r.Context()); v.opts.Dev || (u.SignedIn() && u.IsTrusted) {
		d.Details = err.Error()
	}
	h := head.New()
	h.NoIndex()
	v.Render(w, r, http.StatusInternalServerError, PageError, Page{TitleKey: "something went wrong", Data: d, Head: h})
}

/*──────────────────────────── template helpers ────────────────────────────*/

// funcMap binds the language-dependent helpers to lang.
func funcMap(cat *i18n.Catalog, lang string) template.FuncMap {
	return template.FuncMap{
		"t": func(key string, params ...any) string {
			ps := make([]string, len(params))
			for i, p := range params {
				ps[i] = fmt.Sprint(p)
			}
			return cat.Translate(lang, key, ps...)
		},
		"mls": func(s mlstring.String) template.HTML {
			v, _ := s.Resolve(lang, cat.Default())
			return template.HTML(v) //nolint:gosec // escaped or sanitised on input
		},
		"mlsLang": func(s mlstring.String) string {
			_, l := s.Resolve(lang, cat.Default())
			return l
		},
		"date": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
		"stars": stars,
		"dict":  dict,
		"seq":   seq,
	}
}

// stars renders n filled and 5-n empty stars.
func stars(n int) string {
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

// dict builds a map in templates: {{ dict "k" 1 "k2" "v" }}.
func dict(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		m[key] = kv[i+1]
	}
	return m
}

// seq returns 1..n, for rating selects.
func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
