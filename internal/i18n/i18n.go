// internal/i18n/i18n.go
//
// Message catalogs and request language.
//
// Context
//   Every user-visible string is a message key ("need review-title",
//   "invalid url", …).  Catalogs live in embedded YAML files, one per
//   language, and are loaded into a go-playground universal translator so
//   that positional parameters ({0}, {1}) work the same way everywhere.
//
// Workflow
//   •  New loads the catalog for each configured language; the first one is
//      the fallback for keys a translation lacks.
//   •  Middleware decides the request language: ?uselang= (persisted to the
//      session), then the session choice, then Accept-Language.
//   •  T translates a key in the request language.  A key missing from every
//      catalog is returned unchanged.
//
//------------------------------------------------------------------------------

package i18n

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/de"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/session"
)

//go:embed locales/*.yaml
var catalogFS embed.FS

// Known locale implementations.  A configured language must appear here.
var known = map[string]func() locales.Translator{
	"en": en.New,
	"de": de.New,
	"fr": fr.New,
}

// Catalog translates message keys for a fixed set of languages.
type Catalog struct {
	langs   []string
	uni     *ut.UniversalTranslator
	matcher language.Matcher
	arity   map[string]int // placeholders per key, across languages
}

// New loads the catalogs for langs.  langs[0] is the default language.
func New(langs []string) (*Catalog, error) {
	if len(langs) == 0 {
		return nil, fmt.Errorf("i18n: no languages configured")
	}

	var trs []locales.Translator
	tags := make([]language.Tag, 0, len(langs))
	for _, l := range langs {
		mk, ok := known[l]
		if !ok {
			return nil, fmt.Errorf("i18n: unsupported language %q", l)
		}
		trs = append(trs, mk())
		tags = append(tags, language.Make(l))
	}

	c := &Catalog{
		langs:   append([]string(nil), langs...),
		uni:     ut.New(trs[0], trs...),
		matcher: language.NewMatcher(tags),
		arity:   make(map[string]int),
	}

	for _, l := range langs {
		if err := c.load(l); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) load(lang string) error {
	raw, err := catalogFS.ReadFile("locales/" + lang + ".yaml")
	if err != nil {
		return fmt.Errorf("i18n: catalog %s: %w", lang, err)
	}
	var msgs map[string]string
	if err := yaml.Unmarshal(raw, &msgs); err != nil {
		return fmt.Errorf("i18n: parse %s: %w", lang, err)
	}
	tr, _ := c.uni.GetTranslator(lang)
	for k, v := range msgs {
		if err := tr.Add(k, v, true); err != nil {
			return fmt.Errorf("i18n: %s %q: %w", lang, k, err)
		}
		for n := 0; strings.Contains(v, "{"+strconv.Itoa(n)+"}"); n++ {
			if n+1 > c.arity[k] {
				c.arity[k] = n + 1
			}
		}
	}
	return nil
}

// Languages returns the configured languages, default first.
func (c *Catalog) Languages() []string { return append([]string(nil), c.langs...) }

// Default is the fallback language.
func (c *Catalog) Default() string { return c.langs[0] }

// Supported reports whether lang is one of the configured languages.
func (c *Catalog) Supported(lang string) bool {
	for _, l := range c.langs {
		if l == lang {
			return true
		}
	}
	return false
}

// Has reports whether key has a translation in lang or the default language.
func (c *Catalog) Has(lang, key string) bool {
	_, ok := c.lookup(lang, key)
	return ok
}

// Translate returns key in lang, falling back to the default language and
// finally to key itself.
func (c *Catalog) Translate(lang, key string, params ...string) string {
	if s, ok := c.lookup(lang, key, params...); ok {
		return s
	}
	return key
}

func (c *Catalog) lookup(lang, key string, params ...string) (string, bool) {
	// The translator indexes params blindly, so short lists are padded.
	if n := c.arity[key]; len(params) < n {
		params = append(append(make([]string, 0, n), params...), make([]string, n-len(params))...)
	}
	for _, l := range []string{lang, c.langs[0]} {
		tr, found := c.uni.GetTranslator(l)
		if !found {
			continue
		}
		if s, err := tr.T(key, params...); err == nil {
			return s, true
		}
	}
	return "", false
}

// Negotiate picks the best configured language for an Accept-Language
// header value.
func (c *Catalog) Negotiate(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.langs[0]
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return c.langs[0]
	}
	return c.langs[idx]
}

/*──────────────────────────── request language ────────────────────────────*/

type ctxKey struct{}

type state struct {
	cat  *Catalog
	lang string
}

// NewContext binds cat and lang to ctx.
func NewContext(ctx context.Context, cat *Catalog, lang string) context.Context {
	return context.WithValue(ctx, ctxKey{}, state{cat: cat, lang: lang})
}

// Lang returns the request language, or "en" outside a request.
func Lang(ctx context.Context) string {
	if st, ok := ctx.Value(ctxKey{}).(state); ok {
		return st.lang
	}
	return "en"
}

// FromContext returns the catalog bound to ctx, or nil.
func FromContext(ctx context.Context) *Catalog {
	st, _ := ctx.Value(ctxKey{}).(state)
	return st.cat
}

// T translates key in the request language.
func T(ctx context.Context, key string, params ...string) string {
	st, ok := ctx.Value(ctxKey{}).(state)
	if !ok || st.cat == nil {
		return key
	}
	return st.cat.Translate(st.lang, key, params...)
}

// Middleware resolves the request language and stores it in the context.
// It must run after the session middleware.
func (c *Catalog) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		lang := ""

		if q := r.URL.Query().Get("uselang"); q != "" {
			if c.Supported(q) {
				lang = q
				if sess != nil {
					sess.SetLang(q)
				}
			} else {
				logger.FromContext(r.Context()).Debugw("uselang ignored", "lang", q)
			}
		}
		if lang == "" && sess != nil && c.Supported(sess.Lang) {
			lang = sess.Lang
		}
		if lang == "" {
			lang = c.Negotiate(r.Header.Get("Accept-Language"))
		}

		w.Header().Add("Vary", "Accept-Language")
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), c, lang)))
	})
}
