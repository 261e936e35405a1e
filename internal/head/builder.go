// internal/head/builder.go
//
// The Builder collects everything that should appear inside a page's
// <head> element.  It is scoped to a single render.  Handlers push tags into
// it and the layout template decides where to emit each slice.
//
// Features
// --------
//   - SetTitle             – single <title> tag (last call wins).
//   - Meta, Link           – arbitrary pre-built tags with deduplication.
//   - Description, NoIndex – common meta tags.
//   - Alternates           – <link rel="alternate" hreflang> per language.
//   - JSONLD               – marshals structured data into
//     <script type="application/ld+json">…</script>.
package head

import (
	"encoding/json"
	"html/template"
	"net/url"
	"strings"
	"sync"
)

// Builder is guarded by a mutex so partial renders may share it, though
// typical use is one goroutine per request.
type Builder struct {
	mu sync.Mutex

	title string

	metas  []string
	links  []string
	jsonLD []string

	seen map[string]struct{}
}

func New() *Builder {
	return &Builder{seen: make(map[string]struct{})}
}

// SetTitle overrides the page <title>.  The last caller wins.
func (b *Builder) SetTitle(t string) {
	b.mu.Lock()
	b.title = t
	b.mu.Unlock()
}

// Title returns a fully formed <title> tag or an empty string.
func (b *Builder) Title() template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.title == "" {
		return ""
	}
	return template.HTML("<title>" + template.HTMLEscapeString(b.title) + "</title>")
}

func (b *Builder) Meta(tag string) { b.add("meta:"+tag, &b.metas, tag) }
func (b *Builder) Link(tag string) { b.add("link:"+tag, &b.links, tag) }

// Description adds <meta name="description">.
func (b *Builder) Description(s string) {
	b.Meta(`<meta name="description" content="` + template.HTMLEscapeString(s) + `">`)
}

// NoIndex keeps error and form pages out of search indexes.
func (b *Builder) NoIndex() {
	b.Meta(`<meta name="robots" content="noindex">`)
}

// Alternates links every language version of path (?uselang=<lang>).
func (b *Builder) Alternates(path string, langs []string) {
	for _, l := range langs {
		u := url.URL{Path: path, RawQuery: url.Values{"uselang": {l}}.Encode()}
		b.Link(`<link rel="alternate" hreflang="` + template.HTMLEscapeString(l) +
			`" href="` + template.HTMLEscapeString(u.String()) + `">`)
	}
}

// JSONLD adds one structured-data block.  v is marshalled with HTML
// escaping, so the output cannot close the script element.
func (b *Builder) JSONLD(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	js := string(raw)
	b.add("jsonld:"+js, &b.jsonLD, js)
	return nil
}

func (b *Builder) add(key string, tgt *[]string, tag string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.seen[key]; dup {
		return
	}
	b.seen[key] = struct{}{}
	*tgt = append(*tgt, tag)
}

// ------------------------------------------------------------------
// Rendering helpers called from the layout
// ------------------------------------------------------------------

func (b *Builder) Metas() template.HTML { return b.concat(b.metas) }
func (b *Builder) Links() template.HTML { return b.concat(b.links) }

// JSON returns all JSON-LD blocks wrapped in <script> tags.
func (b *Builder) JSON() template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	for _, js := range b.jsonLD {
		sb.WriteString(`<script type="application/ld+json">`)
		sb.WriteString(js)
		sb.WriteString(`</script>`)
	}
	return template.HTML(sb.String())
}

// concat joins pre-escaped tags without a separator.
func (b *Builder) concat(sl []string) template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	return template.HTML(strings.Join(sl, ""))
}
