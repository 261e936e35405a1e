// internal/form/parse.go
//
// Submission parsing.
//
// Context
//   Handlers never read r.PostForm directly.  They hand the request and a
//   Schema to Parser.Parse, which returns a Submission: four verdicts plus
//   the transformed values.  Validation problems are not errors.  Each one
//   queues a localised flash message in the "pageErrors" bucket and flips a
//   verdict, so the caller simply re-renders the form when !sub.OK().
//
// Workflow
//   1.  Clone the schema and append "_csrf" (and the CAPTCHA pair when the
//       form key opts in).  All appended fields are required and never
//       emitted.
//   2.  Walk the schema: enforce required-ness and length rules, then
//       transform by type.
//   3.  Flag posted keys the schema does not know.
//   4.  Compare the CAPTCHA answer in the submission language.
//
// Notes
//   Only a failure to read the body is returned as an error.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"html"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/yanizio/reviews/internal/i18n"
	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/message"
	"github.com/yanizio/reviews/internal/metrics"
	"github.com/yanizio/reviews/internal/mlstring"
)

// Names the parser appends to every schema.
const (
	csrfField          = "_csrf"
	captchaIDField     = "captcha-id"
	captchaAnswerField = "captcha-answer"
)

// CSRFField is the hidden input name templates must use.
const CSRFField = csrfField

// Options tune one Parse call.
type Options struct {
	// FormKey selects the CAPTCHA configuration and labels metrics.
	FormKey string
	// Language is the language text values are stored under.  Empty means
	// the request language.
	Language string
	// SkipRequiredCheck lists field names that are neither enforced nor
	// emitted.
	SkipRequiredCheck []string
}

// Submission is the outcome of parsing one request.
type Submission struct {
	HasRequiredFields bool
	HasUnknownFields  bool
	// HasInvalidValues is set when a present value broke a length rule or
	// failed its type check (number, url) and was dropped.
	HasInvalidValues bool
	// HasCorrectCaptcha is nil when the form has no CAPTCHA.
	HasCorrectCaptcha *bool
	FormValues        map[string]any
}

// OK reports whether the submission can be acted on.
func (s *Submission) OK() bool {
	return s.HasRequiredFields && !s.HasUnknownFields && !s.HasInvalidValues &&
		(s.HasCorrectCaptcha == nil || *s.HasCorrectCaptcha)
}

// Parser is safe for concurrent use.
type Parser struct {
	captcha  *Captcha
	markdown *MarkdownRenderer
	validate *validator.Validate
}

// NewParser wires the parser.  captcha may be nil.
func NewParser(captcha *Captcha, md *MarkdownRenderer) *Parser {
	if md == nil {
		md = NewMarkdownRenderer()
	}
	return &Parser{captcha: captcha, markdown: md, validate: validator.New()}
}

// Captcha exposes the CAPTCHA configuration for form rendering.
func (p *Parser) Captcha() *Captcha { return p.captcha }

// Markdown exposes the renderer used for markdown fields.
func (p *Parser) Markdown() *MarkdownRenderer { return p.markdown }

// Parse validates and transforms the body of r against schema.
func (p *Parser) Parse(r *http.Request, schema Schema, opts Options) (*Submission, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	ctx := r.Context()
	posted := r.PostForm

	lang := opts.Language
	if lang == "" {
		lang = i18n.Lang(ctx)
	}

	fields := schema.Clone()
	fields = append(fields, Field{Name: csrfField, Type: Raw, Required: true, SkipValue: true})

	withCaptcha := p.captcha.Enabled(opts.FormKey)
	if withCaptcha {
		fields = append(fields,
			Field{Name: captchaIDField, Type: Raw, Required: true, SkipValue: true},
			Field{Name: captchaAnswerField, Type: Raw, Required: true, SkipValue: true},
		)
	}

	skip := make(map[string]bool, len(opts.SkipRequiredCheck))
	for _, n := range opts.SkipRequiredCheck {
		skip[n] = true
	}

	sub := &Submission{HasRequiredFields: true, FormValues: make(map[string]any)}

	for _, f := range fields {
		if skip[f.Name] {
			continue
		}
		raw := posted.Get(f.Name)
		present := strings.TrimSpace(raw) != ""

		if !present {
			if f.Required {
				sub.HasRequiredFields = false
				flash(ctx, needKey(ctx, f.Name), f.Name)
				continue
			}
			if f.Type == Boolean && !f.SkipValue {
				sub.FormValues[f.OutKey()] = false
			}
			continue
		}
		if key := f.lengthKey(utf8.RuneCountInString(strings.TrimSpace(raw))); key != "" {
			sub.HasInvalidValues = true
			flash(ctx, key, fieldLabel(ctx, f), strconv.Itoa(lengthLimit(f, key)))
			continue
		}
		if f.SkipValue {
			continue
		}
		if !p.transform(ctx, sub.FormValues, f, raw, lang) {
			sub.HasInvalidValues = true
		}
	}

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}
	for k := range posted {
		if !known[k] {
			sub.HasUnknownFields = true
			logger.FromContext(ctx).Debugw("unexpected form key", "form", opts.FormKey, "key", k)
		}
	}
	if sub.HasUnknownFields {
		flash(ctx, "unexpected form data")
	}

	if withCaptcha {
		translate := func(key string) string { return translateIn(ctx, lang, key) }
		v := p.captcha.check(posted.Get(captchaIDField), posted.Get(captchaAnswerField), translate)
		switch v {
		case captchaUnknown:
			flash(ctx, "unknown captcha")
		case captchaWrong:
			flash(ctx, "incorrect captcha answer")
		}
		ok := v == captchaCorrect
		sub.HasCorrectCaptcha = &ok
	}

	metrics.FormSubmissions.WithLabelValues(opts.FormKey, outcome(sub)).Inc()
	return sub, nil
}

// transform stores the converted value of f, or flashes why it cannot and
// returns false.
func (p *Parser) transform(ctx context.Context, out map[string]any, f Field, raw, lang string) bool {
	switch f.Type {
	case Number:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			flash(ctx, "invalid number", f.Name)
			return false
		}
		out[f.OutKey()] = n

	case URL:
		u, ok := NormalizeURL(raw)
		if !ok || p.validate.Var(u, "url") != nil {
			flash(ctx, "invalid url")
			return false
		}
		// The stored form is percent-encoded and may outgrow the raw input.
		if key := f.lengthKey(utf8.RuneCountInString(u)); key == "too long" {
			flash(ctx, key, fieldLabel(ctx, f), strconv.Itoa(f.MaxLength))
			return false
		}
		out[f.OutKey()] = u

	case Text:
		out[f.OutKey()] = mlstring.String{lang: html.EscapeString(strings.TrimSpace(raw))}

	case Markdown:
		src := strings.TrimSpace(raw)
		rendered, err := p.markdown.Render(src)
		if err != nil {
			logger.FromContext(ctx).Warnw("markdown render failed", "field", f.Name, "err", err)
		}
		text := mlstring.String{lang: html.EscapeString(src)}
		htm := mlstring.String{lang: rendered}
		if f.Flat {
			out[f.OutKey()] = text
			out[f.OutHTMLKey()] = htm
		} else {
			out[f.OutKey()] = map[string]any{"text": text, "html": htm}
		}

	case Boolean:
		out[f.OutKey()] = true

	default:
		out[f.OutKey()] = raw
	}
	return true
}

// NormalizeURL trims raw, adds a missing http scheme, lowercases scheme and
// host, drops default ports and the fragment, and returns the
// percent-encoded form.
func NormalizeURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host, port := strings.ToLower(u.Hostname()), u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment, u.RawFragment = "", ""
	u.RawQuery = escapeQuery(u.RawQuery)
	return u.String(), true
}

// escapeQuery percent-encodes every byte of q outside the RFC 3986 query
// set.  Existing %XX escapes are kept; a stray '%' becomes %25.
func escapeQuery(q string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '%' && i+2 < len(q) && isHex(q[i+1]) && isHex(q[i+2]):
			b.WriteByte(c)
		case c != '%' && queryByte(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func queryByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~!$&'()*+,;=:@/?", c) >= 0
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// fieldLabel names f in messages: its translated label, or its posted name.
func fieldLabel(ctx context.Context, f Field) string {
	if f.Label == "" {
		return f.Name
	}
	return i18n.T(ctx, f.Label)
}

func lengthLimit(f Field, key string) int {
	if key == "too short" {
		return f.MinLength
	}
	return f.MaxLength
}

func flash(ctx context.Context, key string, params ...string) {
	message.Add(ctx, message.Errors, i18n.T(ctx, key, params...))
}

// needKey prefers a field-specific message and falls back to the generic
// one, which takes the field name as its parameter.
func needKey(ctx context.Context, name string) string {
	key := "need " + name
	if cat := i18n.FromContext(ctx); cat == nil || cat.Has(i18n.Lang(ctx), key) {
		return key
	}
	return "need field"
}

func translateIn(ctx context.Context, lang, key string) string {
	if cat := i18n.FromContext(ctx); cat != nil {
		return cat.Translate(lang, key)
	}
	return key
}

func outcome(s *Submission) string {
	switch {
	case !s.HasRequiredFields:
		return "missing"
	case s.HasUnknownFields:
		return "unknown"
	case s.HasInvalidValues:
		return "invalid"
	case s.HasCorrectCaptcha != nil && !*s.HasCorrectCaptcha:
		return "captcha"
	default:
		return "ok"
	}
}
