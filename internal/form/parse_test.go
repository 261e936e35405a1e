package form

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/reviews/internal/i18n"
	"github.com/yanizio/reviews/internal/message"
	"github.com/yanizio/reviews/internal/mlstring"
	"github.com/yanizio/reviews/internal/session"
)

type reqEnv struct {
	r    *http.Request
	sess *session.Session
}

func postRequest(t *testing.T, lang string, body url.Values) reqEnv {
	t.Helper()
	cat, err := i18n.New([]string{"en", "de", "fr"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	s := session.New()
	ctx := session.NewContext(r.Context(), s)
	ctx = i18n.NewContext(ctx, cat, lang)
	return reqEnv{r: r.WithContext(ctx), sess: s}
}

func (e reqEnv) errors() []string {
	return message.Peek(e.r.Context(), message.Errors)
}

func TestParseMissingRequiredText(t *testing.T) {
	env := postRequest(t, "en", url.Values{"_csrf": {"tok"}})
	schema := Schema{{Name: "review-title", Type: Text, Required: true}}

	sub, err := NewParser(nil, nil).Parse(env.r, schema, Options{})
	require.NoError(t, err)

	assert.False(t, sub.HasRequiredFields)
	assert.Empty(t, sub.FormValues)
	assert.False(t, sub.OK())
	assert.Equal(t, []string{"Please give your review a title."}, env.errors())
}

func TestParseMissingFieldUsesGenericMessage(t *testing.T) {
	env := postRequest(t, "en", url.Values{"_csrf": {"tok"}})
	schema := Schema{{Name: "nickname", Type: Raw, Required: true}}

	_, err := NewParser(nil, nil).Parse(env.r, schema, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Please fill in the field nickname."}, env.errors())
}

func TestParseMissingCSRFIsRequired(t *testing.T) {
	env := postRequest(t, "en", url.Values{"a": {"1"}})
	sub, err := NewParser(nil, nil).Parse(env.r, Schema{{Name: "a", Type: Raw}}, Options{})
	require.NoError(t, err)

	assert.False(t, sub.HasRequiredFields)
	assert.NotContains(t, sub.FormValues, CSRFField)
	assert.Equal(t, "1", sub.FormValues["a"])
}

func TestParseMarkdownNested(t *testing.T) {
	src := "  Some **bold** words <script>alert(1)</script>  "
	env := postRequest(t, "de", url.Values{"_csrf": {"tok"}, "body": {src}})
	p := NewParser(nil, nil)

	sub, err := p.Parse(env.r, Schema{{Name: "body", Key: "text", Type: Markdown, Required: true}}, Options{})
	require.NoError(t, err)
	require.True(t, sub.OK())

	want, err := p.Markdown().Render(strings.TrimSpace(src))
	require.NoError(t, err)

	got, ok := sub.FormValues["text"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, mlstring.String{"de": "Some **bold** words &lt;script&gt;alert(1)&lt;/script&gt;"}, got["text"])
	assert.Equal(t, mlstring.String{"de": want}, got["html"])
	assert.Contains(t, want, "<strong>bold</strong>")
	assert.NotContains(t, want, "<script>")
}

func TestParseMarkdownFlat(t *testing.T) {
	env := postRequest(t, "en", url.Values{"_csrf": {"tok"}, "review-text": {"*hi*"}})
	p := NewParser(nil, nil)

	sub, err := p.Parse(env.r, Schema{{Name: "review-text", Key: "text", Type: Markdown, Flat: true}}, Options{})
	require.NoError(t, err)

	want, _ := p.Markdown().Render("*hi*")
	assert.Equal(t, mlstring.String{"en": "*hi*"}, sub.FormValues["text"])
	assert.Equal(t, mlstring.String{"en": want}, sub.FormValues["html"])
}

func TestParseUnknownFields(t *testing.T) {
	env := postRequest(t, "en", url.Values{"_csrf": {"tok"}, "a": {"1"}, "sneaky": {"x"}})

	sub, err := NewParser(nil, nil).Parse(env.r, Schema{{Name: "a", Type: Raw}}, Options{})
	require.NoError(t, err)

	assert.True(t, sub.HasUnknownFields)
	assert.True(t, sub.HasRequiredFields)
	assert.False(t, sub.OK())
	assert.Equal(t, "1", sub.FormValues["a"], "parsing continues")
	assert.Equal(t, []string{"The form contained unexpected data."}, env.errors())
}

func TestParseTypes(t *testing.T) {
	env := postRequest(t, "en", url.Values{
		"_csrf":  {"tok"},
		"rating": {" 4.5 "},
		"site":   {"Example.COM:80/a b#frag"},
		"title":  {"  <b>Hi</b> "},
		"flag":   {"on"},
		"extra":  {" raw "},
		"shade":  {" #ff0000 "},
		"body":   {"*hi*"},
	})
	schema := Schema{
		{Name: "rating", Key: "starRating", Type: Number},
		{Name: "site", Key: "url", Type: URL},
		{Name: "title", Type: Text},
		{Name: "flag", Type: Boolean},
		{Name: "absent", Type: Boolean},
		{Name: "extra", Type: Raw},
		{Name: "shade", Type: "color"},
		{Name: "body", Key: "summary", Type: Markdown, Flat: true, HTMLKey: "summaryHTML"},
	}

	p := NewParser(nil, nil)
	sub, err := p.Parse(env.r, schema, Options{})
	require.NoError(t, err)
	require.True(t, sub.OK(), env.errors())

	rendered, err := p.Markdown().Render("*hi*")
	require.NoError(t, err)

	want := map[string]any{
		"starRating":  4.5,
		"url":         "http://example.com/a%20b",
		"title":       mlstring.String{"en": "&lt;b&gt;Hi&lt;/b&gt;"},
		"flag":        true,
		"absent":      false,
		"extra":       " raw ",
		"shade":       " #ff0000 ",
		"summary":     mlstring.String{"en": "*hi*"},
		"summaryHTML": mlstring.String{"en": rendered},
	}
	if diff := cmp.Diff(want, sub.FormValues); diff != "" {
		t.Fatalf("FormValues mismatch (-want +got):\n%s", diff)
	}
	assert.NotContains(t, sub.FormValues, "html")
}

func TestParseLengthRules(t *testing.T) {
	schema := Schema{
		{Name: "nick", Type: Text, MinLength: 3, MaxLength: 5},
		{Name: "site", Type: URL, MaxLength: 30, Label: "label url"},
	}
	cases := []struct {
		name    string
		nick    string
		site    string
		ok      bool
		flashes []string
	}{
		{"fits", " abc ", "example.com", true, nil},
		{"counts characters", "äöüß", "example.com", true, nil},
		{"too short", "ab", "example.com", false, []string{"nick must be at least 3 characters long."}},
		{"too long", "abcdef", "example.com", false, []string{"nick must be at most 5 characters long."}},
		{"url too long once encoded", "abc", "example.com/?q=ü ü", false, []string{"URL must be at most 30 characters long."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := postRequest(t, "en", url.Values{"_csrf": {"tok"}, "nick": {tc.nick}, "site": {tc.site}})
			sub, err := NewParser(nil, nil).Parse(env.r, schema, Options{})
			require.NoError(t, err)

			assert.Equal(t, tc.ok, sub.OK())
			assert.Equal(t, !tc.ok, sub.HasInvalidValues)
			assert.Equal(t, tc.flashes, env.errors())
		})
	}
}

func TestParseInvalidValues(t *testing.T) {
	env := postRequest(t, "en", url.Values{
		"_csrf":  {"tok"},
		"rating": {"lots"},
		"site":   {"http://"},
	})
	schema := Schema{
		{Name: "rating", Type: Number, Required: true},
		{Name: "site", Type: URL, Required: true},
	}

	sub, err := NewParser(nil, nil).Parse(env.r, schema, Options{})
	require.NoError(t, err)

	assert.True(t, sub.HasRequiredFields)
	assert.True(t, sub.HasInvalidValues)
	assert.False(t, sub.OK())
	assert.Empty(t, sub.FormValues)
	assert.Equal(t, []string{
		"Please enter a valid number for rating.",
		"Please enter a valid URL.",
	}, env.errors())
}

func TestParseSkipRequiredCheck(t *testing.T) {
	env := postRequest(t, "en", url.Values{"_csrf": {"tok"}, "b": {"given"}})
	schema := Schema{
		{Name: "a", Type: Raw, Required: true},
		{Name: "b", Type: Raw, Required: true},
	}

	sub, err := NewParser(nil, nil).Parse(env.r, schema, Options{SkipRequiredCheck: []string{"a", "b"}})
	require.NoError(t, err)

	assert.True(t, sub.HasRequiredFields)
	assert.Empty(t, sub.FormValues, "exempt fields emit nothing")
}

func TestParseLanguageOption(t *testing.T) {
	env := postRequest(t, "en", url.Values{"_csrf": {"tok"}, "title": {"Salut"}})
	sub, err := NewParser(nil, nil).Parse(env.r, Schema{{Name: "title", Type: Text}}, Options{Language: "fr"})
	require.NoError(t, err)
	assert.Equal(t, mlstring.String{"fr": "Salut"}, sub.FormValues["title"])
}

func TestParseDoesNotMutateSchema(t *testing.T) {
	env := postRequest(t, "en", url.Values{"_csrf": {"tok"}})
	schema := Schema{{Name: "a", Type: Raw}}
	captcha := NewCaptcha(map[string]bool{"register": true}, []Challenge{{"captcha question 1", "captcha answer 1"}})

	_, err := NewParser(captcha, nil).Parse(env.r, schema, Options{FormKey: "register"})
	require.NoError(t, err)
	assert.Equal(t, Schema{{Name: "a", Type: Raw}}, schema)
}

func captchaParse(t *testing.T, lang string, body url.Values, formKey string) (*Submission, reqEnv) {
	t.Helper()
	body.Set("_csrf", "tok")
	env := postRequest(t, lang, body)
	captcha := NewCaptcha(map[string]bool{"register": true}, []Challenge{
		{Question: "captcha question 1", Answer: "captcha answer 1"},
		{Question: "captcha question 2", Answer: "captcha answer 2"},
	})
	sub, err := NewParser(captcha, nil).Parse(env.r, Schema{}, Options{FormKey: formKey})
	require.NoError(t, err)
	return sub, env
}

func TestParseCaptcha(t *testing.T) {
	cases := []struct {
		name    string
		lang    string
		id      string
		answer  string
		want    bool
		flashes []string
	}{
		{"exact", "en", "0", "night", true, nil},
		{"case and space", "en", "1", "  FOUR ", true, nil},
		{"localised", "de", "1", "Vier", true, nil},
		{"wrong language", "de", "0", "night", false, []string{"Die Antwort auf die Sicherheitsfrage war falsch."}},
		{"mismatch", "en", "0", "day", false, []string{"The answer to the CAPTCHA question was incorrect."}},
		{"missing", "en", "0", "", false, []string{"Please answer the CAPTCHA question."}},
		{"bad id", "en", "7", "night", false, []string{"The CAPTCHA question could not be found. Please try again."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := url.Values{"captcha-id": {tc.id}}
			if tc.answer != "" {
				body.Set("captcha-answer", tc.answer)
			}
			sub, env := captchaParse(t, tc.lang, body, "register")

			require.NotNil(t, sub.HasCorrectCaptcha)
			assert.Equal(t, tc.want, *sub.HasCorrectCaptcha)
			assert.Equal(t, tc.want, sub.OK())
			assert.Equal(t, tc.flashes, env.errors())
			assert.NotContains(t, sub.FormValues, "captcha-answer")
		})
	}
}

func TestParseCaptchaDisabledForForm(t *testing.T) {
	sub, _ := captchaParse(t, "en", url.Values{}, "signin")
	assert.Nil(t, sub.HasCorrectCaptcha)
	assert.True(t, sub.OK())
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"example.com":                   "http://example.com",
		"  HTTPS://Example.com:443/x  ": "https://example.com/x",
		"http://example.com:8080/p?q=1": "http://example.com:8080/p?q=1",
		"http://example.com/ü#top":      "http://example.com/%C3%BC",
		"ftp://files.example.org/a.txt": "ftp://files.example.org/a.txt",
		"example.com/search?q=a b":      "http://example.com/search?q=a%20b",
		"example.com/?q=ü":              "http://example.com/?q=%C3%BC",
		`example.com/?q=<a href="x">`:   "http://example.com/?q=%3Ca%20href=%22x%22%3E",
		"example.com/?q=100%&r=%41":     "http://example.com/?q=100%25&r=%41",
		"example.com/?a=1&b=2&a=3":      "http://example.com/?a=1&b=2&a=3",
	}
	for in, want := range cases {
		got, ok := NormalizeURL(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "   ", "http://", "http://:80"} {
		_, ok := NormalizeURL(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseWithoutSessionDoesNotPanic(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x=1"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r = r.WithContext(context.Background())

	sub, err := NewParser(nil, nil).Parse(r, Schema{{Name: "y", Type: Raw, Required: true}}, Options{})
	require.NoError(t, err)
	assert.False(t, sub.HasRequiredFields)
	assert.True(t, sub.HasUnknownFields)
}
