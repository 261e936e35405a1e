// components/reviews/forms.go
//
// Verb handlers for the create, edit, and delete actions.
//
// Notes
//   Text fields are stored under one language per submission.  The optional
//   review-language field picks it; an unsupported choice is reported and
//   the request language is used instead.  Editing merges the submitted
//   language into the stored values, so other translations survive.
//
//------------------------------------------------------------------------------

package reviews

import (
	"html"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/form"
	"github.com/yanizio/reviews/internal/formhandler"
	"github.com/yanizio/reviews/internal/head"
	"github.com/yanizio/reviews/internal/i18n"
	"github.com/yanizio/reviews/internal/message"
	"github.com/yanizio/reviews/internal/mlstring"
	"github.com/yanizio/reviews/internal/review"
	"github.com/yanizio/reviews/internal/view"
)

// Form definition ids.
const (
	reviewForm = "review"
	deleteForm = "delete-review"
)

// FormData is the data of the "review-form" page.  Values are plain text;
// the template escapes them.
type FormData struct {
	ActionURL string
	URL       string
	Title     string
	Text      string
	Rating    int
	Language  string
	Preview   template.HTML
}

/*──────────────────────────── GET handlers ────────────────────────────────*/

func (c *Component) createForm(fc *formhandler.Context, _ *review.Review) {
	c.renderForm(fc, http.StatusOK, FormData{
		ActionURL: "/new/review",
		Language:  i18n.Lang(fc.Ctx()),
	})
}

func (c *Component) editForm(fc *formhandler.Context, rv *review.Review) {
	lang := i18n.Lang(fc.Ctx())
	title, _ := rv.Title.Resolve(lang, rv.OriginalLanguage)
	text, used := rv.Text.Resolve(lang, rv.OriginalLanguage)
	if used == "" {
		used = lang
	}
	c.renderForm(fc, http.StatusOK, FormData{
		ActionURL: editURL(rv.ID),
		URL:       rv.URL,
		Title:     html.UnescapeString(title),
		Text:      html.UnescapeString(text),
		Rating:    rv.StarRating,
		Language:  used,
	})
}

func (c *Component) deleteForm(fc *formhandler.Context, rv *review.Review) {
	h := head.New()
	h.NoIndex()
	c.view.Render(fc.W, fc.R, http.StatusOK, "delete-review", view.Page{
		TitleKey: fc.TitleKey,
		Data:     rv,
		Head:     h,
	})
}

/*──────────────────────────── POST handlers ───────────────────────────────*/

// saveReview handles both create (rv == nil) and edit.
func (c *Component) saveReview(fc *formhandler.Context, rv *review.Review) {
	ctx := fc.Ctx()
	lang := c.textLanguage(fc.R)

	def := c.defs.MustGet(reviewForm)
	sub, err := c.parser.Parse(fc.R, def.Fields, form.Options{FormKey: def.ID, Language: lang})
	if err != nil {
		fc.Responder.Error(fc.W, fc.R, err)
		return
	}

	data := postedFormData(fc.R, lang)
	data.ActionURL = "/new/review"
	if rv != nil {
		data.ActionURL = editURL(rv.ID)
	}

	if !sub.OK() {
		c.renderForm(fc, http.StatusUnprocessableEntity, data)
		return
	}
	rating, ok := starRating(sub.FormValues["starRating"])
	if !ok {
		message.Add(ctx, message.Errors, i18n.T(ctx, "invalid rating"))
		c.renderForm(fc, http.StatusUnprocessableEntity, data)
		return
	}

	url, _ := sub.FormValues["url"].(string)
	title := mlstring.FromAny(sub.FormValues["title"])
	text := mlstring.FromAny(sub.FormValues["text"])
	rendered := mlstring.FromAny(sub.FormValues["html"])

	if sub.FormValues["action"] == "preview" {
		data.Preview = template.HTML(rendered[lang]) //nolint:gosec // sanitised by the parser
		c.renderForm(fc, http.StatusOK, data)
		return
	}

	user := auth.CurrentUser(ctx)
	if rv == nil {
		nr := &review.Review{
			URL:              url,
			Title:            title,
			Text:             text,
			HTML:             rendered,
			StarRating:       rating,
			OriginalLanguage: lang,
			CreatorID:        user.ID,
		}
		if err := c.store.Create(ctx, nr); err != nil {
			fc.Responder.Error(fc.W, fc.R, err)
			return
		}
		message.Add(ctx, message.Messages, i18n.T(ctx, "review saved"))
		http.Redirect(fc.W, fc.R, "/review/"+nr.ID, http.StatusSeeOther)
		return
	}

	upd := *rv
	upd.URL = url
	upd.Title = rv.Title.Merge(title)
	upd.Text = rv.Text.Merge(text)
	upd.HTML = rv.HTML.Merge(rendered)
	upd.StarRating = rating
	if err := c.store.Update(ctx, &upd, user.ID); err != nil {
		fc.Responder.Error(fc.W, fc.R, err)
		return
	}
	message.Add(ctx, message.Messages, i18n.T(ctx, "review updated"))
	http.Redirect(fc.W, fc.R, "/review/"+upd.ID, http.StatusSeeOther)
}

func (c *Component) deleteReview(fc *formhandler.Context, rv *review.Review) {
	ctx := fc.Ctx()
	def := c.defs.MustGet(deleteForm)
	sub, err := c.parser.Parse(fc.R, def.Fields, form.Options{FormKey: def.ID})
	if err != nil {
		fc.Responder.Error(fc.W, fc.R, err)
		return
	}
	if !sub.OK() || sub.FormValues["confirm"] != true {
		h := head.New()
		h.NoIndex()
		c.view.Render(fc.W, fc.R, http.StatusUnprocessableEntity, "delete-review", view.Page{
			TitleKey: fc.TitleKey,
			Data:     rv,
			Head:     h,
		})
		return
	}
	if err := c.store.Delete(ctx, rv.ID, auth.CurrentUser(ctx).ID); err != nil {
		fc.Responder.Error(fc.W, fc.R, err)
		return
	}
	message.Add(ctx, message.Messages, i18n.T(ctx, "review deleted"))
	http.Redirect(fc.W, fc.R, "/", http.StatusSeeOther)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func (c *Component) renderForm(fc *formhandler.Context, status int, data FormData) {
	h := head.New()
	h.NoIndex()
	c.view.Render(fc.W, fc.R, status, "review-form", view.Page{TitleKey: fc.TitleKey, Data: data, Head: h})
}

// textLanguage returns the language the submitted text is written in.
func (c *Component) textLanguage(r *http.Request) string {
	ctx := r.Context()
	lang := i18n.Lang(ctx)
	choice := strings.TrimSpace(r.PostFormValue("review-language"))
	if choice == "" || choice == lang {
		return lang
	}
	if !c.catalog.Supported(choice) {
		message.Add(ctx, message.Errors, i18n.T(ctx, "invalid language"))
		return lang
	}
	return choice
}

// postedFormData refills the form from the raw submission.
func postedFormData(r *http.Request, lang string) FormData {
	rating, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("review-rating")))
	return FormData{
		URL:      strings.TrimSpace(r.PostFormValue("review-url")),
		Title:    r.PostFormValue("review-title"),
		Text:     r.PostFormValue("review-text"),
		Rating:   rating,
		Language: lang,
	}
}

// starRating accepts whole numbers from 1 to 5.
func starRating(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 1 || f > 5 {
		return 0, false
	}
	return int(f), true
}

func editURL(id string) string { return "/review/" + id + "/edit" }
