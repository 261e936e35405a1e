// components/account/account.go
//
// Account component: sign in, register, and sign out.
//
// Context
//   Identities live in the user table (internal/user).  Signing in binds the
//   session to the account id; auth.Middleware turns that id back into an
//   *auth.User on later requests.  Registration is protected by the question
//   CAPTCHA when captcha.forms.register is on.
//
// Routes
//   GET|POST  /signin
//   GET|POST  /register
//   POST      /signout
//
//------------------------------------------------------------------------------

package account

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/component"
	"github.com/yanizio/reviews/internal/form"
	"github.com/yanizio/reviews/internal/formhandler"
	"github.com/yanizio/reviews/internal/head"
	"github.com/yanizio/reviews/internal/i18n"
	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/message"
	"github.com/yanizio/reviews/internal/session"
	"github.com/yanizio/reviews/internal/user"
	"github.com/yanizio/reviews/internal/view"
)

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Accounts is the subset of *user.Store the component needs.
type Accounts interface {
	Authenticate(ctx context.Context, name, password string) (*user.Account, error)
	Create(ctx context.Context, name, password, email string) (*user.Account, error)
}

// Renderer renders pages and the shared failure pages.
type Renderer interface {
	formhandler.Responder
	Render(w http.ResponseWriter, r *http.Request, status int, name string, p view.Page)
}

// Component encapsulates the account pages.
type Component struct {
	accounts Accounts
	parser   *form.Parser
	defs     *form.Definitions
	view     Renderer
}

// New wires the component.
func New(accounts Accounts, parser *form.Parser, defs *form.Definitions, v Renderer) *Component {
	return &Component{accounts: accounts, parser: parser, defs: defs, view: v}
}

/*────────────────── component.Component methods ───────────────────────────*/

// Name returns the canonical component key.
func (c *Component) Name() string { return "account" }

// Migrations creates the user table.  The role tables belong to acl and are
// migrated first by cmd/web.
func (c *Component) Migrations() []string { return user.Migrations }

// Routes registers the account pages.
func (c *Component) Routes(r chi.Router) {
	r.Get("/signin", c.signinForm)
	r.Post("/signin", c.signin)
	r.Get("/register", c.registerForm)
	r.Post("/register", c.register)
	r.Post("/signout", c.signout)
}

/*──────────────────────────── sign in ─────────────────────────────────────*/

// SigninData is the data of the "signin" page.
type SigninData struct {
	Username string
	Next     string
}

func (c *Component) signinForm(w http.ResponseWriter, r *http.Request) {
	if auth.CurrentUser(r.Context()).SignedIn() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	c.render(w, r, http.StatusOK, "signin", "sign in", SigninData{Next: localPath(r.URL.Query().Get("next"))})
}

func (c *Component) signin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	if s == nil {
		c.view.Error(w, r, errors.New("account: no session"))
		return
	}

	def := c.defs.MustGet("signin")
	sub, err := c.parser.Parse(r, def.Fields, form.Options{FormKey: def.ID})
	if err != nil {
		c.view.Error(w, r, err)
		return
	}
	data := SigninData{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Next:     localPath(r.PostFormValue("next")),
	}
	if !sub.OK() {
		c.render(w, r, http.StatusUnprocessableEntity, "signin", "sign in", data)
		return
	}

	name, _ := sub.FormValues["username"].(string)
	pass, _ := sub.FormValues["password"].(string)
	acct, err := c.accounts.Authenticate(ctx, name, pass)
	switch {
	case errors.Is(err, user.ErrBadCredentials):
		logger.FromContext(ctx).Infow("sign-in rejected", "username", data.Username)
		message.Add(ctx, message.Errors, i18n.T(ctx, "bad credentials"))
		c.render(w, r, http.StatusUnprocessableEntity, "signin", "sign in", data)
		return
	case err != nil:
		c.view.Error(w, r, err)
		return
	}

	s.SignIn(acct.ID)
	message.Add(ctx, message.Messages, i18n.T(ctx, "signed in", acct.Name))
	target := data.Next
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (c *Component) signout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s := session.FromContext(ctx); s != nil && s.UserID != "" {
		s.SignOut()
		message.Add(ctx, message.Messages, i18n.T(ctx, "signed out"))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

/*──────────────────────────── register ────────────────────────────────────*/

// RegisterData is the data of the "register" page.  CaptchaQuestion is the
// message key of the challenge, empty when the form has no CAPTCHA.
type RegisterData struct {
	Username        string
	Email           string
	CaptchaID       int
	CaptchaQuestion string
}

func (c *Component) registerForm(w http.ResponseWriter, r *http.Request) {
	if auth.CurrentUser(r.Context()).SignedIn() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	c.renderRegister(w, r, http.StatusOK, RegisterData{})
}

func (c *Component) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	if s == nil {
		c.view.Error(w, r, errors.New("account: no session"))
		return
	}

	def := c.defs.MustGet("register")
	sub, err := c.parser.Parse(r, def.Fields, form.Options{FormKey: def.ID})
	if err != nil {
		c.view.Error(w, r, err)
		return
	}
	data := RegisterData{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
	}
	if !sub.OK() {
		c.renderRegister(w, r, http.StatusUnprocessableEntity, data)
		return
	}

	name, _ := sub.FormValues["username"].(string)
	pass, _ := sub.FormValues["password"].(string)
	email, _ := sub.FormValues["email"].(string)
	acct, err := c.accounts.Create(ctx, name, pass, email)
	switch {
	case errors.Is(err, user.ErrNameTaken):
		message.Add(ctx, message.Errors, i18n.T(ctx, "username taken"))
		c.renderRegister(w, r, http.StatusUnprocessableEntity, data)
		return
	case errors.Is(err, user.ErrPasswordTooShort):
		message.Add(ctx, message.Errors, i18n.T(ctx, "password too short", strconv.Itoa(user.MinPasswordLength)))
		c.renderRegister(w, r, http.StatusUnprocessableEntity, data)
		return
	case err != nil:
		c.view.Error(w, r, err)
		return
	}

	logger.FromContext(ctx).Infow("account registered", "uid", acct.ID)
	s.SignIn(acct.ID)
	message.Add(ctx, message.Messages, i18n.T(ctx, "registered", acct.Name))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// renderRegister shows the form with a freshly picked challenge.
func (c *Component) renderRegister(w http.ResponseWriter, r *http.Request, status int, data RegisterData) {
	if cp := c.parser.Captcha(); cp.Enabled("register") {
		data.CaptchaID = cp.Pick()
		ch, _ := cp.Challenge(data.CaptchaID)
		data.CaptchaQuestion = ch.Question
	}
	c.render(w, r, status, "register", "register", data)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func (c *Component) render(w http.ResponseWriter, r *http.Request, status int, page, titleKey string, data any) {
	h := head.New()
	h.NoIndex()
	c.view.Render(w, r, status, page, view.Page{TitleKey: titleKey, Data: data, Head: h})
}

// localPath keeps only same-site absolute paths, so "next" cannot redirect
// off-site.
func localPath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return ""
	}
	return p
}
