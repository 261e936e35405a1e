package formhandler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/reviews/internal/message"
	"github.com/yanizio/reviews/internal/resource"
	"github.com/yanizio/reviews/internal/session"
)

type record struct {
	id      string
	deleted bool
}

func (r *record) RevDeleted() bool { return r != nil && r.deleted }

// recorder notes every Responder call.
type recorder struct {
	calls []string
}

func (rr *recorder) NotFound(w http.ResponseWriter, _ *http.Request, titleKey, id string) {
	rr.calls = append(rr.calls, fmt.Sprintf("notfound %s %s", titleKey, id))
	w.WriteHeader(http.StatusNotFound)
}

func (rr *recorder) Error(w http.ResponseWriter, _ *http.Request, err error) {
	rr.calls = append(rr.calls, "error "+err.Error())
	w.WriteHeader(http.StatusInternalServerError)
}

func (rr *recorder) SignInRequired(w http.ResponseWriter, _ *http.Request) {
	rr.calls = append(rr.calls, "signin")
	w.WriteHeader(http.StatusUnauthorized)
}

func (rr *recorder) PermissionError(w http.ResponseWriter, _ *http.Request, titleKey, detailsKey string) {
	rr.calls = append(rr.calls, "perm "+titleKey+" "+detailsKey)
	w.WriteHeader(http.StatusForbidden)
}

type fixture struct {
	resp    *recorder
	invoked []string
	got     *record
}

func (f *fixture) verb(name string) VerbFunc[*record] {
	return func(c *Context, res *record) {
		f.invoked = append(f.invoked, name)
		f.got = res
	}
}

func loaderFor(records map[string]*record) Loader[*record] {
	return func(_ context.Context, id string) (*record, error) {
		if id == "boom" {
			return nil, errors.New("database unreachable")
		}
		r, ok := records[id]
		if !ok {
			return nil, fmt.Errorf("review %s: %w", id, resource.ErrNotFound)
		}
		return r, nil
	}
}

func newHandler(f *fixture, actions map[Action]ActionSpec[*record], common ...Check) *Handler[*record] {
	f.resp = &recorder{}
	return New(NewConfig(actions, common...), f.resp)
}

func serve(t *testing.T, h *Handler[*record], method string, opts Options) (*httptest.ResponseRecorder, error) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, "/", nil)
	return w, h.Execute(w, r, opts)
}

func TestUnknownActionIsConfigError(t *testing.T) {
	f := &fixture{}
	h := newHandler(f, map[Action]ActionSpec[*record]{
		Create: {Handlers: map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")}},
	})

	for _, a := range []Action{"publish", "", Edit} {
		_, err := serve(t, h, http.MethodGet, Options{Action: a})
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrUnknownAction, ce.Kind)
	}
	assert.Empty(t, f.invoked)
}

func TestMissingVerbIsConfigError(t *testing.T) {
	f := &fixture{}
	h := newHandler(f, map[Action]ActionSpec[*record]{
		Create: {Handlers: map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")}},
	})

	_, err := serve(t, h, http.MethodPost, Options{Action: Create})
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrNoVerbHandler, ce.Kind)
	assert.Contains(t, ce.Error(), "POST")

	// An explicit Method overrides the request's.
	_, err = serve(t, h, http.MethodPost, Options{Action: Create, Method: http.MethodGet})
	require.NoError(t, err)
	assert.Equal(t, []string{"get"}, f.invoked)
}

func TestAllChecksRunEvenAfterFailure(t *testing.T) {
	f := &fixture{}
	var ran []string
	check := func(name string, ok bool) Check {
		return func(c *Context) bool {
			ran = append(ran, name)
			return ok
		}
	}

	h := newHandler(f, map[Action]ActionSpec[*record]{
		Create: {
			Handlers: map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")},
			Checks:   []Check{check("a", false), check("b", true)},
		},
	}, check("common", true))

	_, err := serve(t, h, http.MethodGet, Options{Action: Create})
	require.NoError(t, err)

	assert.Equal(t, []string{"common", "a", "b"}, ran)
	assert.Empty(t, f.invoked)
}

func TestOnlyFirstFailureResponds(t *testing.T) {
	f := &fixture{}
	signIn := func(c *Context) bool {
		c.Responder.SignInRequired(c.W, c.R)
		return false
	}
	trusted := func(c *Context) bool {
		c.Responder.PermissionError(c.W, c.R, c.TitleKey, "must be trusted")
		return false
	}
	h := newHandler(f, map[Action]ActionSpec[*record]{
		Create: {
			Handlers: map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")},
			Checks:   []Check{signIn, trusted},
			TitleKey: "add review",
		},
	})

	w, err := serve(t, h, http.MethodGet, Options{Action: Create})
	require.NoError(t, err)

	assert.Equal(t, []string{"signin", "perm add review must be trusted"}, f.resp.calls)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDiscardedCheckLeavesFlashAlone(t *testing.T) {
	f := &fixture{}
	var pulled []string
	signIn := func(c *Context) bool {
		c.Responder.SignInRequired(c.W, c.R)
		return false
	}
	flashing := func(c *Context) bool {
		message.Add(c.R.Context(), message.Errors, "late notice")
		pulled = message.Pull(c.R.Context(), message.Errors)
		c.Responder.PermissionError(c.W, c.R, c.TitleKey, "denied")
		return false
	}
	h := newHandler(f, map[Action]ActionSpec[*record]{
		Create: {
			Handlers: map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")},
			Checks:   []Check{signIn, flashing},
		},
	})

	s := session.New()
	s.AddFlash(message.Errors, "earlier notice")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(session.NewContext(r.Context(), s))

	require.NoError(t, h.Execute(w, r, Options{Action: Create}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, pulled)
	assert.Equal(t, []string{"earlier notice"}, s.Flash[message.Errors])
}

func TestNoLoaderPassesZeroResource(t *testing.T) {
	f := &fixture{got: &record{id: "stale"}}
	h := newHandler(f, map[Action]ActionSpec[*record]{
		Create: {Handlers: map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")}},
	})

	_, err := serve(t, h, http.MethodGet, Options{Action: Create})
	require.NoError(t, err)
	assert.Equal(t, []string{"get"}, f.invoked)
	assert.Nil(t, f.got)
}

func TestUnavailableResourceRenders404(t *testing.T) {
	records := map[string]*record{"r1": {id: "r1", deleted: true}}

	for _, id := range []string{"r1", "missing"} {
		t.Run(id, func(t *testing.T) {
			f := &fixture{}
			h := newHandler(f, map[Action]ActionSpec[*record]{
				Edit: {
					Handlers: map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")},
					Load:     loaderFor(records),
					TitleKey: "edit review",
				},
			})

			w, err := serve(t, h, http.MethodGet, Options{Action: Edit, ID: id})
			require.NoError(t, err)
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, []string{"notfound edit review " + id}, f.resp.calls)
			assert.Empty(t, f.invoked)
		})
	}
}

func TestLoaderErrorGoesToErrorPipeline(t *testing.T) {
	f := &fixture{}
	h := newHandler(f, map[Action]ActionSpec[*record]{
		Edit: {
			Handlers: map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")},
			Load:     loaderFor(nil),
		},
	})

	w, err := serve(t, h, http.MethodGet, Options{Action: Edit, ID: "boom"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, []string{"error database unreachable"}, f.resp.calls)
	assert.Empty(t, f.invoked)
}

func TestPermissionCheck(t *testing.T) {
	records := map[string]*record{"r1": {id: "r1"}}
	allow := false

	f := &fixture{}
	h := newHandler(f, map[Action]ActionSpec[*record]{
		Delete: {
			Handlers: map[string]VerbFunc[*record]{
				http.MethodGet:  f.verb("get"),
				http.MethodPost: f.verb("post"),
			},
			Load: loaderFor(records),
			Permission: func(c *Context, res *record) bool {
				if !allow {
					c.Responder.PermissionError(c.W, c.R, c.TitleKey, "cannot delete")
				}
				return allow
			},
			TitleKey: "delete review",
		},
	})

	w, err := serve(t, h, http.MethodPost, Options{Action: Delete, ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, []string{"perm delete review cannot delete"}, f.resp.calls)
	assert.Empty(t, f.invoked)

	allow = true
	_, err = serve(t, h, http.MethodPost, Options{Action: Delete, ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"post"}, f.invoked)
	assert.Same(t, records["r1"], f.got)
}

func TestNewConfigDoesNotAlias(t *testing.T) {
	f := &fixture{}
	handlers := map[string]VerbFunc[*record]{http.MethodGet: f.verb("get")}
	actions := map[Action]ActionSpec[*record]{Create: {Handlers: handlers}}
	h := newHandler(f, actions)

	delete(handlers, http.MethodGet)
	delete(actions, Create)

	_, err := serve(t, h, http.MethodGet, Options{Action: Create})
	require.NoError(t, err)
	assert.Equal(t, []string{"get"}, f.invoked)
}
