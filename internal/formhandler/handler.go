// internal/formhandler/handler.go
//
// Action dispatcher for form pages.
//
// Context
//   Create, edit, and delete pages share one shape: gate the request with a
//   few checks, maybe load a record, maybe check the visitor may touch that
//   record, then run the GET or POST handler.  A Config[T] declares that
//   shape once per resource type; Handler[T].Execute runs it for one request.
//
// Workflow
//   1.  Look up the action and the verb handler.  Either missing is a
//       *ConfigError returned to the caller (a wiring bug, not a user error).
//   2.  Run every check in order.  They all run, and the request stops if
//       any returned false.  Only the first failure response reaches the
//       client.  Checks after it get a discarding writer and a muted message
//       context, so their renders neither queue nor consume flash messages.
//       A discarded render may still mint a CSRF token; tokens are stateless
//       and the unused one is simply dropped.
//   3.  Without a loader the verb handler gets the zero T.
//   4.  With a loader: unavailable (not found or soft-deleted) renders the
//       404 page; any other error goes to the error pipeline; otherwise the
//       permission check runs and, if it passes, the verb handler gets the
//       record.
//
// Notes
//   Config is immutable after NewConfig.  Common checks are prepended to
//   every action there, not patched in later.
//
//------------------------------------------------------------------------------

package formhandler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/message"
	"github.com/yanizio/reviews/internal/metrics"
	"github.com/yanizio/reviews/internal/resource"
)

// Action names a form page.
type Action string

const (
	Create Action = "create"
	Edit   Action = "edit"
	Delete Action = "delete"
)

// Responder renders the outcomes the dispatcher and checks can produce.
type Responder interface {
	NotFound(w http.ResponseWriter, r *http.Request, titleKey, id string)
	Error(w http.ResponseWriter, r *http.Request, err error)
	SignInRequired(w http.ResponseWriter, r *http.Request)
	PermissionError(w http.ResponseWriter, r *http.Request, titleKey, detailsKey string)
}

// Context is the per-request execution state handed to checks and verb
// handlers.
type Context struct {
	W         http.ResponseWriter
	R         *http.Request
	Action    Action
	Method    string
	ID        string
	TitleKey  string
	Responder Responder
}

// Ctx is shorthand for the request context.
func (c *Context) Ctx() context.Context { return c.R.Context() }

// Check gates a request before anything is loaded.  A check that returns
// false has already rendered its response.
type Check func(c *Context) bool

// Loader fetches the record for id.
type Loader[T any] func(ctx context.Context, id string) (T, error)

// PermissionCheck gates a request on the loaded record.
type PermissionCheck[T any] func(c *Context, res T) bool

// VerbFunc handles one HTTP method.
type VerbFunc[T any] func(c *Context, res T)

// ActionSpec declares one action.
type ActionSpec[T any] struct {
	Handlers   map[string]VerbFunc[T]
	Checks     []Check
	Load       Loader[T]
	Permission PermissionCheck[T]
	// TitleKey is the message key for page titles of this action, used by
	// the 404 and permission pages.
	TitleKey string
}

// Config is the immutable action table for one resource type.
type Config[T any] struct {
	actions map[Action]ActionSpec[T]
}

// NewConfig copies actions and prepends common to every action's checks.
func NewConfig[T any](actions map[Action]ActionSpec[T], common ...Check) *Config[T] {
	cfg := &Config[T]{actions: make(map[Action]ActionSpec[T], len(actions))}
	for name, spec := range actions {
		checks := make([]Check, 0, len(common)+len(spec.Checks))
		checks = append(checks, common...)
		checks = append(checks, spec.Checks...)
		spec.Checks = checks

		handlers := make(map[string]VerbFunc[T], len(spec.Handlers))
		for verb, fn := range spec.Handlers {
			handlers[verb] = fn
		}
		spec.Handlers = handlers

		cfg.actions[name] = spec
	}
	return cfg
}

/*──────────────────────────── configuration errors ────────────────────────*/

// ErrorKind classifies a ConfigError.
type ErrorKind int

const (
	ErrUnknownAction ErrorKind = iota + 1
	ErrNoVerbHandler
)

// ConfigError reports a dispatch the Config cannot serve.
type ConfigError struct {
	Kind   ErrorKind
	Action Action
	Method string
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case ErrUnknownAction:
		return fmt.Sprintf("formhandler: unknown action %q", e.Action)
	case ErrNoVerbHandler:
		return fmt.Sprintf("formhandler: action %q has no %s handler", e.Action, e.Method)
	default:
		return "formhandler: configuration error"
	}
}

/*──────────────────────────────── handler ─────────────────────────────────*/

// Handler dispatches requests against a Config.
type Handler[T any] struct {
	cfg       *Config[T]
	responder Responder
}

// New returns a Handler rendering through responder.
func New[T any](cfg *Config[T], responder Responder) *Handler[T] {
	return &Handler[T]{cfg: cfg, responder: responder}
}

// Options select what to dispatch.  An empty Method means r.Method.
type Options struct {
	Action Action
	Method string
	ID     string
}

// Execute runs one request through the action table.  Only configuration
// errors are returned; every other outcome has been rendered.
func (h *Handler[T]) Execute(w http.ResponseWriter, r *http.Request, opts Options) error {
	method := opts.Method
	if method == "" {
		method = r.Method
	}

	spec, ok := h.cfg.actions[opts.Action]
	if !ok {
		return &ConfigError{Kind: ErrUnknownAction, Action: opts.Action, Method: method}
	}
	verb, ok := spec.Handlers[method]
	if !ok {
		return &ConfigError{Kind: ErrNoVerbHandler, Action: opts.Action, Method: method}
	}

	c := &Context{
		W:         w,
		R:         r,
		Action:    opts.Action,
		Method:    method,
		ID:        opts.ID,
		TitleKey:  spec.TitleKey,
		Responder: h.responder,
	}

	passed, responded := true, false
	for _, check := range spec.Checks {
		cc := *c
		tw := &trackingWriter{ResponseWriter: w}
		if responded {
			cc.W = discardWriter{header: make(http.Header)}
			cc.R = r.WithContext(message.Mute(r.Context()))
		} else {
			cc.W = tw
		}
		if !check(&cc) {
			passed = false
		}
		responded = responded || tw.wrote
	}
	if !passed {
		h.count(opts.Action, "denied")
		return nil
	}

	var res T
	if spec.Load != nil {
		var err error
		res, err = spec.Load(r.Context(), opts.ID)
		switch {
		case resource.Unavailable(res, err):
			h.count(opts.Action, "not_found")
			h.responder.NotFound(w, r, spec.TitleKey, opts.ID)
			return nil
		case err != nil:
			h.count(opts.Action, "error")
			logger.FromContext(r.Context()).Errorw("load failed",
				"action", string(opts.Action), "id", opts.ID, "err", err)
			h.responder.Error(w, r, err)
			return nil
		}
		if spec.Permission != nil && !spec.Permission(c, res) {
			h.count(opts.Action, "denied")
			return nil
		}
	}

	verb(c, res)
	h.count(opts.Action, "ok")
	return nil
}

func (h *Handler[T]) count(a Action, outcome string) {
	metrics.DispatchTotal.WithLabelValues(string(a), outcome).Inc()
}

/*──────────────────────────── check writers ───────────────────────────────*/

// trackingWriter records whether a check wrote a response.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

// discardWriter swallows the response of a check that failed after another
// check already responded.
type discardWriter struct{ header http.Header }

func (d discardWriter) Header() http.Header         { return d.header }
func (d discardWriter) WriteHeader(int)             {}
func (d discardWriter) Write(b []byte) (int, error) { return len(b), nil }
