// internal/session/session.go
//
// Signed cookie sessions.
//
// Context
//   Authentication, language choice, and flash messages must survive between
//   requests.  A Session is serialised to JSON and stored in one cookie
//   signed by gorilla/securecookie (HMAC-SHA256 plus an embedded timestamp
//   checked against the manager's max age).
//
//   The payload is signed, not encrypted, so it never carries secrets: only
//   the session id, the signed-in user id, the chosen language, and queued
//   flash messages.
//
// Workflow
//   •  Manager.Middleware loads (or starts) the session and stores it in the
//      request context.
//   •  Handlers mutate it through FromContext.
//   •  The wrapped ResponseWriter writes the cookie once, right before the
//      response header, when the session changed.
//
//------------------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

var errBadCookie = errors.New("session: invalid cookie")

// Session is the per-visitor state carried in the cookie.
type Session struct {
	ID     string              `json:"id"`
	UserID string              `json:"uid,omitempty"`
	Lang   string              `json:"lang,omitempty"`
	Flash  map[string][]string `json:"flash,omitempty"`

	dirty bool
}

// New returns an empty session with a fresh id.
func New() *Session {
	return &Session{ID: uuid.NewString(), dirty: true}
}

// SignIn binds the session to userID and rotates the session id.
func (s *Session) SignIn(userID string) {
	s.ID = uuid.NewString()
	s.UserID = userID
	s.dirty = true
}

// SignOut forgets the user but keeps language and pending flashes.
func (s *Session) SignOut() {
	s.ID = uuid.NewString()
	s.UserID = ""
	s.dirty = true
}

// SetLang records an explicit language choice.
func (s *Session) SetLang(lang string) {
	if s.Lang != lang {
		s.Lang = lang
		s.dirty = true
	}
}

// AddFlash appends msg to bucket.
func (s *Session) AddFlash(bucket, msg string) {
	if s.Flash == nil {
		s.Flash = make(map[string][]string)
	}
	s.Flash[bucket] = append(s.Flash[bucket], msg)
	s.dirty = true
}

// PullFlash returns and removes every message in bucket.
func (s *Session) PullFlash(bucket string) []string {
	msgs := s.Flash[bucket]
	if len(msgs) == 0 {
		return nil
	}
	delete(s.Flash, bucket)
	s.dirty = true
	return msgs
}

// Dirty reports whether the session must be written back.
func (s *Session) Dirty() bool { return s.dirty }

/*──────────────────────────── context helpers ─────────────────────────────*/

type ctxKey struct{}

// NewContext stores s in ctx.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request session or nil when the middleware has not
// run.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

/*──────────────────────────────── manager ─────────────────────────────────*/

// Manager signs, reads, and writes session cookies.
type Manager struct {
	codec  *securecookie.SecureCookie
	name   string
	maxAge time.Duration
}

// NewManager returns a Manager using secret as the HMAC key.  Cookies older
// than maxAge fail verification.
func NewManager(secret []byte, cookieName string, maxAge time.Duration) *Manager {
	codec := securecookie.New(secret, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	if maxAge > 0 {
		codec.MaxAge(int(maxAge.Seconds()))
	}
	return &Manager{codec: codec, name: cookieName, maxAge: maxAge}
}

// Load returns the session carried by r, or a new one when the cookie is
// absent or fails verification.
func (m *Manager) Load(r *http.Request) *Session {
	c, err := r.Cookie(m.name)
	if err != nil || c.Value == "" {
		return New()
	}
	s, err := m.decode(c.Value)
	if err != nil {
		zap.S().Debugw("session cookie rejected", "err", err)
		return New()
	}
	return s
}

// Save writes s as a cookie on w.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	val, err := m.encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    val,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.maxAge.Seconds()),
	})
	s.dirty = false
	return nil
}

// Middleware loads the session, exposes it via the request context, and
// commits it before the first byte of the response.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.Load(r)
		r = r.WithContext(NewContext(r.Context(), s))

		cw := &commitWriter{ResponseWriter: w}
		cw.commit = func() {
			if !s.Dirty() {
				return
			}
			if err := m.Save(w, r, s); err != nil {
				zap.S().Errorw("session save failed", "err", err)
			}
		}
		next.ServeHTTP(cw, r)
		// Handlers that never wrote still get their session persisted.
		cw.ensureCommitted()
	})
}

func (m *Manager) encode(s *Session) (string, error) {
	val, err := m.codec.Encode(m.name, s)
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	return val, nil
}

func (m *Manager) decode(val string) (*Session, error) {
	var s Session
	if err := m.codec.Decode(m.name, val, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCookie, err)
	}
	if s.ID == "" {
		return nil, errBadCookie
	}
	return &s, nil
}

/*──────────────────────────── commit writer ───────────────────────────────*/

// commitWriter runs commit exactly once, before the header goes out.
type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *commitWriter) ensureCommitted() {
	if !w.committed {
		w.committed = true
		w.commit()
	}
}

func (w *commitWriter) WriteHeader(code int) {
	w.ensureCommitted()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.ensureCommitted()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *commitWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
