// internal/server/timeouts.go
//
// HTTP server helper with explicit timeouts.
//
//   • ReadTimeout   – abort slow-loris headers and bodies
//   • WriteTimeout  – cap total response time
//   • IdleTimeout   – close keep-alives on idle clients
//
// Zero values fall back to 10 s, 15 s, and 60 s.  Run starts the server and
// shuts it down gracefully when ctx is cancelled.
//

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Timeouts groups the server deadlines.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// ShutdownGrace bounds how long in-flight requests may finish after Run's
// context is cancelled.
const ShutdownGrace = 20 * time.Second

// New constructs an *http.Server.
func New(addr string, handler http.Handler, t Timeouts) *http.Server {
	if t.Read == 0 {
		t.Read = 10 * time.Second
	}
	if t.Write == 0 {
		t.Write = 15 * time.Second
	}
	if t.Idle == 0 {
		t.Idle = 60 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: t.Read,
		ReadTimeout:       t.Read,
		WriteTimeout:      t.Write,
		IdleTimeout:       t.Idle,
	}
}

// Run serves until ctx is done, then drains connections.
func Run(ctx context.Context, srv *http.Server, log *zap.SugaredLogger) error {
	errc := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down", "grace", ShutdownGrace)
	sctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
