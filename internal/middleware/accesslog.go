// internal/middleware/accesslog.go
//
// Request-scoped logger and access log.
//
// Context
//   Every request gets a child of the base logger carrying the chi request
//   id, method, and path, stored with logger.WithContext so that handlers,
//   stores, and the error page all log under the same id.  When the request
//   finishes, one "request" line records status, duration, bytes, and the
//   user-agent summary from requestinfo, and the Prometheus request
//   instruments are updated.
//
//------------------------------------------------------------------------------

package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/reviews/internal/logger"
	"github.com/yanizio/reviews/internal/metrics"
	"github.com/yanizio/reviews/internal/requestinfo"
)

// AccessLog must run after chi's RequestID and requestinfo's middleware.
func AccessLog(base *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := base.With(
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
			)
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), l)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			fields := []any{"status", status, "duration", elapsed, "bytes", ww.BytesWritten()}
			if info := requestinfo.FromContext(r.Context()); info != nil {
				fields = append(fields, "browser", info.UA.Browser, "bot", info.UA.IsBot)
			}
			l.Infow("request", fields...)

			metrics.HTTPRequests.WithLabelValues(statusClass(status)).Inc()
			metrics.HTTPDuration.Observe(elapsed.Seconds())
		})
	}
}

// statusClass maps 404 to "4xx".
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
