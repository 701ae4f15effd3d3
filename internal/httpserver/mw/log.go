package mw

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/audit"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

// statusWriter records the status and size of the response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// accessEntry is filled in by inner middlewares, which only see a derived
// context.
type accessEntry struct{ user string }

type accessEntryKey struct{}

func noteUser(ctx context.Context, username string) {
	if e, ok := ctx.Value(accessEntryKey{}).(*accessEntry); ok {
		e.user = username
	}
}

// Log writes one access line per request, after RequestInfo has run. The
// route is the matched chi pattern so ids do not explode its cardinality.
// 5xx responses log at warn.
func Log(loggerClient logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w}
			entry := &accessEntry{}
			r = r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry))

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			info, _ := audit.RequestFrom(r.Context())

			fields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("route", route),
				logger.Int("status", ww.status),
				logger.Int("bytes", ww.bytes),
				logger.Duration("duration", time.Since(start)),
				logger.String("client_ip", info.IP),
				logger.String("request_id", info.ID),
			}
			if entry.user != "" {
				fields = append(fields, logger.String("user", entry.user))
			}
			if ww.status >= http.StatusInternalServerError {
				loggerClient.Warn("http_request", fields...)
				return
			}
			loggerClient.Info("http_request", fields...)
		})
	}
}
