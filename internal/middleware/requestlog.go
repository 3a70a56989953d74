// internal/middleware/requestlog.go
//
// Request-scoped logger middleware.
//
/*
Context
--------
Every dialog submission logs through logger.FromContext.  This wrapper
derives a child logger per request carrying the request id, client IP,
method, and path, and stores it in the request context so the dialog
machine, the store, and handlers all tag their events the same way.

When the logger level is debug, each request also logs one span on
completion with status and duration.
*/
package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/gridkit/internal/logger"
)

// RequestLogger attaches a request-scoped child of base.  It expects
// chi's RequestID middleware earlier in the chain; without it the id is
// empty.
func RequestLogger(base *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := base
			if l == nil {
				l = zap.S()
			}
			l = l.With(
				"request_id", chimw.GetReqID(r.Context()),
				"ip", clientIP(r),
				"method", r.Method,
				"path", r.URL.Path,
			)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), l)))

			l.Debugw("request served", "status", ww.Status(), "bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
