package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ldap-gate/internal/auth"
	"github.com/isometry/ldap-gate/internal/logging"
)

// correlationID assigns a UUID request id when the client sent none, so that
// middleware.RequestID picks it up and it is echoed back.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(middleware.RequestIDHeader, id)
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs each request to the http subsystem and records its
// duration. Health checks are logged at debug level.
func (s *router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := tflog.SetField(r.Context(), "request_id", middleware.GetReqID(r.Context()))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveRequest(r.Method, route, status, duration)

		fields := map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"remote_addr": r.RemoteAddr,
			"duration_ms": duration.Milliseconds(),
		}
		if isHealthPath(r.URL.Path) {
			tflog.SubsystemDebug(ctx, logging.SubsystemHTTP, "Request completed", fields)
		} else {
			tflog.SubsystemInfo(ctx, logging.SubsystemHTTP, "Request completed", fields)
		}
	})
}

// requireUser authenticates the bearer token and attaches the user to the
// request context.
func (s *router) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.deps.Gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			status, message := gateFailure(err)
			writeError(w, status, message)
			return
		}

		ctx := tflog.SetField(r.Context(), "uid", user.UID)
		next.ServeHTTP(w, r.WithContext(auth.WithUser(ctx, user)))
	})
}

// gateFailure maps a gate error to its status code and message.
func gateFailure(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrMissingAuthorization):
		return http.StatusForbidden, "Please add the JWT token to the header"
	case errors.Is(err, auth.ErrMalformedAuthorization):
		return http.StatusForbidden, "Invalid token"
	case errors.Is(err, auth.ErrExpiredToken):
		return StatusTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrUnknownSubject):
		return http.StatusUnauthorized, "You are not an authorized user"
	default:
		return http.StatusUnauthorized, "Unable to decode token"
	}
}
