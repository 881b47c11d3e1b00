package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/isometry/ldap-gate/internal/auth"
	"github.com/isometry/ldap-gate/internal/ldap"
	"github.com/isometry/ldap-gate/internal/metrics"
)

// DefaultRequestTimeout bounds every request when Deps.RequestTimeout is unset.
const DefaultRequestTimeout = 30 * time.Second

// UserModifier applies sparse updates to a user entry.
type UserModifier interface {
	Modify(ctx context.Context, uid string, req *ldap.ModifyUser) (bool, error)
}

// GroupFinder lists the groups a user belongs to.
type GroupFinder interface {
	GroupsOf(uid string) []*ldap.Group
}

// Directory reports directory reachability.
type Directory interface {
	Ping(ctx context.Context) error
	Stats() ldap.SessionStats
}

// Deps are the collaborators the routes call into.
type Deps struct {
	SignIn    *auth.Service
	Gate      *auth.Gate
	Users     UserModifier
	Groups    GroupFinder
	Directory Directory

	// Metrics may be nil. MetricsHandler, when set, is served at MetricsPath.
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	MetricsPath    string

	RequestTimeout time.Duration
}

type router struct {
	deps    Deps
	started time.Time
}

// NewRouter creates the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Directory reachability
//   - GET <MetricsPath> - Prometheus metrics, when enabled
//   - POST /api/auth/login - Sign-in
//   - GET /api/protected/user - Caller's identity
//   - POST /api/protected/user/modify - Update the caller's own entry
//   - GET /api/protected/user/groups - Groups containing the caller
func NewRouter(deps Deps) http.Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = DefaultRequestTimeout
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}

	s := &router{deps: deps, started: time.Now()}
	r := chi.NewRouter()

	r.Use(correlationID)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.RequestTimeout))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.liveness)
		r.Get("/ready", s.readiness)
	})

	if deps.MetricsHandler != nil {
		r.Handle(deps.MetricsPath, deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.login)

		r.Route("/protected", func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/user", s.currentUser)
			r.Post("/user/modify", s.modifyUser)
			r.Get("/user/groups", s.userGroups)
		})
	})

	return r
}
