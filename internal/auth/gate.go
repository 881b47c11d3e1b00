package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ldap-gate/internal/ldap"
)

// SubsystemAuth is the log subsystem used by this package.
const SubsystemAuth = "auth"

// Errors returned by the gate and sign-in.
var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUnknownSubject         = errors.New("token subject is not a known user")
	ErrMissingAuthorization   = errors.New("authorization header is missing")
	ErrMalformedAuthorization = errors.New("authorization header is malformed")
)

// Outcome labels reported to an Observer.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeMissingHeader      = "missing_header"
	OutcomeMalformedHeader    = "malformed_header"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeExpiredToken       = "expired_token"
	OutcomeUnknownSubject     = "unknown_subject"
	OutcomeError              = "error"
)

// UserLookup resolves a uid to a cached user. *ldap.UserCache satisfies it.
type UserLookup interface {
	Get(uid string) (*ldap.User, bool)
}

// Observer is told the outcome of every sign-in and gate check.
type Observer interface {
	ObserveAuth(operation, outcome string)
}

// Gate authenticates bearer tokens on protected calls.
type Gate struct {
	tokens   *TokenService
	users    UserLookup
	observer Observer
}

// NewGate creates a gate resolving token subjects through users.
func NewGate(tokens *TokenService, users UserLookup, observer Observer) *Gate {
	return &Gate{tokens: tokens, users: users, observer: observer}
}

// Authenticate checks an Authorization header value and returns the user the
// token was issued to. Header shape is checked before the signature.
func (g *Gate) Authenticate(ctx context.Context, header string) (*ldap.User, error) {
	token, err := bearerToken(header)
	if err != nil {
		g.observe(ctx, err)
		return nil, err
	}

	claims, err := g.tokens.Validate(token)
	if err != nil {
		g.observe(ctx, err)
		return nil, err
	}

	user, ok := g.users.Get(claims.Username)
	if !ok {
		g.observe(ctx, ErrUnknownSubject)
		return nil, ErrUnknownSubject
	}

	g.observe(ctx, nil)
	return user, nil
}

func (g *Gate) observe(ctx context.Context, err error) {
	outcome := outcomeOf(err)
	if err != nil {
		tflog.SubsystemDebug(ctx, SubsystemAuth, "Rejected bearer token", map[string]any{
			"outcome": outcome,
		})
	}
	if g.observer != nil {
		g.observer.ObserveAuth("authenticate", outcome)
	}
}

// bearerToken splits "Bearer <token>" on whitespace. Anything after the
// token is ignored.
func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingAuthorization
	}

	parts := strings.Fields(header)
	if len(parts) < 2 || parts[0] != "Bearer" {
		return "", ErrMalformedAuthorization
	}

	return parts[1], nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, ErrMissingAuthorization):
		return OutcomeMissingHeader
	case errors.Is(err, ErrMalformedAuthorization):
		return OutcomeMalformedHeader
	case errors.Is(err, ErrExpiredToken):
		return OutcomeExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return OutcomeInvalidToken
	case errors.Is(err, ErrUnknownSubject):
		return OutcomeUnknownSubject
	default:
		return OutcomeError
	}
}

type userContextKey struct{}

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, user *ldap.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user attached by WithUser.
func UserFromContext(ctx context.Context) (*ldap.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*ldap.User)
	return user, ok && user != nil
}
