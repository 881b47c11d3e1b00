package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors for token operations.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrTokenSigningFailed = errors.New("failed to sign token")
	ErrMissingSecret      = errors.New("token secret cannot be empty")
	ErrInvalidMaxAge      = errors.New("token lifetime must be positive")
)

// DefaultIssuer is the iss claim used when TokenConfig.Issuer is empty.
const DefaultIssuer = "ldap-gate"

// TokenConfig holds configuration for token generation.
type TokenConfig struct {
	// Secret is the HMAC signing key.
	Secret string

	// MaxAge is the lifetime of issued tokens.
	MaxAge time.Duration

	// Issuer is the token issuer claim. Default: "ldap-gate"
	Issuer string
}

// Claims are the JWT claims carried by an access token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// TokenService issues and validates signed access tokens. It keeps no
// server-side state; validity is the signature plus the expiry claim.
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenService creates a token service with the given configuration.
func NewTokenService(config TokenConfig) (*TokenService, error) {
	if config.Secret == "" {
		return nil, ErrMissingSecret
	}
	if config.MaxAge <= 0 {
		return nil, ErrInvalidMaxAge
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}

	return &TokenService{config: config, now: time.Now}, nil
}

// MaxAge returns the configured token lifetime.
func (s *TokenService) MaxAge() time.Duration {
	return s.config.MaxAge
}

// Issue creates a signed token for username.
func (s *TokenService) Issue(username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username cannot be empty")
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.MaxAge)),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", ErrTokenSigningFailed
	}

	return signed, nil
}

// Validate verifies the signature and expiry of a token and returns its claims.
// A token is expired from the second named by its exp claim onwards.
// Expired tokens return ErrExpiredToken; any other failure returns ErrInvalidToken.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(s.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Username == "" {
		claims.Username = claims.Subject
	}
	if claims.Username == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
