package auth

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// TokenResponse is returned by a successful sign-in.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Service verifies credentials against cached users and issues tokens.
type Service struct {
	tokens   *TokenService
	users    UserLookup
	observer Observer
}

// NewService creates a sign-in service.
func NewService(tokens *TokenService, users UserLookup, observer Observer) *Service {
	return &Service{tokens: tokens, users: users, observer: observer}
}

// SignIn returns a bearer token when password matches the stored hash of
// username. An unknown user and a wrong password both return
// ErrInvalidCredentials. Users without a stored password cannot sign in.
func (s *Service) SignIn(ctx context.Context, username, password string) (*TokenResponse, error) {
	user, ok := s.users.Get(username)
	if !ok || user.Password == "" || !user.VerifyPassword(password) {
		tflog.SubsystemInfo(ctx, SubsystemAuth, "Sign-in rejected", map[string]any{
			"uid": username,
		})
		s.observe(ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.UID)
	if err != nil {
		s.observe(err)
		return nil, fmt.Errorf("failed to issue token for %s: %w", user.UID, err)
	}

	tflog.SubsystemInfo(ctx, SubsystemAuth, "Sign-in succeeded", map[string]any{
		"uid": user.UID,
	})
	s.observe(nil)

	return &TokenResponse{AccessToken: token, TokenType: "Bearer"}, nil
}

func (s *Service) observe(err error) {
	if s.observer != nil {
		s.observer.ObserveAuth("sign_in", outcomeOf(err))
	}
}
