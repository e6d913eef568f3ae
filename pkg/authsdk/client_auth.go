package authsdk

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/tabmail/pkg/tokenstore"
)

// Login exchanges email and password for a token pair.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	return c.postAuth(ctx, "/auth/login", LoginRequest{Email: email, Password: password})
}

// Register creates an account and returns its first token pair.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*TokenPair, error) {
	return c.postAuth(ctx, "/auth/register", req)
}

// GoogleExchange trades a Google ID token for a token pair.
func (c *SDKClient) GoogleExchange(ctx context.Context, idToken string) (*TokenPair, error) {
	return c.postAuth(ctx, "/auth/google", googleExchangeRequest{IDToken: idToken})
}

// Refresh exchanges a refresh token for a new pair. It does not touch the
// token store; use the Renewer for coordinated renewal.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return c.postAuth(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken})
}

// Logout revokes refreshToken on the backend.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	return c.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/auth/logout",
		Body:     refreshRequest{RefreshToken: refreshToken},
		SkipAuth: true,
	}, nil)
}

// Me decodes the identity of the stored access token without a network call.
func (c *SDKClient) Me() (User, error) {
	token, ok := c.tokens.Get(tokenstore.Access)
	if !ok {
		return User{}, ErrNoAccessToken
	}
	return IdentityFromToken(token, "")
}

func (c *SDKClient) postAuth(ctx context.Context, path string, body any) (*TokenPair, error) {
	var pair TokenPair
	err := c.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     path,
		Body:     body,
		SkipAuth: true,
	}, &pair)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}
