package mwapi

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"
)

// OAuthOwnerConsumer authenticates with a pre-issued owner-only OAuth
// access token sent as a bearer header. There is no handshake: Login only
// checks that the server accepts the token.
type OAuthOwnerConsumer struct {
	api    *ActionAPI
	source oauth2.TokenSource
	logger *slog.Logger

	ident identityCache
}

var _ Auth = (*OAuthOwnerConsumer)(nil)

func NewOAuthOwnerConsumer(api *ActionAPI, accessToken string) *OAuthOwnerConsumer {
	return &OAuthOwnerConsumer{
		api:    api,
		source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
		logger: api.logger.With("auth", "oauth"),
	}
}

// Login drops the cached identity and verifies the token again.
func (a *OAuthOwnerConsumer) Login(ctx context.Context) (bool, error) {
	a.ident.reset()
	return a.IsLoggedIn(ctx)
}

// Logout forgets the cached identity. The token stays valid server-side.
func (a *OAuthOwnerConsumer) Logout(context.Context) error {
	a.ident.reset()
	return nil
}

// IsLoggedIn never returns an error: any failure to resolve the identity
// is logged and reported as false.
func (a *OAuthOwnerConsumer) IsLoggedIn(ctx context.Context) (bool, error) {
	if _, err := a.RealUsername(ctx); err != nil {
		a.logger.WarnContext(ctx, "oauth login check failed", "error", err)
		return false, nil
	}
	return true, nil
}

// Username has no configured value for OAuth; it falls back to the cached
// server name, or "" when unknown.
func (a *OAuthOwnerConsumer) Username() string {
	name, _ := a.ident.get()
	return name
}

func (a *OAuthOwnerConsumer) RealUsername(ctx context.Context) (string, error) {
	if name, ok := a.ident.get(); ok {
		return name, nil
	}
	info, err := queryUserInfo(ctx, a.api.Requester(), map[string]any{"dir": "user"})
	if err != nil {
		return "", err
	}
	a.ident.set(info.Name)
	return info.Name, nil
}

func (a *OAuthOwnerConsumer) AuthHeaders(context.Context) (map[string]string, error) {
	tok, err := a.source.Token()
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": tok.Type() + " " + tok.AccessToken}, nil
}
