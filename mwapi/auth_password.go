package mwapi

import (
	"context"
	"fmt"
	"log/slog"
)

// UserAndPassword logs in with a username and (bot) password. The session
// lives in the cookie jar, so it adds no headers.
type UserAndPassword struct {
	api      *ActionAPI
	username string
	password string
	logger   *slog.Logger

	ident identityCache
}

var _ Auth = (*UserAndPassword)(nil)

// NewUserAndPassword creates the strategy. It is not bound until passed to
// ActionAPI.SetAuth.
func NewUserAndPassword(api *ActionAPI, username, password string) *UserAndPassword {
	return &UserAndPassword{
		api:      api,
		username: username,
		password: password,
		logger:   api.logger.With("auth", "password", "user", username),
	}
}

type LoginResult struct {
	Result   string `json:"result"`
	LgUserID int    `json:"lguserid"`
	LgName   string `json:"lgusername"`
	Reason   string `json:"reason,omitempty"`
}

// Login reports false, not an error, when the server rejects the
// credentials.
func (a *UserAndPassword) Login(ctx context.Context) (bool, error) {
	a.logger.InfoContext(ctx, "logging in")

	loggedIn, err := a.IsLoggedIn(ctx)
	if err != nil {
		return false, err
	}
	if loggedIn {
		a.logger.InfoContext(ctx, "already logged in")
		return true, nil
	}

	tok, err := a.api.GetToken(ctx, TokenLogin)
	if err != nil {
		return false, fmt.Errorf("login token: %w", err)
	}

	resp, err := a.api.Requester().Post(ctx, "login", map[string]any{
		"lgname":     a.username,
		"lgpassword": a.password,
		"lgtoken":    tok,
	})
	if err != nil {
		if e, ok := IsUsageError(err); ok && e.Code == "login_failed" {
			a.logger.WarnContext(ctx, "login rejected", "result", "Failed", "reason", e.Message)
			return false, nil
		}
		return false, err
	}

	var out struct {
		Login LoginResult `json:"login"`
	}
	if err := resp.Into(&out); err != nil {
		return false, err
	}
	if out.Login.Result != "Success" {
		a.logger.WarnContext(ctx, "login rejected", "result", out.Login.Result, "reason", out.Login.Reason)
		return false, nil
	}

	a.ident.set(out.Login.LgName)
	a.logger.InfoContext(ctx, "login successful", "real_user", out.Login.LgName)
	return true, nil
}

func (a *UserAndPassword) Logout(ctx context.Context) error {
	loggedIn, err := a.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if !loggedIn {
		a.logger.WarnContext(ctx, "not logged in, skipping logout")
		return nil
	}

	tok, err := a.api.GetToken(ctx, TokenCSRF)
	if err != nil {
		return fmt.Errorf("csrf token: %w", err)
	}
	if _, err := a.api.Requester().Post(ctx, "logout", map[string]any{
		"token": tok,
	}); err != nil {
		return err
	}

	name, _ := a.ident.get()
	a.ident.reset()
	a.logger.InfoContext(ctx, "logged out", "real_user", name)
	return nil
}

// IsLoggedIn asks the server every time and refreshes the cached real
// username, even when the session is anonymous.
func (a *UserAndPassword) IsLoggedIn(ctx context.Context) (bool, error) {
	info, err := queryUserInfo(ctx, a.api.Requester(), nil)
	if err != nil {
		return false, err
	}
	a.ident.set(info.Name)

	// id 0 is the anonymous (IP) user.
	if info.ID > 0 {
		a.logger.DebugContext(ctx, "session is logged in", "real_user", info.Name)
		return true, nil
	}
	a.logger.DebugContext(ctx, "session is anonymous")
	return false, nil
}

func (a *UserAndPassword) Username() string {
	return a.username
}

func (a *UserAndPassword) RealUsername(ctx context.Context) (string, error) {
	if name, ok := a.ident.get(); ok {
		return name, nil
	}
	info, err := queryUserInfo(ctx, a.api.Requester(), nil)
	if err != nil {
		return "", err
	}
	a.ident.set(info.Name)
	return info.Name, nil
}

func (a *UserAndPassword) AuthHeaders(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
