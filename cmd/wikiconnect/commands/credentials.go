package commands

import (
	"context"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringService is the OS keyring service under which secrets are stored.
const keyringService = "wikiconnect"

func keyringUser(method AuthMethod, username string) string {
	return string(method) + ":" + username
}

func storeSecret(ctx context.Context, method AuthMethod, username, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if secret == "" {
		return fmt.Errorf("secret cannot be empty")
	}
	return keyring.Set(keyringService, keyringUser(method, username), secret)
}

// resolveSecret returns the password or access token for cfg, reading the
// OS keyring when configured to.
func resolveSecret(ctx context.Context, cfg AuthConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	inline := cfg.Password
	if cfg.Method == AuthMethodOAuth {
		inline = cfg.AccessToken
	}
	if !cfg.Keyring {
		return inline, nil
	}

	secret, err := keyring.Get(keyringService, keyringUser(cfg.Method, cfg.Username))
	if err != nil {
		return "", fmt.Errorf("reading %s secret for %s from keyring: %w", cfg.Method, cfg.Username, err)
	}
	if secret == "" {
		return "", fmt.Errorf("empty %s secret in keyring for %s", cfg.Method, cfg.Username)
	}
	return secret, nil
}
