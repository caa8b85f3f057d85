package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/qrdlife/wikiconnect-go/mwapi"
)

const envPrefix = "WIKICONNECT_"

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// AuthMethod selects the mwapi.Auth strategy.
type AuthMethod string

const (
	AuthMethodNone     AuthMethod = "none"
	AuthMethodPassword AuthMethod = "password"
	AuthMethodOAuth    AuthMethod = "oauth"
)

const (
	DefaultLogFormat  = LogFormatText
	DefaultAuthMethod = AuthMethodPassword
)

// AuthConfig describes the credentials. The secret (password or access
// token) comes from the config itself or, with Keyring set, from the OS
// keyring.
type AuthConfig struct {
	Method      AuthMethod `json:"method" validate:"required,oneof=none password oauth"`
	Username    string     `json:"username"`
	Password    string     `json:"password,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
	Keyring     bool       `json:"keyring"`
}

// Config holds the command-line configuration.
type Config struct {
	LogLevel     slog.Level        `json:"log_level"`
	LogFormat    LogFormat         `json:"log_format" validate:"oneof=text json"`
	Endpoint     string            `json:"endpoint" validate:"required,url"`
	UserAgent    string            `json:"user_agent"`
	CookieFile   string            `json:"cookie_file"`
	GlobalParams map[string]string `json:"global_params"`
	Auth         AuthConfig        `json:"auth"`
}

// ApplyDefaults sets the log format, user agent and auth method when the
// loaded layers left them empty.
func (c *Config) ApplyDefaults() {
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.UserAgent == "" {
		c.UserAgent = mwapi.DefaultUserAgent
	}
	if c.Auth.Method == "" {
		c.Auth.Method = DefaultAuthMethod
	}
}

// Validate checks the struct tags, then that the chosen auth method has
// the credentials it needs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Method {
	case AuthMethodPassword:
		if c.Auth.Username == "" {
			return errors.New("auth.username required for password authentication")
		}
		if c.Auth.Password == "" && !c.Auth.Keyring {
			return errors.New("auth.password or auth.keyring required for password authentication")
		}
	case AuthMethodOAuth:
		if c.Auth.AccessToken == "" && !c.Auth.Keyring {
			return errors.New("auth.access_token or auth.keyring required for oauth authentication")
		}
		if c.Auth.Keyring && c.Auth.Username == "" {
			return errors.New("auth.username required to look up the access token in the keyring")
		}
	}
	return nil
}

// loadConfig layers the TOML file at configPath, WIKICONNECT_* variables
// and the root flags the user actually passed, later layers overriding
// earlier ones. Defaults fill what is still empty, then the result is
// validated.
func loadConfig(configPath string, cmd *cli.Command, envList func() []string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("read %s: %w", configPath, err)
		}
	}

	if envList == nil {
		envList = os.Environ
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   envList,
	}), nil); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagValues(cmd.Root()), "."), nil); err != nil {
			return nil, fmt.Errorf("read flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps WIKICONNECT_AUTH__ACCESS_TOKEN to auth.access_token.
func envKey(key, value string) (string, any) {
	key = strings.TrimPrefix(key, envPrefix)
	return strings.ToLower(strings.ReplaceAll(key, "__", ".")), value
}

// flagValues maps the explicitly set root flags onto config keys:
// --auth--username is auth.username, --cookie-file is cookie_file.
func flagValues(root *cli.Command) map[string]any {
	out := map[string]any{}
	for _, f := range root.Flags {
		name := f.Names()[0]
		if name == "config" || !root.IsSet(name) {
			continue
		}
		key := strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
		out[key] = root.Value(name)
	}
	return out
}
