package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/qrdlife/wikiconnect-go/mwapi"
)

// Execute runs wikiconnect with args (os.Args form), printing results to
// stdout and logs to stderr.
func Execute(ctx context.Context, args []string) error {
	r := &runner{environ: os.Environ}
	return r.rootCommand(os.Stdout, os.Stderr).Run(ctx, args)
}

// runner carries what commands read from the process, so tests can
// substitute it.
type runner struct {
	environ func() []string
}

func (r *runner) rootCommand(out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "wikiconnect",
		Usage:     "MediaWiki Action API session tool",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(DefaultLogFormat),
			},
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "api.php URL",
			},
			&cli.StringFlag{
				Name:  "cookie-file",
				Usage: "file to persist session cookies in",
			},
			&cli.StringFlag{
				Name:  "auth--method",
				Usage: "authentication method (none|password|oauth)",
			},
			&cli.StringFlag{
				Name:  "auth--username",
				Usage: "account or bot-password name",
			},
		},
		Commands: []*cli.Command{
			r.whoamiCommand(),
			r.tokenCommand(),
			r.logoutCommand(),
			credentialsCommand(),
		},
	}
}

func (r *runner) whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "log in and print the name the server reports",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := r.openSession(ctx, cmd)
			if err != nil {
				return err
			}
			name, err := s.auth.RealUsername(ctx)
			if err != nil {
				return err
			}
			loggedIn, err := s.auth.IsLoggedIn(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "%s (logged in: %t)\n", name, loggedIn)
			return err
		},
	}
}

func (r *runner) tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "log in and print fresh tokens, one line per --type",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "token type (csrf|login|patrol|rollback|watch|...), repeatable; default csrf",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			types := cmd.StringSlice("type")
			if len(types) == 0 {
				types = []string{string(mwapi.TokenCSRF)}
			}

			s, err := r.openSession(ctx, cmd)
			if err != nil {
				return err
			}

			tokens := make([]string, len(types))
			g, gCtx := errgroup.WithContext(ctx)
			for i, typ := range types {
				g.Go(func() error {
					tok, err := s.api.GetToken(gCtx, mwapi.TokenType(typ))
					if err != nil {
						return fmt.Errorf("%s token: %w", typ, err)
					}
					tokens[i] = tok
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, tok := range tokens {
				if _, err := fmt.Fprintln(cmd.Root().Writer, tok); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (r *runner) logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "end the persisted session",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := r.newSession(ctx, cmd)
			if err != nil {
				return err
			}
			return s.auth.Logout(ctx)
		},
	}
}

func credentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "manage secrets in the OS keyring",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "store a password or access token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "method", Value: string(AuthMethodPassword), Usage: "password|oauth"},
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "secret", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					method := AuthMethod(cmd.String("method"))
					if method != AuthMethodPassword && method != AuthMethodOAuth {
						return fmt.Errorf("unsupported method: %s", method)
					}
					if err := storeSecret(ctx, method, cmd.String("username"), cmd.String("secret")); err != nil {
						return err
					}
					_, err := fmt.Fprintln(cmd.Root().Writer, "stored")
					return err
				},
			},
		},
	}
}

type session struct {
	api  *mwapi.ActionAPI
	auth mwapi.Auth
}

// openSession builds the session and logs in.
func (r *runner) openSession(ctx context.Context, cmd *cli.Command) (*session, error) {
	s, err := r.newSession(ctx, cmd)
	if err != nil {
		return nil, err
	}
	ok, err := s.auth.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		return nil, errors.New("login rejected by server")
	}
	return s, nil
}

func (r *runner) newSession(ctx context.Context, cmd *cli.Command) (*session, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, r.environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cmd.Root().ErrWriter, cfg.LogLevel, cfg.LogFormat)

	opts := []mwapi.Option{
		mwapi.WithUserAgent(cfg.UserAgent),
		mwapi.WithLogger(logger),
	}
	if cfg.CookieFile != "" {
		opts = append(opts, mwapi.WithCookieFile(cfg.CookieFile))
	}
	if len(cfg.GlobalParams) > 0 {
		global := make(map[string]any, len(cfg.GlobalParams))
		for k, v := range cfg.GlobalParams {
			global[k] = v
		}
		opts = append(opts, mwapi.WithGlobalParams(global))
	}

	api, err := mwapi.NewActionAPI(cfg.Endpoint, opts...)
	if err != nil {
		return nil, err
	}

	auth, err := newAuth(ctx, api, cfg.Auth)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		api.SetAuth(auth)
	}
	return &session{api: api, auth: auth}, nil
}

func newAuth(ctx context.Context, api *mwapi.ActionAPI, cfg AuthConfig) (mwapi.Auth, error) {
	switch cfg.Method {
	case AuthMethodNone:
		return anonymous{api: api}, nil
	case AuthMethodPassword, AuthMethodOAuth:
		secret, err := resolveSecret(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Method == AuthMethodOAuth {
			return mwapi.NewOAuthOwnerConsumer(api, secret), nil
		}
		return mwapi.NewUserAndPassword(api, cfg.Username, secret), nil
	default:
		return nil, fmt.Errorf("unsupported authentication method: %s", cfg.Method)
	}
}

func newLogger(w io.Writer, level slog.Level, format LogFormat) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
