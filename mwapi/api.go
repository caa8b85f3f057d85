package mwapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/qrdlife/wikiconnect-go/cookiestore"
)

const DefaultUserAgent = "wikiconnect-mediawiki-client/1.0"

type settings struct {
	ua         string
	hc         *http.Client
	jar        http.CookieJar
	cookieFile string
	global     url.Values
	logger     *slog.Logger
}

// Option configures an ActionAPI. Options run once, in order, inside
// NewActionAPI.
type Option func(*settings) error

func WithUserAgent(ua string) Option {
	return func(s *settings) error {
		if ua != "" {
			s.ua = ua
		}
		return nil
	}
}

// WithGlobalParams sets parameters sent with every request. Per-call
// parameters override them. An empty set is a configuration error.
func WithGlobalParams(p map[string]any) Option {
	return func(s *settings) error {
		if len(p) == 0 {
			return &ConfigError{Field: "global params", Reason: "must not be empty"}
		}
		np, err := normalizeParams(p)
		if err != nil {
			return &ConfigError{Field: "global params", Reason: err.Error()}
		}
		if len(np.Files) > 0 {
			return &ConfigError{Field: "global params", Reason: "file values are not allowed"}
		}
		s.global = np.Values
		return nil
	}
}

// WithHTTPClient uses a copy of hc; later options and the cookie jar setup
// change the copy, never the caller's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) error {
		if hc != nil {
			c := *hc
			s.hc = &c
		}
		return nil
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) error {
		if rt != nil {
			s.hc.Transport = rt
		}
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *settings) error {
		if d > 0 {
			s.hc.Timeout = d
		}
		return nil
	}
}

// WithCookieJar replaces the in-memory jar. It takes precedence over
// WithCookieFile.
func WithCookieJar(jar http.CookieJar) Option {
	return func(s *settings) error {
		s.jar = jar
		return nil
	}
}

// WithCookieFile persists session cookies to path so that a login survives
// process restarts.
func WithCookieFile(path string) Option {
	return func(s *settings) error {
		if path == "" {
			return &ConfigError{Field: "cookie file", Reason: "path must not be empty"}
		}
		s.cookieFile = path
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// ActionAPI owns the configuration of one MediaWiki session and wires the
// Requester, the cookie jar and the bound Auth together.
type ActionAPI struct {
	endpoint  string
	requester *Requester
	token     *Token
	jar       http.CookieJar
	logger    *slog.Logger
}

func New(endpoint string, opts ...Option) *ActionAPI {
	api, err := NewActionAPI(endpoint, opts...)
	if err != nil {
		panic(err)
	}
	return api
}

func NewActionAPI(endpoint string, opts ...Option) (*ActionAPI, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &ConfigError{Field: "endpoint", Reason: err.Error()}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &ConfigError{Field: "endpoint", Reason: fmt.Sprintf("expect full URL, got %q", endpoint)}
	}
	if !strings.HasSuffix(u.Path, "api.php") {
		return nil, &ConfigError{Field: "endpoint", Reason: fmt.Sprintf("expect .../api.php, got path %q", u.Path)}
	}

	s := &settings{
		ua:     DefaultUserAgent,
		hc:     &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	jar := s.jar
	if jar == nil && s.cookieFile != "" {
		fj, err := cookiestore.Open(s.cookieFile, cookiestore.WithLogger(s.logger))
		if err != nil {
			return nil, &ConfigError{Field: "cookie file", Reason: err.Error()}
		}
		jar = fj
	}
	if jar == nil {
		jar = s.hc.Jar
	}
	if jar == nil {
		// cookiejar.New never fails with a non-nil Options.
		jar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	}
	s.hc.Jar = jar

	api := &ActionAPI{
		endpoint: endpoint,
		jar:      jar,
		logger:   s.logger,
	}
	api.requester = newRequester(u, s.hc, s.ua, s.global, s.logger)
	api.token = NewToken(api.requester)

	s.logger.Info("mediawiki api ready", "endpoint", endpoint, "user_agent", s.ua)
	return api, nil
}

func (a *ActionAPI) Endpoint() string {
	return a.endpoint
}

func (a *ActionAPI) Requester() *Requester {
	return a.requester
}

func (a *ActionAPI) CookieJar() http.CookieJar {
	return a.jar
}

// SetAuth binds auth to the Requester, replacing any previous Auth.
func (a *ActionAPI) SetAuth(auth Auth) {
	a.requester.SetAuth(auth)
	a.logger.Info("authentication bound")
}

func (a *ActionAPI) Auth() Auth {
	return a.requester.Auth()
}

// GetToken fetches a fresh token of the given type. A response without the
// token yields ErrTokenNotFound.
func (a *ActionAPI) GetToken(ctx context.Context, tokenType TokenType) (string, error) {
	a.logger.DebugContext(ctx, "requesting token", "type", tokenType)
	tok, ok, err := a.token.Get(ctx, tokenType)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTokenNotFound, tokenType)
	}
	return tok, nil
}
