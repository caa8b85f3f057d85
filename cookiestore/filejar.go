package cookiestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie is the persisted form of a cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	HostOnly bool      `json:"host_only,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
}

func (c Cookie) key() string {
	return c.Domain + ";" + c.Path + ";" + c.Name
}

func (c Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// url is an address the cookie applies to, used to replay it into the
// in-memory jar.
func (c Cookie) url() *url.URL {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: c.Domain, Path: c.Path}
}

func (c Cookie) httpCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		Expires:  c.Expires,
	}
	if !c.HostOnly {
		hc.Domain = c.Domain
	}
	return hc
}

type file struct {
	Version int      `json:"version"`
	Cookies []Cookie `json:"cookies"`
}

const fileVersion = 1

type Option func(*FileJar)

func WithLogger(l *slog.Logger) Option {
	return func(j *FileJar) {
		if l != nil {
			j.logger = l
		}
	}
}

// FileJar is an http.CookieJar backed by a JSON file.
type FileJar struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	jar     *cookiejar.Jar
	entries map[string]Cookie
}

var _ http.CookieJar = (*FileJar)(nil)

// Open loads the jar stored at path. Only an empty path or an uncreatable
// parent directory is an error.
func Open(path string, opts ...Option) (*FileJar, error) {
	if path == "" {
		return nil, errors.New("cookie file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	j := &FileJar{
		path:   path,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.reset()
	j.load()
	return j, nil
}

func (j *FileJar) reset() {
	// cookiejar.New never fails with a non-nil Options.
	j.jar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	j.entries = map[string]Cookie{}
}

func (j *FileJar) load() {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			j.logger.Warn("cannot read cookie file, starting empty", "path", j.path, "error", err)
		}
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		j.logger.Warn("corrupt cookie file, starting empty", "path", j.path, "error", err)
		return
	}

	now := j.now()
	for _, c := range f.Cookies {
		if c.Name == "" || c.Domain == "" || c.expired(now) {
			continue
		}
		j.store(c)
	}
	j.logger.Debug("cookies loaded", "path", j.path, "count", len(j.entries))
}

func (j *FileJar) store(c Cookie) {
	j.entries[c.key()] = c
	j.jar.SetCookies(c.url(), []*http.Cookie{c.httpCookie()})
}

// SetCookies implements http.CookieJar and persists the result.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	// Persist only what the jar accepted: it rejects cookies whose Domain
	// does not cover u or is a public suffix.
	now := j.now()
	for _, hc := range cookies {
		c := fromHTTP(u, hc, now)
		value, live := j.liveValueLocked(c)
		if hc.MaxAge < 0 || c.expired(now) {
			if !live {
				delete(j.entries, c.key())
			}
			continue
		}
		if !live || value != c.Value {
			j.logger.Debug("cookie rejected by jar", "name", c.Name, "domain", c.Domain, "url", u.Redacted())
			continue
		}
		j.entries[c.key()] = c
	}

	if err := j.saveLocked(); err != nil {
		j.logger.Error("cannot persist cookies", "path", j.path, "error", err)
	}
}

func (j *FileJar) liveValueLocked(c Cookie) (string, bool) {
	for _, hc := range j.jar.Cookies(c.url()) {
		if hc.Name == c.Name {
			return hc.Value, true
		}
	}
	return "", false
}

func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// All returns the stored cookies that have not expired, ordered by domain,
// path and name.
func (j *FileJar) All() []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *FileJar) Add(c Cookie) error {
	if c.Name == "" {
		return errors.New("cookie name cannot be empty")
	}
	if c.Domain == "" {
		return errors.New("cookie domain cannot be empty")
	}
	c.Domain = strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	if c.Path == "" {
		c.Path = "/"
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.store(c)
	return j.saveLocked()
}

// Clear drops every cookie and truncates the stored set.
func (j *FileJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reset()
	return j.saveLocked()
}

func (j *FileJar) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveLocked()
}

func (j *FileJar) snapshotLocked() []Cookie {
	now := j.now()
	out := make([]Cookie, 0, len(j.entries))
	for _, c := range j.entries {
		if !c.expired(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].key() < out[b].key()
	})
	return out
}

// saveLocked writes the whole set through a temp file and rename.
func (j *FileJar) saveLocked() error {
	data, err := json.MarshalIndent(file{Version: fileVersion, Cookies: j.snapshotLocked()}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(j.path)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if err := tempFile.Chmod(0600); err != nil {
		return err
	}
	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tempName, j.path); err != nil {
		return fmt.Errorf("replace cookie file: %w", err)
	}
	return nil
}

func fromHTTP(u *url.URL, hc *http.Cookie, now time.Time) Cookie {
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Path:     hc.Path,
		Secure:   hc.Secure,
		HttpOnly: hc.HttpOnly,
	}

	if hc.Domain != "" {
		c.Domain = strings.TrimPrefix(strings.ToLower(hc.Domain), ".")
	} else {
		c.Domain = strings.ToLower(u.Hostname())
		c.HostOnly = true
	}

	if c.Path == "" || c.Path[0] != '/' {
		c.Path = defaultPath(u.Path)
	}

	switch {
	case hc.MaxAge > 0:
		c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
	case !hc.Expires.IsZero():
		c.Expires = hc.Expires
	}
	return c
}

// defaultPath is the RFC 6265 section 5.1.4 default cookie path.
func defaultPath(path string) string {
	if len(path) == 0 || path[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(path, "/")
	if i == 0 {
		return "/"
	}
	return path[:i]
}
