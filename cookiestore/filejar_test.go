package cookiestore

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func quietLogger() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mustOpen(t *testing.T, path string) *FileJar {
	t.Helper()
	j, err := Open(path, quietLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return j
}

func TestFileJar_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cookies.json")
	j := mustOpen(t, path)

	want := Cookie{Name: "enwikiSession", Value: "abc", Domain: "en.wikipedia.org", Path: "/", HostOnly: true, Secure: true, HttpOnly: true}
	if err := j.Add(want); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded := mustOpen(t, path)
	if diff := cmp.Diff([]Cookie{want}, reloaded.All()); diff != "" {
		t.Fatalf("reloaded cookies mismatch (-want +got):\n%s", diff)
	}

	got := reloaded.Cookies(&url.URL{Scheme: "https", Host: "en.wikipedia.org", Path: "/w/api.php"})
	if len(got) != 1 || got[0].Name != "enwikiSession" || got[0].Value != "abc" {
		t.Fatalf("Cookies = %v", got)
	}

	if err := reloaded.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n := len(mustOpen(t, path).All()); n != 0 {
		t.Fatalf("cookies after clear = %d, want 0", n)
	}
}

func TestFileJar_SetCookiesPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	j := mustOpen(t, path)
	u := &url.URL{Scheme: "https", Host: "zh.moegirl.org.cn", Path: "/api.php"}

	j.SetCookies(u, []*http.Cookie{
		{Name: "session", Value: "1"},
		{Name: "UserID", Value: "42", Domain: ".moegirl.org.cn", Path: "/", MaxAge: 3600},
	})

	reloaded := mustOpen(t, path)
	all := reloaded.All()
	if len(all) != 2 {
		t.Fatalf("All = %+v, want 2 cookies", all)
	}
	byName := map[string]Cookie{}
	for _, c := range all {
		byName[c.Name] = c
	}
	if c := byName["session"]; c.Domain != "zh.moegirl.org.cn" || !c.HostOnly || c.Path != "/" {
		t.Fatalf("session cookie = %+v", c)
	}
	if c := byName["UserID"]; c.Domain != "moegirl.org.cn" || c.HostOnly || c.Expires.IsZero() {
		t.Fatalf("UserID cookie = %+v", c)
	}

	// Domain cookie reaches sibling hosts, host-only does not.
	other := reloaded.Cookies(&url.URL{Scheme: "https", Host: "commons.moegirl.org.cn", Path: "/"})
	if len(other) != 1 || other[0].Name != "UserID" {
		t.Fatalf("sibling Cookies = %v", other)
	}

	// Deletion is persisted as well.
	reloaded.SetCookies(u, []*http.Cookie{{Name: "session", Value: "", Path: "/", MaxAge: -1}})
	after := mustOpen(t, path).All()
	if len(after) != 1 || after[0].Name != "UserID" {
		t.Fatalf("after delete = %+v", after)
	}
}

func TestFileJar_RejectsForeignDomain(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cookies.json")
	j := mustOpen(t, path)
	wiki := &url.URL{Scheme: "https", Host: "wiki.org", Path: "/w/api.php"}
	evil := &url.URL{Scheme: "http", Host: "evil.example.com", Path: "/"}

	j.SetCookies(wiki, []*http.Cookie{{Name: "session", Value: "genuine", Path: "/"}})

	j.SetCookies(evil, []*http.Cookie{
		{Name: "session", Value: "attacker", Domain: "wiki.org", Path: "/"},
		{Name: "tracker", Value: "1", Domain: "wiki.org", Path: "/"},
		{Name: "suffix", Value: "1", Domain: "com", Path: "/"},
	})
	// A foreign host cannot delete the wiki's cookie either.
	j.SetCookies(evil, []*http.Cookie{{Name: "session", Domain: "wiki.org", Path: "/", MaxAge: -1}})

	want := []Cookie{{Name: "session", Value: "genuine", Domain: "wiki.org", Path: "/", HostOnly: true}}
	if diff := cmp.Diff(want, j.All()); diff != "" {
		t.Fatalf("All mismatch (-want +got):\n%s", diff)
	}

	reloaded := mustOpen(t, path)
	if diff := cmp.Diff(want, reloaded.All()); diff != "" {
		t.Fatalf("reloaded mismatch (-want +got):\n%s", diff)
	}
	got := reloaded.Cookies(wiki)
	if len(got) != 1 || got[0].Value != "genuine" {
		t.Fatalf("Cookies(wiki) = %v", got)
	}
	if got := reloaded.Cookies(&url.URL{Scheme: "http", Host: "example.com", Path: "/"}); len(got) != 0 {
		t.Fatalf("Cookies(example.com) = %v", got)
	}
}

func TestFileJar_ConcurrentSetCookies(t *testing.T) {
	t.Parallel()

	const n = 32
	path := filepath.Join(t.TempDir(), "cookies.json")
	j := mustOpen(t, path)
	u := &url.URL{Scheme: "https", Host: "wiki.org", Path: "/w/api.php"}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := "c" + strconv.Itoa(i)
			j.SetCookies(u, []*http.Cookie{{Name: name, Value: name, Path: "/"}})
			_ = j.Cookies(u)
		}()
	}
	wg.Wait()

	if got := len(mustOpen(t, path).All()); got != n {
		t.Fatalf("reloaded %d cookies, want %d", got, n)
	}
}

func TestFileJar_ExpiredDropped(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cookies.json")
	j := mustOpen(t, path)
	if err := j.Add(Cookie{Name: "old", Value: "x", Domain: "example.org", Expires: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n := len(mustOpen(t, path).All()); n != 0 {
		t.Fatalf("expired cookie survived reload")
	}
}

func TestFileJar_CorruptOrMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	missing := mustOpen(t, filepath.Join(dir, "missing.json"))
	if n := len(missing.All()); n != 0 {
		t.Fatalf("missing file: %d cookies", n)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("\xac\xed\x00\x05sr garbage"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	j := mustOpen(t, corrupt)
	if n := len(j.All()); n != 0 {
		t.Fatalf("corrupt file: %d cookies", n)
	}

	// The store stays usable and overwrites the bad file.
	if err := j.Add(Cookie{Name: "a", Value: "b", Domain: "example.org"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n := len(mustOpen(t, corrupt).All()); n != 1 {
		t.Fatalf("after rewrite: %d cookies, want 1", n)
	}
}

func TestFileJar_FilePermissions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cookies.json")
	if err := mustOpen(t, path).Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("permissions = %04o, want 0600", perm)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
