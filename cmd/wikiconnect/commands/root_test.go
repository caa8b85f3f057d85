package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func fakeWiki(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		enc := json.NewEncoder(w)
		_, err := r.Cookie("session")
		loggedIn := err == nil

		switch action := r.Form.Get("action"); {
		case action == "query" && r.Form.Get("meta") == "userinfo":
			if loggedIn || r.Header.Get("Authorization") == "Bearer OAUTH" {
				_ = enc.Encode(map[string]any{"query": map[string]any{"userinfo": map[string]any{"id": 1, "name": "UserA"}}})
				return
			}
			_ = enc.Encode(map[string]any{"query": map[string]any{"userinfo": map[string]any{"id": 0, "name": "127.0.0.1"}}})
		case action == "query" && r.Form.Get("meta") == "tokens":
			typ := r.Form.Get("type")
			_ = enc.Encode(map[string]any{"query": map[string]any{"tokens": map[string]any{typ + "token": typ + "+\\"}}})
		case action == "login":
			if r.Form.Get("lgpassword") != "secret" {
				_ = enc.Encode(map[string]any{"login": map[string]any{"result": "Failed", "reason": "wrong password"}})
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "1", Path: "/"})
			_ = enc.Encode(map[string]any{"login": map[string]any{"result": "Success", "lgusername": "UserA"}})
		case action == "logout":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "", Path: "/", MaxAge: -1})
			_ = enc.Encode(map[string]any{})
		default:
			_ = enc.Encode(map[string]any{"error": map[string]any{"code": "badtest", "info": "unhandled request"}})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	var out, errOut bytes.Buffer
	r := &runner{environ: environ(env...)}
	err := r.rootCommand(&out, &errOut).Run(ctx, append([]string{"wikiconnect", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestWhoami_Password(t *testing.T) {
	t.Parallel()

	srv := fakeWiki(t)
	env := []string{
		"WIKICONNECT_ENDPOINT=" + srv.URL + "/w/api.php",
		"WIKICONNECT_AUTH__USERNAME=UserA@bot",
		"WIKICONNECT_AUTH__PASSWORD=secret",
	}

	out, err := run(t, env, "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if strings.TrimSpace(out) != "UserA (logged in: true)" {
		t.Fatalf("output = %q", out)
	}
}

func TestWhoami_LoginRejected(t *testing.T) {
	t.Parallel()

	srv := fakeWiki(t)
	env := []string{
		"WIKICONNECT_ENDPOINT=" + srv.URL + "/w/api.php",
		"WIKICONNECT_AUTH__USERNAME=UserA@bot",
		"WIKICONNECT_AUTH__PASSWORD=wrong",
	}

	if _, err := run(t, env, "whoami"); err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("err = %v, want login rejected", err)
	}
}

func TestWhoami_FlagsOverrideEnv(t *testing.T) {
	t.Parallel()

	srv := fakeWiki(t)
	env := []string{
		"WIKICONNECT_ENDPOINT=http://127.0.0.1:1/w/api.php",
		"WIKICONNECT_AUTH__USERNAME=Nobody",
		"WIKICONNECT_AUTH__PASSWORD=secret",
	}

	out, err := run(t, env, "--endpoint", srv.URL+"/w/api.php", "--auth--username", "UserA@bot", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if strings.TrimSpace(out) != "UserA (logged in: true)" {
		t.Fatalf("output = %q", out)
	}
}

func TestToken_OAuth(t *testing.T) {
	t.Parallel()

	srv := fakeWiki(t)
	env := []string{
		"WIKICONNECT_ENDPOINT=" + srv.URL + "/w/api.php",
		"WIKICONNECT_AUTH__METHOD=oauth",
		"WIKICONNECT_AUTH__ACCESS_TOKEN=OAUTH",
	}

	out, err := run(t, env, "token", "--type", "csrf")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.TrimSpace(out) != `csrf+\` {
		t.Fatalf("output = %q", out)
	}
}

func TestToken_SeveralTypes(t *testing.T) {
	t.Parallel()

	srv := fakeWiki(t)
	env := []string{
		"WIKICONNECT_ENDPOINT=" + srv.URL + "/w/api.php",
		"WIKICONNECT_AUTH__METHOD=oauth",
		"WIKICONNECT_AUTH__ACCESS_TOKEN=OAUTH",
	}

	out, err := run(t, env, "token", "--type", "watch", "--type", "CSRF", "--type", "patrol")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	want := "watch+\\\ncsrf+\\\npatrol+\\\n"
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

func TestLogout_PersistedSession(t *testing.T) {
	t.Parallel()

	srv := fakeWiki(t)
	endpoint := "WIKICONNECT_ENDPOINT=" + srv.URL + "/w/api.php"
	cookieFile := "WIKICONNECT_COOKIE_FILE=" + filepath.Join(t.TempDir(), "cookies.json")
	env := []string{
		endpoint,
		cookieFile,
		"WIKICONNECT_AUTH__USERNAME=UserA@bot",
		"WIKICONNECT_AUTH__PASSWORD=secret",
	}

	if _, err := run(t, env, "whoami"); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if _, err := run(t, env, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}

	anon := []string{endpoint, cookieFile, "WIKICONNECT_AUTH__METHOD=none"}
	out, err := run(t, anon, "whoami")
	if err != nil {
		t.Fatalf("whoami (anonymous): %v", err)
	}
	if strings.TrimSpace(out) != "127.0.0.1 (logged in: false)" {
		t.Fatalf("output = %q", out)
	}
}

func TestCredentials_Keyring(t *testing.T) {
	keyring.MockInit()

	if _, err := run(t, nil, "credentials", "set", "--username", "UserA@bot", "--secret", "secret"); err != nil {
		t.Fatalf("credentials set: %v", err)
	}

	srv := fakeWiki(t)
	env := []string{
		"WIKICONNECT_ENDPOINT=" + srv.URL + "/w/api.php",
		"WIKICONNECT_AUTH__USERNAME=UserA@bot",
		"WIKICONNECT_AUTH__KEYRING=true",
	}
	out, err := run(t, env, "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if strings.TrimSpace(out) != "UserA (logged in: true)" {
		t.Fatalf("output = %q", out)
	}

	missing := append(env[:1:1], "WIKICONNECT_AUTH__USERNAME=Nobody", "WIKICONNECT_AUTH__KEYRING=true")
	if _, err := run(t, missing, "whoami"); err == nil {
		t.Fatalf("expected error for missing keyring entry")
	}
}
