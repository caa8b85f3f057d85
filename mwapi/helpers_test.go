package mwapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func parseRequest(t *testing.T, r *http.Request) {
	t.Helper()
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(32 << 20)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		t.Errorf("parse request: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func unhandled(w http.ResponseWriter) {
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"code": "badtest",
			"info": "unhandled request",
		},
	})
}

func newTestAPI(t *testing.T, h http.HandlerFunc, opts ...Option) *ActionAPI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	api, err := NewActionAPI(srv.URL+"/w/api.php", opts...)
	if err != nil {
		t.Fatalf("NewActionAPI: %v", err)
	}
	return api
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}
