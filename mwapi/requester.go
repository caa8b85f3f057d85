package mwapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const maxResponseBody = 32 << 20 // 32MiB

// Requester performs exactly one HTTP exchange per call against a single
// api.php endpoint and validates the JSON envelope of the result.
//
// A Requester carries one session: its http.Client cookie jar and at most one
// bound Auth. Requests may be issued concurrently, but login state is shared.
type Requester struct {
	endpoint *url.URL
	hc       *http.Client
	ua       string
	global   url.Values
	logger   *slog.Logger

	mu   sync.RWMutex
	auth Auth
}

func newRequester(endpoint *url.URL, hc *http.Client, ua string, global url.Values, logger *slog.Logger) *Requester {
	return &Requester{
		endpoint: endpoint,
		hc:       hc,
		ua:       ua,
		global:   global,
		logger:   logger,
	}
}

// SetAuth binds a, replacing any previous binding. Passing nil unbinds.
func (r *Requester) SetAuth(a Auth) {
	r.mu.Lock()
	r.auth = a
	r.mu.Unlock()
}

func (r *Requester) Auth() Auth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.auth
}

func (r *Requester) Get(ctx context.Context, action string, p any) (*Response, error) {
	return r.Send(ctx, http.MethodGet, action, p)
}

func (r *Requester) Post(ctx context.Context, action string, p any) (*Response, error) {
	return r.Send(ctx, http.MethodPost, action, p)
}

// Send merges the global parameters, p and action, attaches the bound
// Auth's headers and validates the response.
//
// Auth implementations may call back into the Requester from AuthHeaders.
// Those nested calls are sent without auth headers, so AuthHeaders must not
// depend on them being authenticated.
func (r *Requester) Send(ctx context.Context, method, action string, p any) (*Response, error) {
	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}
	if action == "" {
		return nil, fmt.Errorf("action is required")
	}

	call, err := normalizeParams(p)
	if err != nil {
		return nil, err
	}
	np := mergeParams(r.global, call, action)
	if method == http.MethodGet && len(np.Files) > 0 {
		return nil, fmt.Errorf("file parameters require POST (action=%s)", action)
	}

	headers, err := r.authHeaders(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth headers: %w", err)
	}

	req, err := r.buildRequest(ctx, method, np)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	r.logger.DebugContext(ctx, "mediawiki request", "method", method, "action", action)

	res, err := r.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}

	resp, err := checkResponse(action, res.StatusCode, body)
	if err != nil {
		r.logger.DebugContext(ctx, "mediawiki request failed",
			"method", method, "action", action, "status", res.StatusCode, "error", err)
		return nil, err
	}
	resp.Header = res.Header.Clone()
	return resp, nil
}

type authHeadersKey struct{}

func (r *Requester) authHeaders(ctx context.Context) (map[string]string, error) {
	a := r.Auth()
	if a == nil || ctx.Value(authHeadersKey{}) != nil {
		return nil, nil
	}
	return a.AuthHeaders(context.WithValue(ctx, authHeadersKey{}, true))
}

func (r *Requester) buildRequest(ctx context.Context, method string, np normalizedParams) (*http.Request, error) {
	base := *r.endpoint
	baseQuery := base.Query()

	if method == http.MethodGet {
		for k, vs := range np.Values {
			baseQuery.Set(k, vs[0])
		}
		base.RawQuery = baseQuery.Encode()
		req, err := http.NewRequestWithContext(ctx, method, base.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", r.ua)
		return req, nil
	}

	// POST: body wins if the same key exists in endpoint query.
	for k := range np.Values {
		baseQuery.Del(k)
	}
	base.RawQuery = baseQuery.Encode()

	var body io.Reader
	contentType := "application/x-www-form-urlencoded; charset=UTF-8"

	if len(np.Files) == 0 {
		body = strings.NewReader(np.Values.Encode())
	} else {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, vs := range np.Values {
			if err := w.WriteField(k, vs[0]); err != nil {
				return nil, err
			}
		}
		for _, f := range np.Files {
			filename := f.File.Filename
			if filename == "" {
				filename = f.Field
			}
			fw, err := w.CreateFormFile(f.Field, filename)
			if err != nil {
				_ = w.Close()
				return nil, err
			}
			if _, err := io.Copy(fw, f.File.Reader); err != nil {
				_ = w.Close()
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		body = &buf
		contentType = w.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", r.ua)
	return req, nil
}

// checkResponse turns a raw body into a Response, or into ErrEmptyResponse,
// a decode error or a *UsageError.
func checkResponse(action string, status int, body []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyResponse
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}

	resp := &Response{
		StatusCode: status,
		Raw:        json.RawMessage(body),
	}
	// Best-effort parse the minimal envelope fields.
	_ = json.Unmarshal(trimmed, &resp.Envelope)

	if raw, ok := top["error"]; ok {
		var e MWError
		_ = json.Unmarshal(raw, &e)
		return nil, &UsageError{
			Code:        firstNonEmpty(e.Code, "unknown"),
			Message:     firstNonEmpty(e.Info, e.Text, "No error information provided"),
			HTTPStatus:  status,
			RawResponse: string(body),
		}
	}

	if raw, ok := top[action]; ok {
		var result struct {
			Result string          `json:"result"`
			Reason json.RawMessage `json:"reason"`
		}
		if json.Unmarshal(raw, &result) == nil && result.Result == "Failed" {
			return nil, &UsageError{
				Code:        action + "_failed",
				Message:     reasonText(result.Reason),
				HTTPStatus:  status,
				RawResponse: string(body),
			}
		}
	}

	return resp, nil
}

// reasonText accepts both the legacy string reason and the structured
// {code, text} form.
func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var m MWError
	if json.Unmarshal(raw, &m) == nil {
		if msg := firstNonEmpty(m.Text, m.Info, m.Code); msg != "" {
			return msg
		}
	}
	return string(raw)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
