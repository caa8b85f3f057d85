package mwapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

type TokenType string

const (
	TokenCSRF  TokenType = "csrf"
	TokenLogin TokenType = "login"
)

// Params is a flat set of request parameters. Values are converted to
// strings the same way as map[string]any.
type Params map[string]any

type MWError struct {
	Code string `json:"code"`
	Info string `json:"info,omitempty"`
	Text string `json:"text,omitempty"`
}

type Envelope struct {
	Error    *MWError          `json:"error,omitempty"`
	Warnings map[string]any    `json:"warnings,omitempty"`
	Continue map[string]string `json:"continue,omitempty"`
}

// Response is a validated API result. Raw holds the body exactly as the
// server sent it.
type Response struct {
	StatusCode int
	Header     http.Header
	Envelope

	Raw json.RawMessage
}

func (r *Response) Into(out any) error {
	return json.Unmarshal(r.Raw, out)
}

type userInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (r *Response) userInfo() (userInfo, error) {
	var out struct {
		Query struct {
			UserInfo *userInfo `json:"userinfo"`
		} `json:"query"`
	}
	if err := r.Into(&out); err != nil {
		return userInfo{}, err
	}
	if out.Query.UserInfo == nil {
		return userInfo{}, errors.New("mwapi: missing query.userinfo in response")
	}
	return *out.Query.UserInfo, nil
}
