package mwapi

import (
	"context"
	"strings"
)

// Token fetches tokens through a Requester. It never caches: tokens rotate
// with the session, so keeping them is left to the caller.
type Token struct {
	r *Requester
}

func NewToken(r *Requester) *Token {
	return &Token{r: r}
}

// Get queries meta=tokens for tokenType. ok is false when the response has no
// token of that type. Every call is its own round trip bound to ctx.
func (t *Token) Get(ctx context.Context, tokenType TokenType) (string, bool, error) {
	typ := strings.ToLower(string(tokenType))
	resp, err := t.r.Get(ctx, "query", map[string]any{
		"meta": "tokens",
		"type": typ,
	})
	if err != nil {
		return "", false, err
	}
	return extractToken(resp, typ)
}

func extractToken(resp *Response, typ string) (string, bool, error) {
	var r struct {
		Query struct {
			Tokens map[string]string `json:"tokens"`
		} `json:"query"`
	}
	if err := resp.Into(&r); err != nil {
		return "", false, err
	}

	tok, ok := r.Query.Tokens[typ+"token"]
	return tok, ok, nil
}
