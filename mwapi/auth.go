package mwapi

import (
	"context"
	"sync"
)

// Auth is a credential strategy bound to an ActionAPI's Requester.
//
// AuthHeaders is called before every request. Requests it issues itself are
// sent without auth headers, so it must not rely on them.
type Auth interface {
	Login(ctx context.Context) (bool, error)
	Logout(ctx context.Context) error
	IsLoggedIn(ctx context.Context) (bool, error)

	// Username is the configured account name.
	Username() string
	// RealUsername is the name the server reports for the session.
	RealUsername(ctx context.Context) (string, error)

	AuthHeaders(ctx context.Context) (map[string]string, error)
}

// identityCache holds the server-confirmed username. Both Auth variants
// keep it until an explicit Login or Logout.
type identityCache struct {
	mu   sync.Mutex
	name string
}

func (c *identityCache) get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name, c.name != ""
}

func (c *identityCache) set(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *identityCache) reset() {
	c.set("")
}

func queryUserInfo(ctx context.Context, r *Requester, p map[string]any) (userInfo, error) {
	if p == nil {
		p = map[string]any{}
	}
	p["meta"] = "userinfo"
	resp, err := r.Get(ctx, "query", p)
	if err != nil {
		return userInfo{}, err
	}
	return resp.userInfo()
}
