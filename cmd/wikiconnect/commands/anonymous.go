package commands

import (
	"context"

	"github.com/qrdlife/wikiconnect-go/mwapi"
)

// anonymous is the Auth used with method "none": it adds no headers and
// treats the IP session as the identity.
type anonymous struct {
	api *mwapi.ActionAPI
}

var _ mwapi.Auth = anonymous{}

func (anonymous) Login(context.Context) (bool, error) { return true, nil }
func (anonymous) Logout(context.Context) error        { return nil }
func (anonymous) Username() string                    { return "" }

func (anonymous) IsLoggedIn(context.Context) (bool, error) { return false, nil }

func (a anonymous) RealUsername(ctx context.Context) (string, error) {
	resp, err := a.api.Requester().Get(ctx, "query", mwapi.Params{"meta": "userinfo"})
	if err != nil {
		return "", err
	}
	var out struct {
		Query struct {
			UserInfo struct {
				Name string `json:"name"`
			} `json:"userinfo"`
		} `json:"query"`
	}
	if err := resp.Into(&out); err != nil {
		return "", err
	}
	return out.Query.UserInfo.Name, nil
}

func (anonymous) AuthHeaders(context.Context) (map[string]string, error) {
	return nil, nil
}
