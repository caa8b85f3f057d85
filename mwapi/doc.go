// Package mwapi is a client for the MediaWiki Action API.
//
// An ActionAPI is built once from an api.php endpoint and options, then an
// Auth strategy is created and bound explicitly:
//
//	api, err := mwapi.NewActionAPI("https://en.wikipedia.org/w/api.php",
//		mwapi.WithUserAgent("MyBot/1.0"),
//		mwapi.WithCookieFile("cookies.json"))
//	auth := mwapi.NewUserAndPassword(api, "User@bot", "secret")
//	api.SetAuth(auth)
//	ok, err := auth.Login(ctx)
//	tok, err := api.GetToken(ctx, mwapi.TokenCSRF)
//
// All traffic goes through the Requester, which merges parameters, attaches
// auth headers and turns error envelopes into *UsageError values.
package mwapi
