package teams

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// newTokenSource builds a cached Bot Framework token source. The client
// credentials grant is refreshed transparently before expiry; concurrent
// callers share one refresh.
func newTokenSource(ctx context.Context, cfg Config, httpClient *http.Client) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppPassword,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{cfg.TokenScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx))
}
