// Package oauth builds OAuth2 token sources and HTTP clients from account
// configuration. Accounts carry either a bare access token or a refresh
// token with the client credentials needed to renew it.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// Provider OAuth endpoints.
var (
	GoogleEndpoint = oauth2.Endpoint{
		AuthURL:   "https://accounts.google.com/o/oauth2/auth",
		TokenURL:  "https://oauth2.googleapis.com/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}

	BoxEndpoint = oauth2.Endpoint{
		AuthURL:   "https://account.box.com/api/oauth2/authorize",
		TokenURL:  "https://api.box.com/oauth2/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 60 * time.Second

// TokenSource returns the account's token source.
// With a refresh token configured the source renews itself against
// endpoint; the stored access token, if any, is used until the first
// refresh. Otherwise the access token is used as is.
func TokenSource(ctx context.Context, account domain.Account, endpoint oauth2.Endpoint) (oauth2.TokenSource, error) {
	access := account.ConfigValue(domain.ConfigKeyToken, "")

	if refresh := account.ConfigValue(domain.ConfigKeyRefreshToken, ""); refresh != "" {
		cfg := &oauth2.Config{
			ClientID:     account.ConfigValue(domain.ConfigKeyClientID, ""),
			ClientSecret: account.ConfigValue(domain.ConfigKeyClientSecret, ""),
			Endpoint:     endpoint,
		}
		tok := &oauth2.Token{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			// The stored token's lifetime is unknown; renew on first use.
			Expiry: time.Now(),
		}
		return cfg.TokenSource(ctx, tok), nil
	}

	if access == "" {
		return nil, fmt.Errorf("%w: account %s has no access token", domain.ErrInvalidInput, account.ID)
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "Bearer"}), nil
}

// NewHTTPClient returns an HTTP client that authorises requests with ts.
// A zero timeout selects DefaultTimeout; a negative one disables it.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	client := oauth2.NewClient(ctx, ts)
	switch {
	case timeout == 0:
		client.Timeout = DefaultTimeout
	case timeout > 0:
		client.Timeout = timeout
	}
	return client
}
