package google

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/cloudpoll/internal/connectors/oauth"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// DriveReadOnlyScope is the scope the Drive connector needs.
const DriveReadOnlyScope = oauth.GoogleDriveReadOnlyScope

// NewTokenSource creates an oauth2.TokenSource from an account's config.
// Accounts with a refresh token renew against Google's token endpoint.
// The returned TokenSource can be passed to NewDriveService.
func NewTokenSource(ctx context.Context, account domain.Account) (oauth2.TokenSource, error) {
	return oauth.TokenSource(ctx, account, oauth.GoogleEndpoint)
}
