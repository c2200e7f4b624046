package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// Scopes requested during interactive authorization.
const (
	GoogleDriveReadOnlyScope = "https://www.googleapis.com/auth/drive.readonly"
	BoxRootReadScope         = "root_readonly"
)

// EndpointFor returns the OAuth endpoint and scopes for account types
// that support refresh tokens.
func EndpointFor(accountType domain.AccountType) (oauth2.Endpoint, []string, bool) {
	switch accountType {
	case domain.AccountTypeGoogleDrive:
		return GoogleEndpoint, []string{GoogleDriveReadOnlyScope}, true
	case domain.AccountTypeBox:
		return BoxEndpoint, []string{BoxRootReadScope}, true
	default:
		return oauth2.Endpoint{}, nil, false
	}
}

// AuthorizeRequest describes one interactive authorization.
type AuthorizeRequest struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	Scopes       []string
	// Port for the loopback callback; 0 picks a free one.
	Port int
	// Open presents the consent URL to the user.
	Open func(url string) error
}

// Authorize runs the authorization code flow with PKCE against a loopback
// callback and exchanges the code for a token.
func Authorize(ctx context.Context, req AuthorizeRequest) (*oauth2.Token, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", domain.ErrInvalidInput)
	}
	open := req.Open
	if open == nil {
		open = OpenBrowser
	}

	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	callback, err := ListenCallback(req.Port, state)
	if err != nil {
		return nil, err
	}
	defer func() { _ = callback.Close() }()

	cfg := &oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Endpoint:     req.Endpoint,
		Scopes:       req.Scopes,
		RedirectURL:  callback.RedirectURL(),
	}
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)
	if err := open(authURL); err != nil {
		return nil, fmt.Errorf("open consent page: %w", err)
	}

	code, err := callback.Wait(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
