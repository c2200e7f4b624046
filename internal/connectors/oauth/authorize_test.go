//nolint:noctx // tests drive the loopback server with plain http.Get
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

func listen(t *testing.T) *Callback {
	t.Helper()
	cb, err := ListenCallback(0, "state-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cb.Close() })
	return cb
}

func hit(t *testing.T, cb *Callback, query string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?%s", cb.Port(), query))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func waitCode(cb *Callback) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return cb.Wait(ctx)
}

func TestCallback_ReceivesCode(t *testing.T) {
	cb := listen(t)
	assert.NotZero(t, cb.Port())
	assert.Equal(t, fmt.Sprintf("http://localhost:%d/callback", cb.Port()), cb.RedirectURL())

	hit(t, cb, "state=state-1&code=abc")
	hit(t, cb, "state=state-1&code=second")

	code, err := waitCode(cb)
	require.NoError(t, err)
	assert.Equal(t, "abc", code, "only the first redirect counts")
}

func TestCallback_Failures(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"state mismatch", "state=other&code=abc", "state mismatch"},
		{"provider error", "error=access_denied&error_description=nope", "access_denied"},
		{"missing code", "state=state-1", "no authorization code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := listen(t)
			hit(t, cb, tt.query)

			_, err := waitCode(cb)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCallback_WaitTimeout(t *testing.T) {
	cb := listen(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListenCallback_PortInUse(t *testing.T) {
	cb := listen(t)
	_, err := ListenCallback(cb.Port(), "x")
	assert.Error(t, err)
}

func TestEndpointFor(t *testing.T) {
	ep, scopes, ok := EndpointFor(domain.AccountTypeGoogleDrive)
	require.True(t, ok)
	assert.Equal(t, GoogleEndpoint.TokenURL, ep.TokenURL)
	assert.Equal(t, []string{GoogleDriveReadOnlyScope}, scopes)

	ep, _, ok = EndpointFor(domain.AccountTypeBox)
	require.True(t, ok)
	assert.Equal(t, BoxEndpoint.AuthURL, ep.AuthURL)

	_, _, ok = EndpointFor(domain.AccountTypeDropbox)
	assert.False(t, ok)
}

func TestAuthorize_ExchangesCode(t *testing.T) {
	var form url.Values
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var challenge string
	open := func(consent string) error {
		u, err := url.Parse(consent)
		if err != nil {
			return err
		}
		q := u.Query()
		challenge = q.Get("code_challenge")
		redirect := q.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(q.Get("state"))
		go func() {
			if resp, err := http.Get(redirect); err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tok, err := Authorize(ctx, AuthorizeRequest{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://consent.example/auth",
			TokenURL:  tokenSrv.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{"read"},
		Open:   open,
	})
	require.NoError(t, err)

	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.NotEmpty(t, challenge)
	assert.Equal(t, "the-code", form.Get("code"))
	assert.NotEmpty(t, form.Get("code_verifier"))
	assert.Equal(t, "client", form.Get("client_id"))
}

func TestAuthorize_RequiresClientCredentials(t *testing.T) {
	_, err := Authorize(context.Background(), AuthorizeRequest{ClientID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAuthorize_OpenFailure(t *testing.T) {
	_, err := Authorize(context.Background(), AuthorizeRequest{
		ClientID:     "c",
		ClientSecret: "s",
		Endpoint:     BoxEndpoint,
		Open:         func(string) error { return fmt.Errorf("no browser") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no browser")
}
