package odata

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"
)

// Keycloak holds the password grant settings of an OIDC realm.
type Keycloak struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

// Issuer is the realm url announced by the discovery document.
func (kc Keycloak) Issuer() string {
	return fmt.Sprintf("%s/realms/%s", kc.URL, kc.Realm)
}

// Config discovers the realm endpoints.
func (kc Keycloak) Config(ctx context.Context) (*oauth2.Config, error) {
	provider, err := oidc.NewProvider(ctx, kc.Issuer())
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", kc.Issuer(), err)
	}
	return &oauth2.Config{
		ClientID:     kc.ClientID,
		ClientSecret: kc.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  kc.URL,
		Scopes:       []string{oidc.ScopeOpenID},
	}, nil
}

// Token logs username in and returns a refreshing token source with an
// http client authorizing every request with it.
func Token(ctx context.Context, username, password string, kc Keycloak) (oauth2.TokenSource, *http.Client, error) {
	config, err := kc.Config(ctx)
	if err != nil {
		return nil, nil, err
	}
	tk, err := config.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, nil, fmt.Errorf("password grant for %q: %w", username, err)
	}
	ts := config.TokenSource(ctx, tk)
	return ts, oauth2.NewClient(ctx, ts), nil
}
