package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// realm serves the discovery document, the token endpoint and one
// protected collection.
func realm(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/DEVICES/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 srv.URL + "/realms/DEVICES",
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/certs",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("grant_type") != "password" || r.Form.Get("username") != "dev" || r.Form.Get("password") != "secret" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tk-1","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/Orders/$count", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tk-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "3")
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestKeycloakToken(t *testing.T) {
	srv := realm(t)
	kc := Keycloak{URL: srv.URL, Realm: "DEVICES", ClientID: "devices", ClientSecret: "s"}
	assert.Equal(t, srv.URL+"/realms/DEVICES", kc.Issuer())

	ctx := context.Background()
	ts, hc, err := Token(ctx, "dev", "secret", kc)
	require.NoError(t, err)
	tk, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "tk-1", tk.AccessToken)

	cl := NewClient(WithHTTPClient(hc))
	cl.SetURI(srv.URL + "/Orders")
	n, err := cl.GetCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, _, err = Token(ctx, "dev", "wrong", kc)
	assert.Error(t, err)
}

func TestKeycloakUnknownRealm(t *testing.T) {
	srv := realm(t)
	_, _, err := Token(context.Background(), "dev", "secret", Keycloak{URL: srv.URL, Realm: "OTHER"})
	assert.Error(t, err)
}
