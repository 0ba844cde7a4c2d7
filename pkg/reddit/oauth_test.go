package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTokenIsExpired(t *testing.T) {
	var missing *AuthToken
	assert.True(t, missing.IsExpired())
	assert.True(t, (&AuthToken{ExpiresAt: time.Now().Add(-time.Minute)}).IsExpired())
	assert.False(t, (&AuthToken{ExpiresAt: time.Now().Add(time.Minute)}).IsExpired())
}

func TestAuthTokenAuthorizationHeader(t *testing.T) {
	token := &AuthToken{AccessToken: "tok", TokenType: "bearer"}
	assert.Equal(t, "bearer tok", token.AuthorizationHeader())
}

func TestOauthToken(t *testing.T) {
	grants := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grants++
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "someone", r.PostForm.Get("username"))
		_, _ = w.Write([]byte(`{"access_token": "tok", "token_type": "bearer", "scope": "*", "expires_in": 3600}`))
	}))
	defer server.Close()

	oauth := NewOauth(Credentials{ClientID: "id", ClientSecret: "secret", Username: "someone", Password: "hunter2"}, nil)
	oauth.Endpoint = server.URL

	token, err := oauth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)
	assert.False(t, token.IsExpired())

	// A live token is served from the cache
	_, err = oauth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, grants)

	// Invalidation forces the next call back to the endpoint
	oauth.Invalidate()
	_, err = oauth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, grants)
}

func TestOauthTokenExpiredCache(t *testing.T) {
	grants := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grants++
		_, _ = w.Write([]byte(`{"access_token": "fresh", "token_type": "bearer", "expires_in": 3600}`))
	}))
	defer server.Close()

	cache := &TokenCache{}
	cache.Set(&AuthToken{AccessToken: "stale", ExpiresAt: time.Now().Add(-time.Minute)})

	oauth := NewOauth(Credentials{ClientID: "id", ClientSecret: "secret"}, cache)
	oauth.Endpoint = server.URL

	token, err := oauth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
	assert.Equal(t, 1, grants)
	assert.Equal(t, "fresh", cache.Get().AccessToken)
}

func TestOauthRejectedGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	oauth := NewOauth(Credentials{ClientID: "id", ClientSecret: "wrong"}, nil)
	oauth.Endpoint = server.URL

	_, err := oauth.Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
}
