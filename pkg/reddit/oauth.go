package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Lachee/reddit-download/pkg/common"
	"github.com/go-faster/errors"
)

// tokenEndpoint is where we trade credentials for a bearer token
const tokenEndpoint = "https://www.reddit.com/api/v1/access_token"

// apiUserAgent identifies us against the oauth API. The scraping paths use
// common.DesktopUserAgent instead, the API ones must not.
const apiUserAgent = "LacheesClient/" + common.Version + " (by /u/Lachee)"

// Credentials of a reddit script application plus the account it acts as
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// IsZero reports whether no credentials are configured at all
func (c Credentials) IsZero() bool {
	return c.ClientID == "" && c.ClientSecret == ""
}

// AuthToken is a bearer token obtained from the password grant
type AuthToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in"`
	// ExpiresAt is derived from ExpiresIn when the token is created
	ExpiresAt time.Time `json:"-"`
}

// IsExpired reports whether the token can no longer be used. Every caller
// must check this before reusing a previously fetched token.
func (t *AuthToken) IsExpired() bool {
	return t == nil || !time.Now().Before(t.ExpiresAt)
}

// AuthorizationHeader builds the header value consumers send to oauth
// endpoints
func (t *AuthToken) AuthorizationHeader() string {
	return t.TokenType + " " + t.AccessToken
}

// TokenCache is a single slot holding the most recent token. Concurrent
// refreshes race harmlessly, last write wins.
type TokenCache struct {
	mu    sync.Mutex
	token *AuthToken
}

// Get returns the cached token, which may be nil or expired
func (c *TokenCache) Get() *AuthToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Set stores a freshly obtained token
func (c *TokenCache) Set(token *AuthToken) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Oauth obtains and caches bearer tokens for the resolver and scraper
type Oauth struct {
	creds  Credentials
	cache  *TokenCache
	client *http.Client

	// Endpoint can be overridden in tests. Empty means tokenEndpoint.
	Endpoint string
}

// NewOauth creates an authentication manager around an injectable token
// cache. Passing a nil cache creates a private one.
func NewOauth(creds Credentials, cache *TokenCache) *Oauth {
	if cache == nil {
		cache = &TokenCache{}
	}
	return &Oauth{
		creds:  creds,
		cache:  cache,
		client: &common.GlobalHttpClient,
	}
}

// Token returns a valid bearer token, authenticating synchronously when
// the cached one is missing or expired. There is no background refresh.
func (o *Oauth) Token(ctx context.Context) (*AuthToken, error) {
	if token := o.cache.Get(); !token.IsExpired() {
		return token, nil
	}
	token, err := o.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	o.cache.Set(token)
	return token, nil
}

// Invalidate drops the cached token so the next Token call authenticates
// again. Used for the single forced retry after a 401.
func (o *Oauth) Invalidate() {
	o.cache.Set(nil)
}

// authenticate performs the password grant against the token endpoint
func (o *Oauth) authenticate(ctx context.Context) (*AuthToken, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", o.creds.Username)
	form.Set("password", o.creds.Password)

	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = tokenEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "cannot create token request")
	}
	req.Header.Set("User-Agent", apiUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(o.creds.ClientID, o.creds.ClientSecret)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "cannot reach token endpoint")
	}
	defer resp.Body.Close()

	var body struct {
		AuthToken
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "cannot parse token response")
	}
	if body.Error != "" {
		return nil, errors.Wrapf(ErrAuthentication, "reddit rejected the grant: %s", body.Error)
	}
	token := body.AuthToken
	token.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return &token, nil
}
