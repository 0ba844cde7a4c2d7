package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/Lachee/reddit-download/pkg/common"
	"github.com/go-faster/errors"
)

// Domains are the root domains reddit operates
var Domains = []string{
	"reddit.com",
	"redd.it",
	"redditstatic.com",
	"redditmedia.com",
}

// shareLinkRegex matches the shortened share links reddit hands out,
// like reddit.com/r/pics/s/AbCdEf
var shareLinkRegex = regexp.MustCompile(`reddit\.com/r/\w+/s/`)

// RootDomain returns the last two labels of a hostname, so
// "v.redd.it" becomes "redd.it" and "www.reddit.com" becomes "reddit.com"
func RootDomain(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// ValidateURL parses href and accepts it only when its root domain is one
// of allowedRoots. Relative /r/ links are rewritten against www.reddit.com
// first. It returns nil on any failure and never an error.
func ValidateURL(href string, allowedRoots []string) *url.URL {
	if strings.HasPrefix(href, "/r/") {
		href = "https://www.reddit.com" + href
	}
	u, err := url.Parse(href)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	root := RootDomain(u.Hostname())
	for _, allowed := range allowedRoots {
		if root == allowed {
			return u
		}
	}
	return nil
}

// StripQuery removes the query parameters from a url
func StripQuery(u *url.URL) *url.URL {
	stripped := *u
	stripped.RawQuery = ""
	stripped.Fragment = ""
	return &stripped
}

// Follower resolves reddit share links to their canonical permalink.
// Callers which can reach reddit directly use DirectFollower; callers
// stuck behind a same-origin policy delegate to a follow endpoint with
// DelegateFollower.
type Follower interface {
	Follow(ctx context.Context, u *url.URL) (*url.URL, error)
}

// DirectFollower follows share links with a redirect-following HEAD
// request straight to reddit
type DirectFollower struct {
	Client *http.Client
}

var _ Follower = DirectFollower{}

// Follow resolves a share link to the final post url. Anything that is not
// a share link is returned unchanged, minus its query parameters.
func (f DirectFollower) Follow(ctx context.Context, u *url.URL) (*url.URL, error) {
	if !shareLinkRegex.MatchString(u.String()) {
		return StripQuery(u), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create request")
	}
	// Reddit refuses HEAD requests from non-browser agents
	req.Header.Set("User-Agent", common.DesktopUserAgent)
	client := f.Client
	if client == nil {
		client = &common.GlobalHttpClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "cannot follow share link")
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUpstreamStatus, "share link follow returned %s", resp.Status)
	}
	return StripQuery(resp.Request.URL), nil
}

// DelegateFollower asks a same-origin follow endpoint to resolve the link
// and parses its {"href": ...} response
type DelegateFollower struct {
	Client   *http.Client
	Endpoint string
}

var _ Follower = DelegateFollower{}

// Follow resolves a share link through the delegate endpoint
func (f DelegateFollower) Follow(ctx context.Context, u *url.URL) (*url.URL, error) {
	if !shareLinkRegex.MatchString(u.String()) {
		return StripQuery(u), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint+"?href="+url.QueryEscape(u.String()), nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create request")
	}
	client := f.Client
	if client == nil {
		client = &common.GlobalHttpClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "cannot reach follow endpoint")
	}
	defer resp.Body.Close()
	var body struct {
		Href string `json:"href"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "cannot parse follow response")
	}
	followed, err := url.Parse(body.Href)
	if err != nil {
		return nil, errors.Wrap(err, "follow endpoint returned a broken url")
	}
	return StripQuery(followed), nil
}
