package reddit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Lachee/reddit-download/pkg/common"
	"github.com/go-faster/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// maxCrosspostDepth bounds the crosspost chain we are willing to walk.
// Past it we fail closed and keep the last post we saw.
const maxCrosspostDepth = 5

// Resolver turns a reddit link into a normalized Post
type Resolver struct {
	// Client defaults to common.GlobalHttpClient when nil
	Client *http.Client
	// Oauth enables authenticated fetching through oauth.reddit.com,
	// which reaches nsfw, quarantined and restricted subreddits. Nil
	// means unauthenticated access through www.reddit.com.
	Oauth *Oauth
	// Follower resolves share links. Nil means a DirectFollower.
	Follower Follower
	// AllowMP4Variants includes the mp4 renditions of preview images.
	// Off by default, the same assets arrive through better paths.
	AllowMP4Variants bool

	// PermalinkHost can be overridden in tests. Empty means
	// https://www.reddit.com.
	PermalinkHost string
	// OauthHost can be overridden in tests. Empty means
	// https://oauth.reddit.com.
	OauthHost string
}

func (r *Resolver) httpClient() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return &common.GlobalHttpClient
}

func (r *Resolver) permalinkHost() string {
	if r.PermalinkHost != "" {
		return r.PermalinkHost
	}
	return "https://www.reddit.com"
}

func (r *Resolver) oauthHost() string {
	if r.OauthHost != "" {
		return r.OauthHost
	}
	return "https://oauth.reddit.com"
}

// Resolve normalizes the link, fetches the post json and collates every
// media rendition into a Post. Network and parse failures on the post
// itself are returned as errors, failures inside any single media
// extraction only drop that piece.
func (r *Resolver) Resolve(ctx context.Context, link string) (post *Post, err error) {
	// A single malformed post must not take the whole service down
	defer func() {
		if recovered := recover(); recovered != nil {
			post = nil
			err = errors.Errorf("recovered from panic while resolving %s: %v", link, recovered)
		}
	}()

	u := ValidateURL(link, Domains)
	if u == nil {
		return nil, errors.Wrapf(ErrInvalidURL, "href %q", link)
	}
	follower := r.Follower
	if follower == nil {
		follower = DirectFollower{Client: r.Client}
	}
	u, err = follower.Follow(ctx, u)
	if err != nil {
		return nil, errors.Wrap(err, "cannot follow link")
	}
	return r.resolve(ctx, u, 0)
}

func (r *Resolver) resolve(ctx context.Context, u *url.URL, depth int) (*Post, error) {
	data, err := r.fetchPostData(ctx, u)
	if err != nil {
		return nil, err
	}

	// A crosspost only re-shares another post, the media belongs to the
	// root of the chain. The last parent entry is the root most one.
	if parents := data.Get("crosspost_parent_list"); parents.IsArray() && len(parents.Array()) > 0 && depth < maxCrosspostDepth {
		entries := parents.Array()
		parentPermalink := entries[len(entries)-1].Get("permalink").String()
		if parentPermalink != "" {
			parentURL, err := url.Parse(r.permalinkHost() + parentPermalink)
			if err == nil {
				if parent, err := r.resolve(ctx, parentURL, depth+1); err == nil {
					return parent, nil
				}
				// Fail closed on a broken parent and keep this post
				zap.S().Warnw("cannot resolve crosspost parent", "permalink", parentPermalink)
			}
		}
	}

	permalink := r.permalinkHost() + data.Get("permalink").String()
	post := &Post{
		ID:        data.Get("name").String(),
		Name:      data.Get("subreddit").String(),
		Permalink: permalink,
		URL:       data.Get("url").String(),
		Title:     data.Get("title").String(),
		NSFW:      data.Get("over_18").Bool(),
		IsVideo:   data.Get("is_video").Bool(),
		Media:     r.extractCollections(ctx, data),
	}
	if post.URL == "" {
		post.URL = permalink
	}

	if thumbnail := data.Get("thumbnail"); thumbnail.Exists() && isURL(thumbnail.String()) {
		post.Thumbnail = &Media{
			Mime:    MimeImageJPEG,
			Variant: VariantThumbnail,
			Href:    thumbnail.String(),
		}
		if width := data.Get("thumbnail_width"); width.Exists() && width.Int() > 0 {
			post.Thumbnail.Dimension = &Dimension{Width: width.Int()}
			if height := data.Get("thumbnail_height"); height.Exists() && height.Int() > 0 {
				post.Thumbnail.Dimension.Height = height.Int()
			}
		}
	}

	r.repairImgurMedia(ctx, post)
	return post, nil
}

// fetchPostData downloads {permalink}.json?raw_json=1 and digs out the
// post object at [0].data.children[0].data. A 401 forces one
// re-authentication, stale tokens answer that way.
func (r *Resolver) fetchPostData(ctx context.Context, u *url.URL) (gjson.Result, error) {
	data, status, err := r.fetchPostDataOnce(ctx, u)
	if status == http.StatusUnauthorized && r.Oauth != nil {
		r.Oauth.Invalidate()
		data, _, err = r.fetchPostDataOnce(ctx, u)
	}
	return data, err
}

func (r *Resolver) fetchPostDataOnce(ctx context.Context, u *url.URL) (gjson.Result, int, error) {
	// With credentials we go through the oauth host instead, it serves
	// the subreddits the anonymous api refuses
	host := r.permalinkHost()
	var token *AuthToken
	if r.Oauth != nil {
		var err error
		token, err = r.Oauth.Token(ctx)
		if err != nil {
			return gjson.Result{}, 0, errors.Wrap(err, "cannot authenticate")
		}
		host = r.oauthHost()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+u.EscapedPath()+".json?raw_json=1", nil)
	if err != nil {
		return gjson.Result{}, 0, errors.Wrap(err, "cannot create post request")
	}
	req.Header.Set("User-Agent", apiUserAgent)
	if token != nil {
		req.Header.Set("Authorization", token.AuthorizationHeader())
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return gjson.Result{}, 0, errors.Wrap(err, "cannot fetch post")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, resp.StatusCode, errors.Wrapf(ErrUpstreamStatus, "post fetch returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, resp.StatusCode, errors.Wrap(err, "cannot read post body")
	}
	data := gjson.GetBytes(body, "0.data.children.0.data")
	if !data.Exists() {
		return gjson.Result{}, resp.StatusCode, errors.New("response carries no post data")
	}
	return data, resp.StatusCode, nil
}

// repairImgurMedia fixes posts whose only media points at a deleted imgur
// asset. When the link is dead we scrape the reddit page itself for the
// preview copy reddit still hosts and swap it in.
func (r *Resolver) repairImgurMedia(ctx context.Context, post *Post) {
	if len(post.Media) != 1 || len(post.Media[0]) != 1 {
		return
	}
	media := &post.Media[0][0]
	if !strings.Contains(media.Href, "i.imgur") {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, media.Href, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", common.DesktopUserAgent)
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return
	}

	replacement, err := r.scrapeExternalMedia(ctx, post.Permalink)
	if err != nil || replacement == "" {
		zap.S().Warnw("cannot scrape a replacement for dead imgur media", "href", media.Href, "error", err)
		return
	}
	media.Href = replacement
	media.Mime, media.Variant = formatHint(replacement)
}

// formatHint maps the format query parameter of a scraped preview url to
// its mime and variant
func formatHint(href string) (string, Variant) {
	format := ""
	if u, err := url.Parse(href); err == nil {
		format = u.Query().Get("format")
	}
	switch format {
	case "mp4":
		return MimeVideoMP4, VariantPartialVideo
	case "png":
		return MimeImagePNG, VariantImage
	case "jpg", "jpeg":
		return MimeImageJPEG, VariantImage
	default:
		return MimeImageGIF, VariantGIF
	}
}

// isURL reports whether the string looks like an absolute url. Reddit
// writes values like "default" or "nsfw" into the thumbnail field.
func isURL(str string) bool {
	u, err := url.Parse(str)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// String implements fmt.Stringer for debug logging
func (p *Post) String() string {
	return fmt.Sprintf("%s (%d media collections)", p.Permalink, len(p.Media))
}
