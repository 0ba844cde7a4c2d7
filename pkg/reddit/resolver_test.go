package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport sends every request to the test server regardless of the
// host the code under test targeted
type rewriteTransport struct {
	host string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rewritten := req.Clone(req.Context())
	rewritten.URL.Scheme = "http"
	rewritten.URL.Host = t.host
	return http.DefaultTransport.RoundTrip(rewritten)
}

// listing wraps a post object the way the reddit json api does
func listing(post string) string {
	return `[{"data": {"children": [{"data": ` + post + `}]}}]`
}

func TestResolveRejectsForeignDomains(t *testing.T) {
	resolver := &Resolver{}
	tests := []string{
		"https://evil.com/r/pics/comments/1/x",
		"https://fakereddit.com/r/pics",
		"not a url at all",
	}
	for _, href := range tests {
		t.Run(href, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), href)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestResolvePost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/r/pics/comments/1/sunset.json", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("raw_json"))
		_, _ = w.Write([]byte(listing(`{
			"name": "t3_abc",
			"permalink": "/r/pics/comments/1/sunset",
			"url": "https://i.redd.it/sunset.jpg",
			"subreddit": "pics",
			"title": "Sunset",
			"over_18": false,
			"is_video": false,
			"thumbnail": "https://b.thumbs.redditmedia.com/thumb.jpg",
			"thumbnail_width": 140,
			"thumbnail_height": 93,
			"url_overridden_by_dest": "https://i.redd.it/sunset.jpg"
		}`)))
	}))
	defer server.Close()

	resolver := &Resolver{Client: server.Client(), PermalinkHost: server.URL}
	post, err := resolver.Resolve(context.Background(), "https://www.reddit.com/r/pics/comments/1/sunset")
	require.NoError(t, err)

	assert.Equal(t, "t3_abc", post.ID)
	assert.Equal(t, "pics", post.Name)
	assert.Equal(t, server.URL+"/r/pics/comments/1/sunset", post.Permalink)
	assert.Equal(t, "https://i.redd.it/sunset.jpg", post.URL)
	assert.Equal(t, "Sunset", post.Title)
	assert.False(t, post.NSFW)
	assert.Equal(t, []MediaVariantCollection{
		{{Mime: MimeImageJPEG, Variant: VariantImage, Href: "https://i.redd.it/sunset.jpg"}},
	}, post.Media)
	require.NotNil(t, post.Thumbnail)
	assert.Equal(t, Media{
		Mime:      MimeImageJPEG,
		Variant:   VariantThumbnail,
		Href:      "https://b.thumbs.redditmedia.com/thumb.jpg",
		Dimension: &Dimension{Width: 140, Height: 93},
	}, *post.Thumbnail)
}

func TestResolvePlaceholderThumbnail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listing(`{
			"name": "t3_abc",
			"permalink": "/r/AskReddit/comments/2/question",
			"title": "A question",
			"thumbnail": "self"
		}`)))
	}))
	defer server.Close()

	resolver := &Resolver{Client: server.Client(), PermalinkHost: server.URL}
	post, err := resolver.Resolve(context.Background(), "https://www.reddit.com/r/AskReddit/comments/2/question")
	require.NoError(t, err)

	// Reddit writes placeholders like "self" or "default" into the
	// thumbnail field, those are not media
	assert.Nil(t, post.Thumbnail)
	// A post with no url still gets its permalink as the url
	assert.Equal(t, server.URL+"/r/AskReddit/comments/2/question", post.URL)
}

func TestResolveCrosspost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/r/mirror/comments/2/repost.json":
			_, _ = w.Write([]byte(listing(`{
				"name": "t3_child",
				"permalink": "/r/mirror/comments/2/repost",
				"title": "cool video (crosspost)",
				"crosspost_parent_list": [
					{"permalink": "/r/middle/comments/9/hop"},
					{"permalink": "/r/videos/comments/1/original"}
				]
			}`)))
		case "/r/videos/comments/1/original.json":
			_, _ = w.Write([]byte(listing(`{
				"name": "t3_parent",
				"permalink": "/r/videos/comments/1/original",
				"title": "cool video",
				"url_overridden_by_dest": "https://i.redd.it/clip.mp4"
			}`)))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	resolver := &Resolver{Client: server.Client(), PermalinkHost: server.URL}
	post, err := resolver.Resolve(context.Background(), "https://www.reddit.com/r/mirror/comments/2/repost")
	require.NoError(t, err)

	// The last parent entry is the root of the chain and its media wins
	assert.Equal(t, "t3_parent", post.ID)
	assert.Equal(t, server.URL+"/r/videos/comments/1/original", post.Permalink)
	assert.Equal(t, []MediaVariantCollection{
		{{Mime: MimeVideoMP4, Variant: VariantVideo, Href: "https://i.redd.it/clip.mp4"}},
	}, post.Media)
}

func TestResolveCrosspostBrokenParent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/r/mirror/comments/2/repost.json":
			_, _ = w.Write([]byte(listing(`{
				"name": "t3_child",
				"permalink": "/r/mirror/comments/2/repost",
				"title": "crosspost of a deleted post",
				"url_overridden_by_dest": "https://i.redd.it/cached.gif",
				"crosspost_parent_list": [{"permalink": "/r/gone/comments/1/deleted"}]
			}`)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	resolver := &Resolver{Client: server.Client(), PermalinkHost: server.URL}
	post, err := resolver.Resolve(context.Background(), "https://www.reddit.com/r/mirror/comments/2/repost")
	require.NoError(t, err)

	// A dead parent keeps the post we already have
	assert.Equal(t, "t3_child", post.ID)
	assert.Equal(t, []MediaVariantCollection{
		{{Mime: MimeImageGIF, Variant: VariantGIF, Href: "https://i.redd.it/cached.gif"}},
	}, post.Media)
}

func TestResolveUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	resolver := &Resolver{Client: server.Client(), PermalinkHost: server.URL}
	_, err := resolver.Resolve(context.Background(), "https://www.reddit.com/r/pics/comments/1/x")
	assert.ErrorIs(t, err, ErrUpstreamStatus)
}

func TestResolveRetriesOnceAfter401(t *testing.T) {
	grants := 0
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			grants++
			_, _ = w.Write([]byte(`{"access_token": "tok", "token_type": "bearer", "expires_in": 3600}`))
		case "/r/pics/comments/1/x.json":
			fetches++
			// The first answer pretends the cached token went stale
			if fetches == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(listing(`{
				"name": "t3_abc",
				"permalink": "/r/pics/comments/1/x",
				"title": "eventually"
			}`)))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	oauth := NewOauth(Credentials{ClientID: "id", ClientSecret: "secret"}, nil)
	oauth.Endpoint = server.URL + "/token"
	resolver := &Resolver{
		Client:        server.Client(),
		Oauth:         oauth,
		PermalinkHost: server.URL,
		OauthHost:     server.URL,
	}

	post, err := resolver.Resolve(context.Background(), "https://www.reddit.com/r/pics/comments/1/x")
	require.NoError(t, err)
	assert.Equal(t, "t3_abc", post.ID)
	assert.Equal(t, 2, fetches)
	assert.Equal(t, 2, grants)
}

func TestRepairImgurMedia(t *testing.T) {
	scrapes := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			_, _ = w.Write([]byte(`{"access_token": "tok", "token_type": "bearer", "expires_in": 3600}`))
		case r.URL.Path == "/r/pics/comments/1/gone.json":
			require.Equal(t, "bearer tok", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(listing(`{
				"name": "t3_abc",
				"permalink": "/r/pics/comments/1/gone",
				"title": "deleted imgur post",
				"url_overridden_by_dest": "https://i.imgur.com/dead.gif"
			}`)))
		case r.URL.Path == "/dead.gif" && r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/api/me.json" && r.Method == http.MethodHead:
			w.Header().Set("Set-Cookie", "session_tracker=abc123.0.1; Domain=reddit.com; Path=/")
		case r.URL.Path == "/r/pics/comments/1/gone":
			scrapes++
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body>
				<img src="https://www.redditstatic.com/icon.png"/>
				<img src="https://external-preview.redd.it/saved?format=png&amp;s=1"/>
			</body></html>`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	oauth := NewOauth(Credentials{ClientID: "id", ClientSecret: "secret"}, nil)
	oauth.Endpoint = server.URL + "/token"
	resolver := &Resolver{
		// Route the imgur HEAD probe at the test server too
		Client:        &http.Client{Transport: rewriteTransport{host: strings.TrimPrefix(server.URL, "http://")}},
		Oauth:         oauth,
		PermalinkHost: server.URL,
		OauthHost:     server.URL,
	}

	post, err := resolver.Resolve(context.Background(), "https://www.reddit.com/r/pics/comments/1/gone")
	require.NoError(t, err)
	require.Len(t, post.Media, 1)
	require.Len(t, post.Media[0], 1)

	// The dead imgur link was swapped for the preview reddit still hosts,
	// with the mime taken from the format query parameter
	assert.Equal(t, 1, scrapes)
	assert.Equal(t, Media{
		Mime:    MimeImagePNG,
		Variant: VariantImage,
		Href:    "https://external-preview.redd.it/saved?format=png&s=1",
	}, post.Media[0][0])
}

func TestRepairImgurMediaLeavesLiveLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/r/pics/comments/1/alive.json":
			_, _ = w.Write([]byte(listing(`{
				"name": "t3_abc",
				"permalink": "/r/pics/comments/1/alive",
				"title": "live imgur post",
				"url_overridden_by_dest": "https://i.imgur.com/alive.gif"
			}`)))
		case r.URL.Path == "/alive.gif" && r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	resolver := &Resolver{
		Client:        &http.Client{Transport: rewriteTransport{host: strings.TrimPrefix(server.URL, "http://")}},
		PermalinkHost: server.URL,
	}
	post, err := resolver.Resolve(context.Background(), "https://www.reddit.com/r/pics/comments/1/alive")
	require.NoError(t, err)
	assert.Equal(t, "https://i.imgur.com/alive.gif", post.Media[0][0].Href)
}

func TestFormatHint(t *testing.T) {
	tests := []struct {
		Href    string
		Mime    string
		Variant Variant
	}{
		{Href: "https://external-preview.redd.it/x?format=mp4&s=1", Mime: MimeVideoMP4, Variant: VariantPartialVideo},
		{Href: "https://external-preview.redd.it/x?format=png&s=1", Mime: MimeImagePNG, Variant: VariantImage},
		{Href: "https://external-preview.redd.it/x?format=jpg&s=1", Mime: MimeImageJPEG, Variant: VariantImage},
		{Href: "https://external-preview.redd.it/x", Mime: MimeImageGIF, Variant: VariantGIF},
	}
	for _, test := range tests {
		t.Run(test.Href, func(t *testing.T) {
			mime, variant := formatHint(test.Href)
			assert.Equal(t, test.Mime, mime)
			assert.Equal(t, test.Variant, variant)
		})
	}
}
