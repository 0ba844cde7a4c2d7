// Package proxy streams resolved media back to the client through an
// opportunistic byte cache
package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Lachee/reddit-download/internal/cache"
	"github.com/Lachee/reddit-download/pkg/common"
	"github.com/Lachee/reddit-download/pkg/mediautil"
	"github.com/Lachee/reddit-download/pkg/reddit"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// cacheKeyPrefix namespaces the byte payloads inside the shared store
const cacheKeyPrefix = "proxy:"

// AllowedRoots are the domains the proxy will fetch from, reddit's own
// plus the third parties posts commonly embed
var AllowedRoots = append([]string{"imgur.com", "redgifs.com"}, reddit.Domains...)

// Proxy fetches media urls, figures out their real content type and
// optionally caches the payload
type Proxy struct {
	// Cache holds base64 data uris keyed by the target href. Nil
	// disables caching entirely.
	Cache cache.Interface
	// Client defaults to common.GlobalHttpClient when nil
	Client *http.Client
	// TTL drives both the store expiry and the cache-control header
	TTL time.Duration
	// MaxCacheSize bounds the payloads we persist. Zero disables
	// persistence while the HTTP level cache-control stays active.
	MaxCacheSize int64
}

// Result is a streamable proxy response
type Result struct {
	Body        io.ReadCloser
	StatusCode  int
	ContentType string
	// Disposition is empty on upstream error pass-throughs
	Disposition  string
	CacheControl string
}

// Fetch retrieves href and returns its bytes with correct headers. The
// upstream status code is passed through on non-200 answers so callers
// can tell "gone" from "blocked".
func (p *Proxy) Fetch(ctx context.Context, href, fileName string, download bool) (*Result, error) {
	target := reddit.ValidateURL(href, AllowedRoots)
	if target == nil {
		return nil, errors.Wrapf(reddit.ErrInvalidURL, "href %q", href)
	}

	// Prepare the file name the client saves the asset as
	if fileName == "" {
		fileName = strings.ReplaceAll(target.Path, "/", "")
	}
	fileName = strings.ReplaceAll(fileName, `"`, "")
	fileExt := mediautil.Extname(fileName)

	if result := p.cached(target.String(), fileExt, fileName, download); result != nil {
		return result, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create proxy request")
	}
	// Reddit's CDN wants a browser-looking origin, anything else is
	// throttled or refused
	req.Header.Set("User-Agent", common.DesktopUserAgent)
	req.Header.Set("Origin", "reddit.com")

	client := p.Client
	if client == nil {
		client = &common.GlobalHttpClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "cannot fetch upstream")
	}
	if resp.StatusCode != http.StatusOK {
		// Pass the real status through
		return &Result{
			Body:       resp.Body,
			StatusCode: resp.StatusCode,
		}, nil
	}

	contentType := p.contentType(fileExt, resp.Header.Get("Content-Type"))
	result := &Result{
		Body:         resp.Body,
		StatusCode:   http.StatusOK,
		ContentType:  contentType,
		Disposition:  disposition(download, fileName),
		CacheControl: p.cacheControl(),
	}

	// Persist small payloads so the next hit skips the CDN. Anything
	// above the bound streams through uncached.
	if p.Cache != nil && p.MaxCacheSize > 0 && resp.ContentLength >= 0 && resp.ContentLength <= p.MaxCacheSize {
		payload, err := io.ReadAll(io.LimitReader(resp.Body, p.MaxCacheSize+1))
		_ = resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "cannot read upstream body")
		}
		if int64(len(payload)) <= p.MaxCacheSize {
			entry := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(payload)
			if err := p.Cache.Put(cacheKey(target.String()), entry, p.TTL); err != nil {
				zap.S().Warnw("cannot cache proxied media", "href", target.String(), "error", err)
			}
		}
		result.Body = io.NopCloser(bytes.NewReader(payload))
	}
	return result, nil
}

// cached serves a hit from the store, if any. Entries are data uris of
// the form data:{mime};base64,{payload}.
func (p *Proxy) cached(href, fileExt, fileName string, download bool) *Result {
	if p.Cache == nil {
		return nil
	}
	entry, err := p.Cache.Get(cacheKey(href))
	if err != nil {
		return nil
	}
	rest, ok := strings.CutPrefix(entry, "data:")
	if !ok {
		return nil
	}
	mime, encoded, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return nil
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// A corrupt entry is dropped, the next request refills it
		_ = p.Cache.Delete(cacheKey(href))
		return nil
	}
	return &Result{
		Body:         io.NopCloser(bytes.NewReader(payload)),
		StatusCode:   http.StatusOK,
		ContentType:  p.contentType(fileExt, mime),
		Disposition:  disposition(download, fileName),
		CacheControl: p.cacheControl(),
	}
}

// contentType prefers the extension lookup because reddit's reported
// content-type is unreliable
func (p *Proxy) contentType(fileExt, upstream string) string {
	if mime, ok := mediautil.MIME[strings.ToLower(fileExt)]; ok {
		return mime
	}
	if upstream != "" {
		return mediautil.NormalizeMime(upstream)
	}
	return "image/gif"
}

func (p *Proxy) cacheControl() string {
	ttl := int64(p.TTL / time.Second)
	if ttl <= 0 {
		ttl = 3600
	}
	return fmt.Sprintf("public, max-age=%d", ttl)
}

func disposition(download bool, fileName string) string {
	kind := "inline"
	if download {
		kind = "attachment"
	}
	return fmt.Sprintf("%s;filename=%q", kind, fileName)
}

func cacheKey(href string) string {
	return cache.NormalizeKey(cacheKeyPrefix + href)
}
