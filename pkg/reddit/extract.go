package reddit

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/Lachee/reddit-download/pkg/common"
	"github.com/Lachee/reddit-download/pkg/mediautil"
	"github.com/Lachee/reddit-download/pkg/reddit/helpers"
	"github.com/go-faster/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// extractCollections turns the raw post json into the ordered list of
// media variant collections. The order is fixed: gallery entries, then the
// preview collection, then the direct link override. The secure media
// streams are merged into the first collection because they extend the
// same logical asset.
//
// Reddit's post json is wildly inconsistent, so every field access here is
// probed, never assumed. A failure in any one sub extraction only loses
// that piece, the rest still resolves.
func (r *Resolver) extractCollections(ctx context.Context, post gjson.Result) []MediaVariantCollection {
	collections := make([]MediaVariantCollection, 0, 4)
	collections = append(collections, galleryCollections(post)...)

	if preview := r.previewCollection(ctx, post); len(preview) > 0 {
		collections = append(collections, preview)
	}

	if secure := r.secureMediaCollection(ctx, post); len(secure) > 0 {
		// Prepend into the first collection rather than taking a new
		// slot, the streams belong to the asset the post already shows
		if len(collections) == 0 {
			collections = append(collections, MediaVariantCollection{})
		}
		collections[0] = append(secure, collections[0]...)
	}

	if override := directLinkCollection(post); len(override) > 0 {
		collections = append(collections, override)
	}
	return collections
}

// galleryCollections extracts one collection per media_metadata entry.
// When gallery_data.items is present its declared order wins, otherwise
// the entries keep their document order.
func galleryCollections(post gjson.Result) []MediaVariantCollection {
	metadata := post.Get("media_metadata")
	if !metadata.IsObject() {
		return nil
	}

	byID := make(map[string]MediaVariantCollection)
	order := make([]string, 0)
	metadata.ForEach(func(key, meta gjson.Result) bool {
		if !meta.IsObject() {
			return true
		}
		if status := meta.Get("status"); status.Exists() && status.String() != "valid" {
			return true
		}
		source := meta.Get("s")
		if !source.Exists() {
			return true
		}

		// Reddit uses the invalid image/jpg here, coerce it
		mime := mediautil.NormalizeMime(meta.Get("m").String())
		collection := make(MediaVariantCollection, 0, 1)

		// Best rendition first
		if media, ok := metadataMedia(source, mime, VariantImage); ok {
			collection = append(collection, media)
		}
		for _, preview := range meta.Get("p").Array() {
			if media, ok := metadataMedia(preview, MimeImageJPEG, VariantThumbnail); ok {
				collection = append(collection, media)
			}
		}
		for _, blur := range meta.Get("o").Array() {
			if media, ok := metadataMedia(blur, MimeImageJPEG, VariantBlur); ok {
				collection = append(collection, media)
			}
		}

		if len(collection) > 0 {
			byID[key.String()] = collection
			order = append(order, key.String())
		}
		return true
	})

	// gallery_data.items carries the order the author arranged the
	// gallery in
	if items := post.Get("gallery_data.items"); items.IsArray() {
		declared := make([]string, 0, len(byID))
		seen := make(map[string]bool)
		for _, item := range items.Array() {
			id := item.Get("media_id").String()
			if _, ok := byID[id]; ok && !seen[id] {
				declared = append(declared, id)
				seen[id] = true
			}
		}
		for _, id := range order {
			if !seen[id] {
				declared = append(declared, id)
			}
		}
		order = declared
	}

	collections := make([]MediaVariantCollection, 0, len(order))
	for _, id := range order {
		collections = append(collections, byID[id])
	}
	return collections
}

// metadataMedia builds one media from a media_metadata rendition object.
// The href is taken from u, gif or mp4 in that priority, with gif and mp4
// forcing their own mime and variant.
func metadataMedia(data gjson.Result, defaultMime string, defaultVariant Variant) (Media, bool) {
	media := Media{
		Mime:    defaultMime,
		Variant: defaultVariant,
	}
	if u := data.Get("u"); u.Exists() {
		media.Href = u.String()
	} else if gif := data.Get("gif"); gif.Exists() {
		media.Href = gif.String()
		media.Variant = VariantGIF
		media.Mime = MimeImageGIF
	} else if mp4 := data.Get("mp4"); mp4.Exists() {
		media.Href = mp4.String()
		media.Variant = VariantVideo
		media.Mime = MimeVideoMP4
	}
	if media.Href == "" {
		return Media{}, false
	}
	if x := data.Get("x"); x.Exists() {
		media.Dimension = &Dimension{Width: x.Int()}
		if y := data.Get("y"); y.Exists() {
			media.Dimension.Height = y.Int()
		}
	}
	return media, true
}

// previewCollection resolves post.preview, which describes a single asset
// in several renditions. A reddit_video_preview comes first since it is
// the richest form, then the preview image and its variants.
func (r *Resolver) previewCollection(ctx context.Context, post gjson.Result) MediaVariantCollection {
	preview := post.Get("preview")
	if !preview.IsObject() {
		return nil
	}

	collection := make(MediaVariantCollection, 0)
	if video := preview.Get("reddit_video_preview"); video.IsObject() {
		collection = append(collection, r.videoObjectCollection(ctx, video, dashBase(video.Get("dash_url").String()))...)
	}

	if image := preview.Get("images.0"); image.IsObject() {
		collection = append(collection, previewImageSet(image, MimeImageJPEG, VariantThumbnail)...)
		variants := image.Get("variants")
		collection = append(collection, previewImageSet(variants.Get("gif"), MimeImageGIF, VariantGIF)...)
		collection = append(collection, previewImageSet(variants.Get("nsfw"), MimeImageJPEG, VariantBlur)...)
		collection = append(collection, previewImageSet(variants.Get("obfuscated"), MimeImageJPEG, VariantBlur)...)
		if r.AllowMP4Variants {
			collection = append(collection, previewImageSet(variants.Get("mp4"), MimeVideoMP4, VariantVideo)...)
		}
	}
	return collection
}

// previewImageSet builds media for one {source, resolutions} object
func previewImageSet(images gjson.Result, mime string, variant Variant) MediaVariantCollection {
	if !images.IsObject() {
		return nil
	}
	collection := make(MediaVariantCollection, 0)
	if media, ok := sizedMedia(images.Get("source"), mime, variant); ok {
		collection = append(collection, media)
	}
	for _, resolution := range images.Get("resolutions").Array() {
		if media, ok := sizedMedia(resolution, mime, variant); ok {
			collection = append(collection, media)
		}
	}
	return collection
}

// sizedMedia parses a {url, width, height} rendition object
func sizedMedia(data gjson.Result, mime string, variant Variant) (Media, bool) {
	href := data.Get("url")
	if !href.Exists() {
		return Media{}, false
	}
	media := Media{
		Mime:    mime,
		Variant: variant,
		Href:    href.String(),
	}
	if width := data.Get("width"); width.Exists() {
		media.Dimension = &Dimension{Width: width.Int()}
		if height := data.Get("height"); height.Exists() {
			media.Dimension.Height = height.Int()
		}
	}
	return media, true
}

// secureMediaCollection resolves post.secure_media.reddit_video into its
// partial streams plus the independently playable fallback
func (r *Resolver) secureMediaCollection(ctx context.Context, post gjson.Result) MediaVariantCollection {
	video := post.Get("secure_media.reddit_video")
	if !video.IsObject() {
		return nil
	}
	// The manifest's relative references resolve against the post's own
	// url, which is the v.redd.it asset root
	base := strings.TrimSuffix(post.Get("url").String(), "/")
	if base == "" {
		base = dashBase(video.Get("dash_url").String())
	}
	return r.videoObjectCollection(ctx, video, base)
}

// videoObjectCollection turns a reddit_video style object into partial
// video and audio streams via its DASH manifest, appending the advertised
// fallback url as a directly playable video
func (r *Resolver) videoObjectCollection(ctx context.Context, video gjson.Result, base string) MediaVariantCollection {
	collection := make(MediaVariantCollection, 0)
	if dashURL := video.Get("dash_url"); dashURL.Exists() {
		streams, err := r.fetchDashStreams(ctx, dashURL.String(), base)
		if err != nil {
			// A broken manifest just means no streams for this asset
			zap.S().Warnw("cannot resolve DASH manifest", "url", dashURL.String(), "error", err)
		} else {
			collection = append(collection, dashMediaCollection(streams)...)
		}
	}

	if fallback := video.Get("fallback_url"); fallback.Exists() {
		media := Media{
			Mime:    MimeVideoMP4,
			Variant: VariantVideo,
			Href:    fallback.String(),
		}
		if width := video.Get("width"); width.Exists() {
			media.Dimension = &Dimension{Width: width.Int(), Height: video.Get("height").Int()}
		}
		collection = append(collection, media)
	}
	return collection
}

// fetchDashStreams downloads and parses a DASH manifest
func (r *Resolver) fetchDashStreams(ctx context.Context, dashURL, base string) (helpers.Streams, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dashURL, nil)
	if err != nil {
		return helpers.Streams{}, errors.Wrap(err, "cannot create manifest request")
	}
	req.Header.Set("User-Agent", common.DesktopUserAgent)
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return helpers.Streams{}, errors.Wrap(err, "cannot fetch manifest")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return helpers.Streams{}, errors.Wrapf(ErrUpstreamStatus, "manifest returned %s", resp.Status)
	}
	return helpers.ParseDashManifest(resp.Body, base)
}

// dashMediaCollection flattens parsed streams into media, videos ordered
// by ascending height
func dashMediaCollection(streams helpers.Streams) MediaVariantCollection {
	videos := make([]helpers.VideoStream, 0, len(streams.Video))
	for _, stream := range streams.Video {
		videos = append(videos, stream)
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].Height < videos[j].Height })

	collection := make(MediaVariantCollection, 0, len(videos)+1)
	for _, stream := range videos {
		media := Media{
			Mime:    MimeVideoMP4,
			Variant: VariantPartialVideo,
			Href:    stream.URL,
		}
		if stream.Width > 0 || stream.Height > 0 {
			media.Dimension = &Dimension{Width: stream.Width, Height: stream.Height}
		}
		collection = append(collection, media)
	}
	if streams.Audio != nil {
		collection = append(collection, Media{
			Mime:    MimeAudioMP4,
			Variant: VariantPartialAudio,
			Href:    streams.Audio.URL,
		})
	}
	return collection
}

// directLinkCollection handles link posts whose target looks like a media
// file itself
func directLinkCollection(post gjson.Result) MediaVariantCollection {
	overridden := post.Get("url_overridden_by_dest")
	if !overridden.Exists() {
		return nil
	}
	href := overridden.String()
	path, _, _ := strings.Cut(href, "?")
	// Only paths whose final segment carries an extension, bare page
	// links are not media
	if !strings.Contains(path[strings.LastIndex(path, "/")+1:], ".") {
		return nil
	}

	ext := mediautil.Extname(path)
	media := Media{
		Href: href,
	}
	switch ext {
	case "gif":
		media.Variant = VariantGIF
		media.Mime = MimeImageGIF
	case "mp4":
		media.Variant = VariantVideo
		media.Mime = MimeVideoMP4
	default:
		media.Variant = VariantImage
		media.Mime = mediautil.NormalizeMime("image/" + ext)
	}
	return MediaVariantCollection{media}
}

// dashBase derives the asset root from a manifest url by dropping the
// file segment
func dashBase(dashURL string) string {
	if i := strings.LastIndex(dashURL, "/"); i > len("https://") {
		return dashURL[:i]
	}
	return dashURL
}
