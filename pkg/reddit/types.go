package reddit

import (
	"github.com/go-faster/errors"
)

// The closed set of content types the resolver emits.
const (
	MimeImagePNG  = "image/png"
	MimeImageJPEG = "image/jpeg"
	MimeImageGIF  = "image/gif"
	MimeVideoMP4  = "video/mp4"
	MimeAudioMP4  = "audio/mp4"
)

// ErrInvalidURL is returned when a link fails the domain allow list or
// cannot be parsed at all
var ErrInvalidURL = errors.New("invalid or disallowed url")

// ErrAuthentication is returned when reddit rejects the oauth credentials
var ErrAuthentication = errors.New("reddit authentication failed")

// ErrUpstreamStatus is returned when reddit or a CDN answers with an
// unexpected status code
var ErrUpstreamStatus = errors.New("unexpected upstream status")

// Variant describes what role a single rendition plays within its
// collection
type Variant byte

const (
	// VariantImage is a presentable actual image
	VariantImage Variant = iota
	// VariantThumbnail is a static preview representation of an image
	VariantThumbnail
	// VariantBlur is a blurred preview image
	VariantBlur
	// VariantGIF is an animated image
	VariantGIF
	// VariantVideo is a presentable video which needs no muxing
	VariantVideo
	// VariantPartialVideo is a video-only stream that must be combined
	// with a VariantPartialAudio before presentation
	VariantPartialVideo
	// VariantPartialAudio is an audio-only stream that must be combined
	// with a VariantPartialVideo before presentation
	VariantPartialAudio
)

// String returns the wire name of the variant
func (v Variant) String() string {
	switch v {
	case VariantImage:
		return "image"
	case VariantThumbnail:
		return "thumbnail"
	case VariantBlur:
		return "blur"
	case VariantGIF:
		return "gif"
	case VariantVideo:
		return "video"
	case VariantPartialVideo:
		return "video_only"
	case VariantPartialAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the variant as its wire name
func (v Variant) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// NeedsMux reports whether this rendition cannot be presented on its own
// and must be combined with its counterpart stream first
func (v Variant) NeedsMux() bool {
	switch v {
	case VariantPartialVideo, VariantPartialAudio:
		return true
	case VariantImage, VariantThumbnail, VariantBlur, VariantGIF, VariantVideo:
		return false
	default:
		return false
	}
}

// Dimension of a media. Height can be zero even when the width is known,
// reddit omits it sometimes.
type Dimension struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height,omitempty"`
}

// Media is a single fetchable rendition of an asset
type Media struct {
	Mime      string     `json:"mime"`
	Variant   Variant    `json:"variant"`
	Href      string     `json:"href"`
	Dimension *Dimension `json:"dimension,omitempty"`
}

// MediaVariantCollection groups every rendition of one logical asset.
// A post with more than one collection is a gallery.
type MediaVariantCollection []Media

// Audio returns the partial audio stream of this collection, if any
func (c MediaVariantCollection) Audio() (Media, bool) {
	for _, m := range c {
		if m.Variant == VariantPartialAudio {
			return m, true
		}
	}
	return Media{}, false
}

// Best returns the first rendition matching any of the given variants.
// Collections are ordered best first within a variant.
func (c MediaVariantCollection) Best(variants ...Variant) (Media, bool) {
	for _, variant := range variants {
		for _, m := range c {
			if m.Variant == variant {
				return m, true
			}
		}
	}
	return Media{}, false
}

// Post is the normalized resolution result
type Post struct {
	// ID is the fullname identifier of the post, like t3_abcdef
	ID string `json:"id"`
	// Name is the subreddit the post was made in
	Name string `json:"name"`
	// Permalink is the canonical url of the post itself
	Permalink string `json:"permalink"`
	// URL is the target of the post. It might equal Permalink or point
	// at external content
	URL     string `json:"url"`
	Title   string `json:"title"`
	NSFW    bool   `json:"nsfw"`
	IsVideo bool   `json:"isVideo"`
	// Media is never nil. It is empty when the post has no resolvable
	// assets.
	Media []MediaVariantCollection `json:"media"`
	// Thumbnail is a single low resolution preview, independent of Media
	Thumbnail *Media `json:"thumbnail,omitempty"`
}
