// Package helpers contains the DASH playlist parsing for reddit hosted
// videos. Reddit encodes the audio and video of a post as separate
// elementary streams described by an MPD manifest.
package helpers

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/go-faster/errors"
)

// ErrMalformedManifest is returned when the MPD is missing the nodes we
// need. Callers treat it as "no video available" for that one asset.
var ErrMalformedManifest = errors.New("malformed DASH manifest")

// VideoStream is a single video rendition advertised by the manifest
type VideoStream struct {
	// Format is the height of the stream as written in the manifest,
	// or the adaptation set's maxHeight for the synthesized rendition
	Format string
	// MaxFormat marks the entry synthesized from the adaptation set's
	// own attributes rather than an explicit Representation
	MaxFormat bool
	URL       string
	// Width and Height are zero when the manifest omits them
	Width  int64
	Height int64
}

// AudioStream is the single audio rendition we pick from the manifest
type AudioStream struct {
	URL string
}

// Streams is the parse result. Video holds exactly one stream per format
// key. Audio is nil for videos without sound.
type Streams struct {
	Video map[string]VideoStream
	Audio *AudioStream
}

type dashMPD struct {
	XMLName xml.Name `xml:"MPD"`
	Period  struct {
		AdaptationSets []dashAdaptationSet `xml:"AdaptationSet"`
	} `xml:"Period"`
}

type dashAdaptationSet struct {
	ContentType     string               `xml:"contentType,attr"`
	MaxHeight       string               `xml:"maxHeight,attr"`
	MaxWidth        string               `xml:"maxWidth,attr"`
	Representations []dashRepresentation `xml:"Representation"`
}

type dashRepresentation struct {
	Height  string `xml:"height,attr"`
	Width   string `xml:"width,attr"`
	BaseURL string `xml:"BaseURL"`
}

// ParseDashManifest parses an MPD manifest into its video renditions,
// keyed by format, and an optional audio rendition. Relative BaseURL
// references are resolved against baseURL. A missing field only drops the
// one stream it belongs to, never the whole parse.
func ParseDashManifest(r io.Reader, baseURL string) (Streams, error) {
	var manifest dashMPD
	if err := xml.NewDecoder(r).Decode(&manifest); err != nil {
		return Streams{}, errors.Wrap(ErrMalformedManifest, err.Error())
	}

	sets := manifest.Period.AdaptationSets
	if len(sets) == 0 {
		return Streams{}, errors.Wrap(ErrMalformedManifest, "no adaptation sets")
	}

	// The first adaptation set is always the video. A second one, when
	// present, is the audio.
	videoSet := sets[0]
	streams := Streams{Video: make(map[string]VideoStream)}

	for _, representation := range videoSet.Representations {
		if stream, ok := videoStream(representation.Height, representation.Width, representation.BaseURL, videoSet, baseURL); ok {
			streams.Video[stream.Format] = stream
		}
	}

	// Reddit also advertises a "max" rendition at the adaptation set
	// level. It deliberately overwrites any explicit representation that
	// shares its format key.
	if maxStream, ok := videoStream("", "", "", videoSet, baseURL); ok {
		streams.Video[maxStream.Format] = maxStream
	}

	if len(sets) >= 2 {
		streams.Audio = audioStream(sets[1], baseURL)
	}
	return streams, nil
}

// videoStream builds a single rendition. The format is the explicit height
// when given, else the adaptation set's maxHeight. Streams without either
// are skipped.
func videoStream(height, width, base string, set dashAdaptationSet, baseURL string) (VideoStream, bool) {
	format := height
	if format == "" {
		format = set.MaxHeight
	}
	if format == "" {
		return VideoStream{}, false
	}

	stream := VideoStream{
		Format: format,
		URL:    baseURL + "/" + base,
	}
	if base == "" {
		// No explicit BaseURL, synthesize the file name from the best
		// height the set advertises
		stream.URL = baseURL + "/DASH_" + set.MaxHeight + ".mp4"
		stream.MaxFormat = true
	}

	if width == "" {
		width = set.MaxWidth
	}
	stream.Width, _ = strconv.ParseInt(width, 10, 64)
	stream.Height, _ = strconv.ParseInt(format, 10, 64)
	return stream, true
}

// audioStream picks the audio rendition from the audio adaptation set.
// Reddit orders representations ascending by quality, so the last one
// wins. Missing pieces mean no audio, not an error.
func audioStream(set dashAdaptationSet, baseURL string) *AudioStream {
	if len(set.Representations) == 0 {
		return nil
	}
	representation := set.Representations[len(set.Representations)-1]
	if representation.BaseURL == "" {
		return nil
	}
	return &AudioStream{URL: baseURL + "/" + representation.BaseURL}
}
