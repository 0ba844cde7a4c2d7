package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/Lachee/reddit-download/pkg/av"
	"github.com/Lachee/reddit-download/pkg/mediautil"
	"github.com/Lachee/reddit-download/pkg/reddit"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// hrefParam reads the target link from either href or url
func hrefParam(r *http.Request) string {
	query := r.URL.Query()
	if href := query.Get("href"); href != "" {
		return href
	}
	return query.Get("url")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadHref(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":  "bad href",
		"reason": "corrupted, missing, or otherwise invalid",
	})
}

// handleFollow resolves share links for callers which cannot make the
// cross origin request themselves
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	href := reddit.ValidateURL(hrefParam(r), reddit.Domains)
	if href == nil {
		writeBadHref(w)
		return
	}
	follower := s.Resolver.Follower
	if follower == nil {
		follower = reddit.DirectFollower{}
	}
	followed, err := follower.Follow(r.Context(), href)
	if err != nil {
		zap.S().Warnw("cannot follow share link", "href", href.String(), "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to follow the url"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"href": followed.String()})
}

// handleMedia resolves a post and returns it as json. With embed=1 the
// best presentable rendition is streamed through the proxy instead, so
// chat clients can unfurl the link directly.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	href := hrefParam(r)
	if reddit.ValidateURL(href, reddit.Domains) == nil {
		writeBadHref(w)
		return
	}

	post, err := s.Resolver.Resolve(r.Context(), href)
	if err != nil {
		if errors.Is(err, reddit.ErrInvalidURL) {
			writeBadHref(w)
			return
		}
		// The page renders a "no preview available" state from an
		// absent post, a 500 would break it
		zap.S().Warnw("resolution failed", "href", href, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"post": nil})
		return
	}

	if r.URL.Query().Get("embed") == "1" {
		s.streamEmbed(w, r, post)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": post})
}

// streamEmbed proxies the first rendition that can be presented without
// muxing
func (s *Server) streamEmbed(w http.ResponseWriter, r *http.Request, post *reddit.Post) {
	for _, collection := range post.Media {
		if media, ok := collection.Best(reddit.VariantVideo, reddit.VariantGIF, reddit.VariantImage, reddit.VariantThumbnail); ok {
			s.serveProxied(w, r, media.Href, "")
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "post has no presentable media"})
}

// handleDownload serves a single saveable file built from reddit's split
// streams. An audio href muxes the two streams back together, format=gif
// transcodes the clip. Plain requests just pass the video through.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	videoHref := query.Get("video")
	if videoHref == "" {
		videoHref = hrefParam(r)
	}
	if videoHref == "" {
		writeBadHref(w)
		return
	}
	audioHref := query.Get("audio")
	wantGIF := query.Get("format") == "gif"

	if (audioHref != "" || wantGIF) && !av.Available() {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "transcoding is not available"})
		return
	}

	payload, err := s.fetchBytes(r.Context(), videoHref)
	if err != nil {
		s.writeFetchError(w, videoHref, err)
		return
	}

	if audioHref != "" {
		audio, err := s.fetchBytes(r.Context(), audioHref)
		if err != nil {
			s.writeFetchError(w, audioHref, err)
			return
		}
		payload, err = av.Mux(payload, audio)
		if err != nil {
			zap.S().Errorw("cannot mux streams", "video", videoHref, "audio", audioHref, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "muxing failed"})
			return
		}
	}

	contentType := reddit.MimeVideoMP4
	if wantGIF {
		payload, err = av.ConvertToGIF(payload)
		if err != nil {
			zap.S().Errorw("cannot build gif", "video", videoHref, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "gif conversion failed"})
			return
		}
		contentType = reddit.MimeImageGIF
	}

	fileName := query.Get("fileName")
	if fileName == "" {
		fileName = "reddit-download." + mediautil.ExtMime(contentType)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment;filename="`+fileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	_, _ = w.Write(payload)
}

// fetchBytes buffers one media url through the proxy
func (s *Server) fetchBytes(ctx context.Context, href string) ([]byte, error) {
	result, err := s.Proxy.Fetch(ctx, href, "", false)
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()
	if result.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(reddit.ErrUpstreamStatus, "upstream returned %d", result.StatusCode)
	}
	return io.ReadAll(result.Body)
}

func (s *Server) writeFetchError(w http.ResponseWriter, href string, err error) {
	if errors.Is(err, reddit.ErrInvalidURL) {
		writeBadHref(w)
		return
	}
	zap.S().Warnw("download fetch failed", "href", href, "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream fetch failed"})
}

// handleProxy streams a single media url back with correct headers
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	href := hrefParam(r)
	if href == "" {
		writeBadHref(w)
		return
	}
	s.serveProxied(w, r, href, r.URL.Query().Get("fileName"))
}

func (s *Server) serveProxied(w http.ResponseWriter, r *http.Request, href, fileName string) {
	download := r.URL.Query().Get("dl") == "1"
	result, err := s.Proxy.Fetch(r.Context(), href, fileName, download)
	if err != nil {
		if errors.Is(err, reddit.ErrInvalidURL) {
			writeBadHref(w)
			return
		}
		zap.S().Warnw("proxy fetch failed", "href", href, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream fetch failed"})
		return
	}
	defer result.Body.Close()

	if result.ContentType != "" {
		w.Header().Set("Content-Type", result.ContentType)
	}
	if result.Disposition != "" {
		w.Header().Set("Content-Disposition", result.Disposition)
	}
	if result.CacheControl != "" {
		w.Header().Set("Cache-Control", result.CacheControl)
	}
	w.WriteHeader(result.StatusCode)
	_, _ = io.Copy(w, result.Body)
}
