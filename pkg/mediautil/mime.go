package mediautil

import "strings"

// MIME maps file extensions to their content type. The proxy prefers this
// table over the upstream content-type header because reddit's CDN lies
// about the type of some assets.
var MIME = map[string]string{
	"bmp":  "image/bmp",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"svg":  "image/svg+xml",
	"gif":  "image/gif",
	"mp4":  "video/mp4",
	"mpeg": "video/mpeg",
	"webp": "image/webp",
	"webm": "video/webm",
	"weba": "audio/weba",
	"mp3":  "audio/mp3",
}

// Extname returns the extension of a file path without the leading dot.
// An empty string is returned when the path has no extension.
func Extname(filePath string) string {
	i := strings.LastIndex(filePath, ".")
	if i < 0 {
		return ""
	}
	return filePath[i+1:]
}

// NormalizeMime fixes the invalid "image/jpg" type reddit uses in some
// responses
func NormalizeMime(mime string) string {
	mime = strings.ToLower(mime)
	if mime == "image/jpg" {
		return "image/jpeg"
	}
	return mime
}

// ExtMime returns the extension for a given content type. Unknown types
// fall back to the subtype of the mime itself, or "dat" if there is none.
func ExtMime(mime string) string {
	mime = NormalizeMime(mime)
	for ext, m := range MIME {
		if m == mime {
			// Prefer the canonical jpeg extension over jpg
			if mime == "image/jpeg" {
				return "jpeg"
			}
			return ext
		}
	}
	if slash := strings.Index(mime, "/"); slash >= 0 {
		return mime[slash+1:]
	}
	return "dat"
}
