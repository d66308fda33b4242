package archive

import (
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// preferredExtensions overrides the alphabetical first pick of the mime
// package for common types.
var preferredExtensions = map[string]string{
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/gif":        "gif",
	"image/webp":       "webp",
	"image/svg+xml":    "svg",
	"image/avif":       "avif",
	"application/json": "json",
	"application/pdf":  "pdf",
	"text/plain":       "txt",
	"text/html":        "html",
	"video/mp4":        "mp4",
}

const fallbackExtension = "bin"

// Filename returns the name of the item at the 1-based position. When ext is
// ExtensionAuto the extension comes from the content type, then from the
// path of link, then falls back to "bin".
func Filename(position int, ext, contentType, link string) string {
	if ext == ExtensionAuto {
		ext = detectExtension(contentType, link)
	}
	return strconv.Itoa(position) + "." + ext
}

func detectExtension(contentType, link string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := preferredExtensions[mediaType]; ok {
			return ext
		}
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			if ext := sanitizeExtension(exts[0]); ext != "" {
				return ext
			}
		}
	}

	if u, err := url.Parse(link); err == nil {
		if ext := sanitizeExtension(path.Ext(u.Path)); ext != "" {
			return ext
		}
	}

	return fallbackExtension
}

// sanitizeExtension strips the leading dot and lowercases ext. Anything
// that is not a short alphanumeric token is rejected.
func sanitizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
