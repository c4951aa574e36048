package constants

import (
	"sort"
	"strings"
)

// DefaultMaxFileSize is the upload cap applied when none is configured (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// AllowedFormats maps the default allowed extensions (lowercased, sans '.') to their MIME type.
// Video containers are accepted because the provider extracts the audio track.
var AllowedFormats = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"wma":  "audio/x-ms-wma",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"wmv":  "video/x-ms-wmv",
	"webm": "video/webm",
}

// mimeAliases are content types browsers commonly send for the formats above.
var mimeAliases = map[string]string{
	"audio/mp3":   "mp3",
	"audio/x-mp3": "mp3",
	"audio/wave":  "wav",
	"audio/x-wav": "wav",
	"audio/x-m4a": "m4a",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// NormalizeContentType lowercases a content type and drops any parameters.
func NormalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsGenericContentType reports whether ct carries no format information.
func IsGenericContentType(ct string) bool {
	ct = NormalizeContentType(ct)
	return ct == "" || ct == "application/octet-stream"
}

// ExtForContentType resolves a content type to an extension of the given allow-list.
func ExtForContentType(allowed map[string]string, ct string) (string, bool) {
	ct = NormalizeContentType(ct)
	if ext, ok := mimeAliases[ct]; ok {
		if _, allowedExt := allowed[ext]; allowedExt {
			return ext, true
		}
	}
	for ext, mime := range allowed {
		if mime == ct {
			return ext, true
		}
	}
	return "", false
}

// SortedExts returns the allow-list extensions in a stable order for messages.
func SortedExts(allowed map[string]string) []string {
	out := make([]string, 0, len(allowed))
	for ext := range allowed {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
