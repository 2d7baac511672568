package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SourceImageKey is where a request's uploaded image lives.
func SourceImageKey(requestID, mime string) string {
	return fmt.Sprintf("uploads/%s/source%s", requestID, extensionOr(mime, ".bin"))
}

// VideoKey is where the final video of a request lives.
func VideoKey(requestID, mime string) string {
	return fmt.Sprintf("generated/videos/%s/video%s", requestID, extensionOr(mime, ".bin"))
}

// EnsureExtension appends the MIME's extension to key when it has none.
func EnsureExtension(key, mime string) string {
	if key == "" {
		return key
	}
	expected := ExtensionForMIME(mime)
	if expected == "" {
		return key
	}
	if filepath.Ext(key) == "" {
		return key + expected
	}
	return key
}

// ExtensionForMIME returns the file extension for the media types this service stores.
func ExtensionForMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "video/x-msvideo", "video/avi":
		return ".avi"
	default:
		return ""
	}
}

func extensionOr(mime, fallback string) string {
	if ext := ExtensionForMIME(mime); ext != "" {
		return ext
	}
	return fallback
}
