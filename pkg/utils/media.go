package utils

import (
	"net/http"
	"strings"
)

// DetectImageMIME sniffs the MIME type of image bytes.
func DetectImageMIME(data []byte) string {
	return http.DetectContentType(data)
}

// IsImageMIME checks whether a content type describes an image.
func IsImageMIME(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// ImageExtension returns the file extension for an image MIME type,
// defaulting to .jpg for anything unrecognized.
func ImageExtension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
