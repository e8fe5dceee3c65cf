package document

import (
	"bytes"
	"strings"
)

// DetectMimeType detects the actual MIME type from file content magic bytes.
// Sources such as object stores often report "application/octet-stream".
func DetectMimeType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: little-endian or big-endian header
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	return ""
}

// ResolveMediaType maps a declared type onto pdf or image. Declared types may
// be MIME types or the bare tags "pdf" and "image". Empty or generic declared
// types are corrected from the content. ok is false for anything else.
func ResolveMediaType(declared string, data []byte) (MediaType, string, bool) {
	mime := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	if mime == "" || mime == "application/octet-stream" {
		if detected := DetectMimeType(data); detected != "" {
			mime = detected
		}
	}

	switch {
	case mime == "pdf" || mime == "application/pdf" || mime == "application/x-pdf":
		return MediaPDF, "application/pdf", true
	case mime == "image":
		if detected := DetectMimeType(data); strings.HasPrefix(detected, "image/") {
			return MediaImage, detected, true
		}
		return MediaImage, "image/*", true
	case strings.HasPrefix(mime, "image/"):
		return MediaImage, mime, true
	}

	return "", mime, false
}
