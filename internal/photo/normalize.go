// Package photo converts inline-encoded images inside a mutation payload
// into durably-hosted references.
package photo

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Uploader is the upload capability used to host inline images.
// *petsapi.Client implements it.
type Uploader interface {
	UploadImage(filename string, data []byte) (string, error)
}

// IsInline reports whether ref is an inline data-URI image rather than a
// durable reference.
func IsInline(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}

// Normalize replaces every inline entry in photos with the durable reference
// returned by the uploader, preserving order and length. Durable entries pass
// through unchanged. The first upload or decode failure aborts normalization;
// no partial result is returned.
func Normalize(up Uploader, photos []string) ([]string, error) {
	out := make([]string, len(photos))
	for i, ref := range photos {
		if !IsInline(ref) {
			out[i] = ref
			continue
		}

		data, mediaType, err := decodeDataURI(ref)
		if err != nil {
			return nil, fmt.Errorf("photo %d: %w", i, err)
		}

		filename := fmt.Sprintf("photo-%s%s", uuid.NewString(), extensionFor(mediaType))
		durable, err := up.UploadImage(filename, data)
		if err != nil {
			return nil, fmt.Errorf("photo %d: %w", i, err)
		}
		out[i] = durable
	}
	return out, nil
}

// decodeDataURI decodes a base64 data URI into raw bytes and its declared
// media type.
func decodeDataURI(ref string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URI")
	}

	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("unsupported data URI encoding %q", meta)
	}
	mediaType := strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image data: %w", err)
	}

	return data, mediaType, nil
}

// extensionFor maps a media type to a file extension for the uploaded name.
func extensionFor(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
