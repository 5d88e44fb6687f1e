package utils

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/adrium/goheif"
)

// IsHeifLike checks if the MIME type indicates a HEIC or HEIF image format.
func IsHeifLike(mimeType string) bool {
	t := strings.ToLower(mimeType)
	return strings.Contains(t, "heic") || strings.Contains(t, "heif")
}

// DecodeHeif decodes HEIC/HEIF bytes into a pixel buffer with EXIF
// orientation already applied. Phone cameras routinely upload this format.
func DecodeHeif(input []byte) (image.Image, error) {
	img, err := goheif.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("failed to decode HEIC: %w", err)
	}

	return Orient(img, input), nil
}
