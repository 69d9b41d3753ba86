package uploads

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"
	"strings"

	"github.com/gen2brain/heic"
)

const jpegQuality = 90

// NormalizeImage converts HEIC/HEIF captures to JPEG so any receipt viewer can
// open them. Other formats pass through untouched. It returns the image data and
// its content type.
func NormalizeImage(data []byte, contentType string) ([]byte, string, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	if !isHEICFormat(data) && !isHEICMimeType(contentType) {
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		return data, contentType, nil
	}

	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// isHEICFormat looks for an ftyp box with a HEIF family brand.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
