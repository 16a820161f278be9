package media

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"photoframe/internal/logging"
	"photoframe/internal/mediatypes"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
)

const (
	// HEIC sources above this size get a lower JPEG quality to keep the
	// converted original from ballooning.
	heicLargeFileThreshold = 10 * 1024 * 1024

	heicQualityLarge  = 80
	heicQualityNormal = 95

	bmpConvertQuality = 95
)

// PreprocessResult is the outcome of normalizing an uploaded image buffer
// into a browser-friendly format.
type PreprocessResult struct {
	// Data is the buffer pipeline stages should operate on. For HEIC and
	// BMP sources this is the converted JPEG, otherwise the original bytes.
	Data []byte

	// JPEGKey is the storage key for the converted JPEG when a conversion
	// happened, empty otherwise.
	JPEGKey string

	// Converted reports whether Data differs from the source buffer.
	Converted bool
}

// IsBitmap reports whether the buffer starts with the BMP file signature.
func IsBitmap(data []byte) bool {
	return len(data) >= 2 && data[0] == 'B' && data[1] == 'M'
}

// JPEGKeyFor derives the storage key for the JPEG rendition of a HEIC
// original, replacing the extension with .jpeg.
func JPEGKeyFor(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + ".jpeg"
}

// Preprocess converts HEIC/HEIF and BMP buffers to JPEG and passes every
// other format through untouched. The storage key is only used to detect
// HEIC sources and derive the converted key.
func Preprocess(key string, data []byte) (*PreprocessResult, error) {
	if mediatypes.IsHEICKey(key) {
		quality := heicQualityNormal
		if len(data) > heicLargeFileThreshold {
			quality = heicQualityLarge
		}
		logging.Debug("Converting HEIC %s to JPEG (quality %d, %d bytes)", key, quality, len(data))
		jpg, err := convertHEICWithVips(data, quality)
		if err != nil {
			return nil, fmt.Errorf("HEIC conversion failed for %s: %w", key, err)
		}
		return &PreprocessResult{
			Data:      jpg,
			JPEGKey:   JPEGKeyFor(key),
			Converted: true,
		}, nil
	}

	if IsBitmap(data) {
		logging.Debug("Converting BMP %s to JPEG (%d bytes)", key, len(data))
		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("BMP decode failed for %s: %w", key, err)
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(bmpConvertQuality)); err != nil {
			return nil, fmt.Errorf("BMP re-encode failed for %s: %w", key, err)
		}
		return &PreprocessResult{
			Data:      buf.Bytes(),
			Converted: true,
		}, nil
	}

	return &PreprocessResult{Data: data}, nil
}
