package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"photoframe/internal/logging"

	"github.com/disintegration/imaging"
)

const (
	// Longest edge of generated previews, in pixels.
	thumbnailMaxEdge = 600

	thumbnailWebpQuality = 80
	thumbnailJpegQuality = 80
)

// Thumbnail is a generated preview artifact plus its perceptual hash.
type Thumbnail struct {
	Data        []byte
	Ext         string
	ContentType string

	// Hash is a 64-bit difference hash of the source image, hex encoded.
	Hash string
}

// GenerateThumbnail produces a preview capped at thumbnailMaxEdge on the
// longest side and a perceptual hash of the source. WebP output requires
// libvips; without it the preview falls back to JPEG.
func GenerateThumbnail(data []byte) (*Thumbnail, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("thumbnail source decode failed: %w", err)
	}

	hash := DifferenceHash(img)

	if IsVipsAvailable() {
		webpData, verr := thumbnailWebpWithVips(data, thumbnailMaxEdge, thumbnailWebpQuality)
		if verr == nil {
			return &Thumbnail{
				Data:        webpData,
				Ext:         ".webp",
				ContentType: "image/webp",
				Hash:        hash,
			}, nil
		}
		logging.Warn("vips thumbnail failed, falling back to JPEG: %v", verr)
	}

	preview := img
	b := img.Bounds()
	if b.Dx() > thumbnailMaxEdge || b.Dy() > thumbnailMaxEdge {
		preview = imaging.Fit(img, thumbnailMaxEdge, thumbnailMaxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preview, imaging.JPEG, imaging.JPEGQuality(thumbnailJpegQuality)); err != nil {
		return nil, fmt.Errorf("thumbnail encode failed: %w", err)
	}
	return &Thumbnail{
		Data:        buf.Bytes(),
		Ext:         ".jpg",
		ContentType: "image/jpeg",
		Hash:        hash,
	}, nil
}

// DifferenceHash computes a 64-bit dHash: the image is shrunk to a 9x8
// grayscale grid and each bit records whether a pixel is brighter than its
// right-hand neighbor. Similar images produce hashes with a small Hamming
// distance.
func DifferenceHash(img image.Image) string {
	small := imaging.Resize(img, 9, 8, imaging.Lanczos)

	var bits uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			left := grayAt(small, x, y)
			right := grayAt(small, x+1, y)
			bits <<= 1
			if left > right {
				bits |= 1
			}
		}
	}
	return fmt.Sprintf("%016x", bits)
}

func grayAt(img image.Image, x, y int) uint8 {
	b := img.Bounds()
	c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
	return c.Y
}
