package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"photoframe/internal/logging"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Meta holds the pixel dimensions extracted from an image buffer, after
// accounting for EXIF orientation.
type Meta struct {
	Width  int
	Height int
	Format string
}

// ExtractMeta reads pixel dimensions from an image buffer. Decoders that
// choke on slightly malformed files are common enough that it tries four
// strategies in order:
//
//  1. header-only parse via image.DecodeConfig
//  2. full pixel decode via imaging
//  3. libvips buffer load, which tolerates truncated files
//  4. raw JPEG SOF marker scan
func ExtractMeta(data []byte) (*Meta, error) {
	meta, err := decodeDimensions(data)
	if err != nil {
		return nil, err
	}

	// EXIF orientation values 5 through 8 rotate the raster by 90 degrees,
	// so reported width and height trade places.
	if o := exifOrientation(data); o >= 5 && o <= 8 {
		meta.Width, meta.Height = meta.Height, meta.Width
	}
	return meta, nil
}

func decodeDimensions(data []byte) (*Meta, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil && cfg.Width > 0 && cfg.Height > 0 {
		return &Meta{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
	}
	logging.Debug("Header parse failed (%v), trying full decode", err)

	if img, derr := imaging.Decode(bytes.NewReader(data)); derr == nil {
		b := img.Bounds()
		return &Meta{Width: b.Dx(), Height: b.Dy(), Format: format}, nil
	}

	if IsVipsAvailable() {
		if w, h, verr := vipsDimensions(data); verr == nil {
			return &Meta{Width: w, Height: h, Format: format}, nil
		}
	}

	if w, h, perr := ParseJPEGDimensions(data); perr == nil {
		return &Meta{Width: w, Height: h, Format: "jpeg"}, nil
	}

	return nil, fmt.Errorf("unable to determine image dimensions: %w", err)
}

func vipsDimensions(data []byte) (int, int, error) {
	ref, err := vipsImageFromBuffer(data)
	if err != nil {
		return 0, 0, err
	}
	defer ref.Close()
	return ref.Width(), ref.Height(), nil
}

// ParseJPEGDimensions scans the JPEG marker stream for a start-of-frame
// segment and reads the dimensions directly from it. Works on files whose
// trailing data is corrupt, as long as the header segments survive.
func ParseJPEGDimensions(data []byte) (int, int, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return 0, 0, fmt.Errorf("not a JPEG buffer")
	}

	offset := 2
	for offset+9 < len(data) {
		if data[offset] != 0xFF {
			offset++
			continue
		}
		marker := data[offset+1]

		// SOF0-SOF3 and SOF5-SOF7 carry the frame dimensions. 0xC4 is a
		// huffman table, not a frame header.
		if (marker >= 0xC0 && marker <= 0xC3) || (marker >= 0xC5 && marker <= 0xC7) {
			height := int(data[offset+5])<<8 | int(data[offset+6])
			width := int(data[offset+7])<<8 | int(data[offset+8])
			if width > 0 && height > 0 {
				return width, height, nil
			}
			return 0, 0, fmt.Errorf("SOF segment has zero dimensions")
		}

		if marker == 0xD9 || marker == 0xDA {
			// End of image or start of entropy-coded data.
			break
		}

		// Skip past this segment using its declared length.
		if marker >= 0xD0 && marker <= 0xD8 {
			offset += 2
			continue
		}
		segLen := int(data[offset+2])<<8 | int(data[offset+3])
		if segLen < 2 {
			return 0, 0, fmt.Errorf("invalid JPEG segment length %d", segLen)
		}
		offset += 2 + segLen
	}
	return 0, 0, fmt.Errorf("no SOF marker found")
}

func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}
