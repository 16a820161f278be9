package media

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
)

// buildJPEGHeader assembles a minimal JPEG marker stream: SOI, an APP0
// segment, and a frame header with the given dimensions. There is no
// entropy-coded data, so only the raw marker scan can read it.
func buildJPEGHeader(sofMarker byte, width, height int) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})

	// APP0 with a 14-byte payload.
	buf.Write([]byte{0xFF, 0xE0, 0x00, 0x10})
	buf.Write([]byte("JFIF\x00"))
	buf.Write(make([]byte, 9))

	// SOF: length 17, precision 8, height, width, 3 components.
	buf.Write([]byte{0xFF, sofMarker, 0x00, 0x11, 0x08})
	buf.Write([]byte{byte(height >> 8), byte(height)})
	buf.Write([]byte{byte(width >> 8), byte(width)})
	buf.Write([]byte{0x03, 0x01, 0x22, 0x00, 0x02, 0x11, 0x01, 0x03, 0x11, 0x01})
	return buf.Bytes()
}

func TestParseJPEGDimensions(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantWidth  int
		wantHeight int
		wantErr    bool
	}{
		{
			name:       "baseline SOF0",
			data:       buildJPEGHeader(0xC0, 480, 320),
			wantWidth:  480,
			wantHeight: 320,
		},
		{
			name:       "progressive SOF2",
			data:       buildJPEGHeader(0xC2, 4032, 3024),
			wantWidth:  4032,
			wantHeight: 3024,
		},
		{
			name:       "differential SOF5",
			data:       buildJPEGHeader(0xC5, 100, 50),
			wantWidth:  100,
			wantHeight: 50,
		},
		{
			name:    "huffman table marker is not a frame",
			data:    append([]byte{0xFF, 0xD8, 0xFF, 0xC4, 0x00, 0x05, 0x00, 0x00, 0x00}, make([]byte, 8)...),
			wantErr: true,
		},
		{
			name:    "zero dimensions rejected",
			data:    buildJPEGHeader(0xC0, 0, 0),
			wantErr: true,
		},
		{
			name:    "not a JPEG",
			data:    []byte("BMxxxxxxxxxx"),
			wantErr: true,
		},
		{
			name:    "truncated",
			data:    []byte{0xFF, 0xD8},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := ParseJPEGDimensions(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %dx%d", w, h)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if w != tt.wantWidth || h != tt.wantHeight {
				t.Errorf("got %dx%d, want %dx%d", w, h, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestIsBitmap(t *testing.T) {
	if !IsBitmap([]byte("BM\x00\x00")) {
		t.Error("BM signature not detected")
	}
	if IsBitmap([]byte{0xFF, 0xD8, 0xFF}) {
		t.Error("JPEG bytes misdetected as bitmap")
	}
	if IsBitmap([]byte{'B'}) {
		t.Error("single byte misdetected as bitmap")
	}
}

func TestJPEGKeyFor(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"2024/IMG_001.heic", "2024/IMG_001.jpeg"},
		{"2024/IMG_001.HEIC", "2024/IMG_001.jpeg"},
		{"a/b/photo.hif", "a/b/photo.jpeg"},
		{"noext", "noext.jpeg"},
	}
	for _, tt := range tests {
		if got := JPEGKeyFor(tt.key); got != tt.want {
			t.Errorf("JPEGKeyFor(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func encodeTestImage(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := gradientImage(w, h)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func TestExtractMeta(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		width  int
		height int
		format string
	}{
		{"png", encodeTestImage(t, 12, 8, imaging.PNG), 12, 8, "png"},
		{"jpeg", encodeTestImage(t, 64, 48, imaging.JPEG), 64, 48, "jpeg"},
		{"marker-scan fallback", buildJPEGHeader(0xC0, 800, 600), 800, 600, "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ExtractMeta(tt.data)
			if err != nil {
				t.Fatalf("ExtractMeta failed: %v", err)
			}
			if meta.Width != tt.width || meta.Height != tt.height {
				t.Errorf("got %dx%d, want %dx%d", meta.Width, meta.Height, tt.width, tt.height)
			}
			if meta.Format != tt.format {
				t.Errorf("format = %q, want %q", meta.Format, tt.format)
			}
		})
	}

	if _, err := ExtractMeta([]byte("not an image at all")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestDifferenceHash(t *testing.T) {
	img := gradientImage(120, 90)

	h1 := DifferenceHash(img)
	h2 := DifferenceHash(img)
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16", len(h1))
	}

	uniform := imaging.New(120, 90, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	if got := DifferenceHash(uniform); got != "0000000000000000" {
		t.Errorf("uniform image hash = %s, want all zeros", got)
	}
	if DifferenceHash(uniform) == h1 {
		t.Error("gradient and uniform images should not collide")
	}
}

func TestGenerateThumbnailWithoutVips(t *testing.T) {
	data := encodeTestImage(t, 1200, 300, imaging.JPEG)

	thumb, err := GenerateThumbnail(data)
	if err != nil {
		t.Fatalf("GenerateThumbnail failed: %v", err)
	}
	if thumb.Ext != ".jpg" || thumb.ContentType != "image/jpeg" {
		t.Errorf("fallback thumbnail should be JPEG, got %s %s", thumb.Ext, thumb.ContentType)
	}
	if thumb.Hash == "" {
		t.Error("expected a perceptual hash")
	}

	preview, err := imaging.Decode(bytes.NewReader(thumb.Data))
	if err != nil {
		t.Fatalf("preview did not decode: %v", err)
	}
	b := preview.Bounds()
	if b.Dx() > thumbnailMaxEdge || b.Dy() > thumbnailMaxEdge {
		t.Errorf("preview %dx%d exceeds max edge %d", b.Dx(), b.Dy(), thumbnailMaxEdge)
	}
}

func TestGenerateThumbnailSmallImageNotUpscaled(t *testing.T) {
	data := encodeTestImage(t, 40, 30, imaging.JPEG)

	thumb, err := GenerateThumbnail(data)
	if err != nil {
		t.Fatalf("GenerateThumbnail failed: %v", err)
	}
	preview, err := imaging.Decode(bytes.NewReader(thumb.Data))
	if err != nil {
		t.Fatalf("preview did not decode: %v", err)
	}
	if b := preview.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("small image was resized to %dx%d", b.Dx(), b.Dy())
	}
}

func TestPreprocess(t *testing.T) {
	t.Run("passthrough", func(t *testing.T) {
		data := encodeTestImage(t, 20, 20, imaging.PNG)
		res, err := Preprocess("2024/img.png", data)
		if err != nil {
			t.Fatalf("Preprocess failed: %v", err)
		}
		if res.Converted || res.JPEGKey != "" {
			t.Error("PNG input should pass through unchanged")
		}
		if !bytes.Equal(res.Data, data) {
			t.Error("passthrough buffer was modified")
		}
	})

	t.Run("bmp converted to jpeg", func(t *testing.T) {
		var buf bytes.Buffer
		if err := bmp.Encode(&buf, gradientImage(16, 16)); err != nil {
			t.Fatalf("bmp encode failed: %v", err)
		}
		res, err := Preprocess("scans/page.bmp", buf.Bytes())
		if err != nil {
			t.Fatalf("Preprocess failed: %v", err)
		}
		if !res.Converted {
			t.Fatal("expected BMP to be converted")
		}
		if res.JPEGKey != "" {
			t.Errorf("BMP conversion keeps the original key, got %q", res.JPEGKey)
		}
		if _, _, err := image.Decode(bytes.NewReader(res.Data)); err != nil {
			t.Errorf("converted output did not decode: %v", err)
		}
	})

	t.Run("heic requires vips", func(t *testing.T) {
		if IsVipsAvailable() {
			t.Skip("libvips initialized in this environment")
		}
		_, err := Preprocess("2024/a.heic", []byte{0x00, 0x00, 0x00, 0x18})
		if err == nil {
			t.Fatal("expected HEIC conversion to fail without libvips")
		}
	})
}
