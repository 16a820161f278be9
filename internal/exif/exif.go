// Package exif pulls camera metadata out of image buffers for the
// ingestion pipeline: a flat tag map for display, the capture timestamp,
// and GPS coordinates when the camera recorded them.
package exif

import (
	"bytes"
	"time"

	"photoframe/internal/logging"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// Data is the metadata extracted from one image.
type Data struct {
	// Tags maps EXIF field names to display strings.
	Tags map[string]string

	DateTaken *time.Time
	Latitude  *float64
	Longitude *float64
}

// HasCoordinates reports whether both GPS coordinates are present.
func (d *Data) HasCoordinates() bool {
	return d != nil && d.Latitude != nil && d.Longitude != nil
}

// Extract decodes EXIF metadata from an image buffer. Images without EXIF
// are commonplace (screenshots, exports, scans), so absence and corrupt
// metadata both yield nil rather than an error.
func Extract(data []byte) *Data {
	x, err := goexif.Decode(bytes.NewReader(data))
	if err != nil {
		logging.Debug("No usable EXIF metadata: %v", err)
		return nil
	}

	d := &Data{Tags: make(map[string]string)}

	c := tagCollector(d.Tags)
	if err := x.Walk(c); err != nil {
		logging.Debug("EXIF walk aborted: %v", err)
	}

	if ts, err := x.DateTime(); err == nil {
		d.DateTaken = &ts
	}

	if lat, lon, err := x.LatLong(); err == nil {
		d.Latitude = &lat
		d.Longitude = &lon
	}

	return d
}

// tagCollector flattens every EXIF field into a string map. ASCII values
// are stored verbatim; everything else uses the tag's default rendering.
type tagCollector map[string]string

func (c tagCollector) Walk(name goexif.FieldName, tag *tiff.Tag) error {
	if s, err := tag.StringVal(); err == nil {
		c[string(name)] = s
		return nil
	}
	c[string(name)] = tag.String()
	return nil
}
