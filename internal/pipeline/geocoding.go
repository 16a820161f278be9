package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"photoframe/internal/database"
)

func (p *Processor) processReverseGeocode(ctx context.Context, task *database.Task) error {
	photoID := task.Payload.PhotoID
	if photoID == "" {
		return fmt.Errorf("reverse geocoding task has no photo id")
	}

	done, err := p.stage(ctx, task.ID, StageReverseGeocoding)
	if err != nil {
		return err
	}
	defer done()

	photo, err := p.db.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if photo == nil {
		return fmt.Errorf("photo %s not found", photoID)
	}

	// Coordinate resolution order: explicit payload override, then the
	// photo row, then the stored EXIF tags.
	lat := task.Payload.Latitude
	lon := task.Payload.Longitude
	if lat == nil {
		lat = photo.Latitude
	}
	if lon == nil {
		lon = photo.Longitude
	}
	if (lat == nil || lon == nil) && photo.EXIF != "" {
		exifLat, exifLon := coordinatesFromStoredEXIF(photo.EXIF)
		if lat == nil {
			lat = exifLat
		}
		if lon == nil {
			lon = exifLon
		}
	}

	// No coordinates from any source means any stored location is stale
	// guesswork. Clear it, then fail the task so the condition is visible.
	if lat == nil || lon == nil {
		p.log.Warn("[%d:reverse-geocoding] missing coordinates for photo %s", task.ID, photoID)
		if cerr := p.db.ClearPhotoLocation(ctx, photoID); cerr != nil {
			return cerr
		}
		return fmt.Errorf("missing coordinates for photo %s", photoID)
	}

	location, err := p.geocoder.Reverse(ctx, *lat, *lon)
	if err != nil {
		return fmt.Errorf("reverse geocoding (%f, %f): %w", *lat, *lon, err)
	}
	if location == nil {
		return fmt.Errorf("no location found for coordinates (%f, %f)", *lat, *lon)
	}

	if err := p.db.UpdatePhotoLocation(ctx, photoID, *lat, *lon, location.Country, location.City, location.DisplayName); err != nil {
		return err
	}
	p.log.Info("[%d:reverse-geocoding] updated location for photo %s: %s, %s", task.ID, photoID, location.City, location.Country)
	return nil
}

// coordinatesFromStoredEXIF re-derives GPS coordinates from the JSON tag
// map persisted on the photo row. Rational triplets render as JSON arrays
// like ["48/1","51/1","2376/100"] (degrees, minutes, seconds).
func coordinatesFromStoredEXIF(exifJSON string) (*float64, *float64) {
	var tags map[string]string
	if err := json.Unmarshal([]byte(exifJSON), &tags); err != nil {
		return nil, nil
	}

	lat := parseDMS(tags["GPSLatitude"])
	lon := parseDMS(tags["GPSLongitude"])
	if lat == nil || lon == nil {
		return nil, nil
	}
	if tags["GPSLatitudeRef"] == "S" {
		*lat = -*lat
	}
	if tags["GPSLongitudeRef"] == "W" {
		*lon = -*lon
	}
	return lat, lon
}

func parseDMS(raw string) *float64 {
	var parts []string
	if err := json.Unmarshal([]byte(raw), &parts); err != nil || len(parts) != 3 {
		return nil
	}

	values := make([]float64, 3)
	for i, part := range parts {
		num, den, ok := strings.Cut(part, "/")
		if !ok {
			return nil
		}
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return nil
		}
		values[i] = n / d
	}

	decimal := values[0] + values[1]/60 + values[2]/3600
	return &decimal
}
