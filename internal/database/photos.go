package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertPhoto inserts or fully replaces a photo record keyed on its
// deterministic id, so re-ingesting the same storage key is idempotent.
func (d *Database) UpsertPhoto(ctx context.Context, p *Photo) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_photo", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var dateTaken any
	if p.DateTaken != nil {
		dateTaken = p.DateTaken.UnixMilli()
	}

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO photos (
		id, title, description, date_taken, width, height, aspect_ratio,
		storage_key, thumbnail_key, file_size, last_modified,
		original_url, thumbnail_url, thumbnail_hash, exif,
		latitude, longitude, country, city, location_name,
		is_live_photo, live_photo_video_url, live_photo_video_key
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		date_taken = excluded.date_taken,
		width = excluded.width,
		height = excluded.height,
		aspect_ratio = excluded.aspect_ratio,
		storage_key = excluded.storage_key,
		thumbnail_key = excluded.thumbnail_key,
		file_size = excluded.file_size,
		last_modified = excluded.last_modified,
		original_url = excluded.original_url,
		thumbnail_url = excluded.thumbnail_url,
		thumbnail_hash = excluded.thumbnail_hash,
		exif = excluded.exif,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		country = excluded.country,
		city = excluded.city,
		location_name = excluded.location_name,
		is_live_photo = excluded.is_live_photo,
		live_photo_video_url = excluded.live_photo_video_url,
		live_photo_video_key = excluded.live_photo_video_key
	`,
		p.ID, p.Title, p.Description, dateTaken, p.Width, p.Height, p.AspectRatio,
		p.StorageKey, p.ThumbnailKey, p.FileSize, p.LastModified.UnixMilli(),
		p.OriginalURL, p.ThumbnailURL, p.ThumbnailHash, p.EXIF,
		p.Latitude, p.Longitude, p.Country, p.City, p.LocationName,
		p.IsLivePhoto, p.LivePhotoVideoURL, p.LivePhotoVideoKey,
	)
	return err
}

// GetPhoto returns a photo by id, or nil if it does not exist.
func (d *Database) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_photo", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, selectPhoto+` WHERE id = ?`, id)
	photo, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	return photo, err
}

// GetPhotoByStorageKey returns the photo whose storage key matches exactly,
// or nil when no record exists.
func (d *Database) GetPhotoByStorageKey(ctx context.Context, key string) (*Photo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_photo_by_storage_key", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, selectPhoto+` WHERE storage_key = ? LIMIT 1`, key)
	photo, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	return photo, err
}

// UpdatePhotoLocation sets coordinates and resolved location fields, leaving
// every other photo field untouched.
func (d *Database) UpdatePhotoLocation(ctx context.Context, id string, lat, lon float64, country, city, locationName string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_photo_location", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		UPDATE photos
		SET latitude = ?, longitude = ?, country = ?, city = ?, location_name = ?
		WHERE id = ?
	`, lat, lon, nullIfEmpty(country), nullIfEmpty(city), nullIfEmpty(locationName), id)
	return err
}

// ClearPhotoLocation removes stale coordinates and location fields.
func (d *Database) ClearPhotoLocation(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("clear_photo_location", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		UPDATE photos
		SET latitude = NULL, longitude = NULL, country = NULL, city = NULL, location_name = NULL
		WHERE id = ?
	`, id)
	return err
}

// MarkPhotoLive attaches a companion video to an existing photo record.
func (d *Database) MarkPhotoLive(ctx context.Context, id, videoURL, videoKey string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_photo_live", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		UPDATE photos
		SET is_live_photo = 1, live_photo_video_url = ?, live_photo_video_key = ?
		WHERE id = ?
	`, videoURL, videoKey, id)
	return err
}

const selectPhoto = `
	SELECT id, title, description, date_taken, width, height, aspect_ratio,
		storage_key, thumbnail_key, file_size, last_modified,
		original_url, thumbnail_url, thumbnail_hash, exif,
		latitude, longitude, country, city, location_name,
		is_live_photo, live_photo_video_url, live_photo_video_key
	FROM photos`

func scanPhoto(row scanner) (*Photo, error) {
	var (
		p            Photo
		title        sql.NullString
		description  sql.NullString
		dateTaken    sql.NullInt64
		thumbnailKey sql.NullString
		lastModified sql.NullInt64
		originalURL  sql.NullString
		thumbnailURL sql.NullString
		thumbHash    sql.NullString
		exif         sql.NullString
		latitude     sql.NullFloat64
		longitude    sql.NullFloat64
		country      sql.NullString
		city         sql.NullString
		locationName sql.NullString
		liveURL      sql.NullString
		liveKey      sql.NullString
	)

	err := row.Scan(
		&p.ID, &title, &description, &dateTaken, &p.Width, &p.Height, &p.AspectRatio,
		&p.StorageKey, &thumbnailKey, &p.FileSize, &lastModified,
		&originalURL, &thumbnailURL, &thumbHash, &exif,
		&latitude, &longitude, &country, &city, &locationName,
		&p.IsLivePhoto, &liveURL, &liveKey,
	)
	if err != nil {
		return nil, err
	}

	p.Title = title.String
	p.Description = description.String
	if dateTaken.Valid {
		t := time.UnixMilli(dateTaken.Int64)
		p.DateTaken = &t
	}
	p.ThumbnailKey = thumbnailKey.String
	if lastModified.Valid {
		p.LastModified = time.UnixMilli(lastModified.Int64)
	}
	p.OriginalURL = originalURL.String
	p.ThumbnailURL = thumbnailURL.String
	p.ThumbnailHash = thumbHash.String
	p.EXIF = exif.String
	if latitude.Valid {
		p.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		p.Longitude = &longitude.Float64
	}
	p.Country = country.String
	p.City = city.String
	p.LocationName = locationName.String
	p.LivePhotoVideoURL = liveURL.String
	p.LivePhotoVideoKey = liveKey.String
	return &p, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
