package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"photoframe/internal/database"
	"photoframe/internal/exif"
	"photoframe/internal/geocode"
	"photoframe/internal/logging"
	"photoframe/internal/media"
	"photoframe/internal/metrics"
	"photoframe/internal/retry"
	"photoframe/internal/storage"
)

// Pipeline stage names persisted onto the task row before each stage runs,
// so an interrupted task records how far it got.
const (
	StagePreprocessing    = "preprocessing"
	StageMetadata         = "metadata"
	StageThumbnail        = "thumbnail"
	StageEXIF             = "exif"
	StageReverseGeocoding = "reverse-geocoding"
	StageMotionPhoto      = "motion-photo"
	StageLivePhoto        = "live-photo"
)

var errObjectNotVisible = errors.New("storage object not visible")

// visibilityWait bounds the poll for freshly uploaded objects, which can
// lag behind their upload acknowledgement on eventually-consistent
// backends.
var visibilityWait = retry.Config{
	MaxAttempts: 6,
	BaseDelay:   time.Second,
	MaxDelay:    8 * time.Second,
	Strategy:    retry.Exponential,
	RetryIf:     func(err error) bool { return errors.Is(err, errObjectNotVisible) },
}

// Processor executes pipeline tasks: full photo ingestion, standalone
// reverse geocoding, and live-photo video pairing.
type Processor struct {
	db       *database.Database
	storage  *storage.Manager
	geocoder geocode.Geocoder
	log      *logging.Logger
}

// New builds a task processor.
func New(db *database.Database, sm *storage.Manager, geocoder geocode.Geocoder) *Processor {
	return &Processor{
		db:       db,
		storage:  sm,
		geocoder: geocoder,
		log:      logging.Tagged("pipeline"),
	}
}

// Process dispatches a claimed task to the processor for its payload type.
func (p *Processor) Process(ctx context.Context, task *database.Task) error {
	switch task.Payload.Type {
	case database.TaskTypePhoto:
		return p.processPhoto(ctx, task)
	case database.TaskTypeReverseGeocode:
		return p.processReverseGeocode(ctx, task)
	case database.TaskTypeLivePhotoVideo:
		return p.processLivePhotoVideo(ctx, task)
	default:
		return fmt.Errorf("unknown task type %q", task.Payload.Type)
	}
}

// stage persists the stage name before the stage body runs and returns a
// completion func that records the stage duration.
func (p *Processor) stage(ctx context.Context, taskID int64, name string) (func(), error) {
	if err := p.db.SetTaskStage(ctx, taskID, name); err != nil {
		return nil, fmt.Errorf("persisting stage %s: %w", name, err)
	}
	p.log.Info("[%d:in-stage] %s", taskID, name)
	start := time.Now()
	return func() {
		metrics.PipelineStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}, nil
}

// waitForStorageObject polls until an uploaded object becomes visible,
// falling back from a metadata probe to a direct read for backends whose
// listings lag behind writes.
func (p *Processor) waitForStorageObject(ctx context.Context, provider storage.Provider, key string, taskID int64) (*storage.Object, error) {
	attempt := 0
	obj, err := retry.Do(ctx, visibilityWait, func(ctx context.Context) (*storage.Object, error) {
		attempt++
		if attempt > 1 {
			metrics.PipelineVisibilityRetries.Inc()
		}

		obj, err := provider.FileMeta(ctx, key)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			return obj, nil
		}

		data, err := provider.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if data != nil {
			return &storage.Object{Key: key, Size: int64(len(data)), LastModified: time.Now()}, nil
		}

		p.log.Warn("[%d] Storage object not visible yet (attempt %d/%d): %s", taskID, attempt, visibilityWait.MaxAttempts, key)
		return nil, errObjectNotVisible
	})
	if err != nil {
		if errors.Is(err, errObjectNotVisible) {
			return nil, fmt.Errorf("storage object not found: %s", key)
		}
		return nil, err
	}
	if attempt > 1 {
		p.log.Info("[%d] Storage object became visible on attempt %d/%d: %s", taskID, attempt, visibilityWait.MaxAttempts, key)
	}
	return obj, nil
}

func (p *Processor) processPhoto(ctx context.Context, task *database.Task) error {
	key := task.Payload.StorageKey
	if key == "" {
		return errors.New("photo task has no storage key")
	}

	provider, err := p.storage.Provider()
	if err != nil {
		return err
	}

	photoID := PhotoID(key)
	p.log.Info("Start processing task %d: %s", task.ID, key)

	obj, err := p.waitForStorageObject(ctx, provider, key, task.ID)
	if err != nil {
		return err
	}

	// Preprocessing: fetch the original and normalize HEIC/BMP to JPEG.
	// The converted JPEG is uploaded next to the original so browsers can
	// serve it directly.
	done, err := p.stage(ctx, task.ID, StagePreprocessing)
	if err != nil {
		return err
	}
	raw, err := provider.Get(ctx, key)
	if err != nil {
		done()
		return fmt.Errorf("fetching original: %w", err)
	}
	if raw == nil {
		done()
		return fmt.Errorf("storage object disappeared: %s", key)
	}
	pre, err := media.Preprocess(key, raw)
	if err != nil {
		done()
		return err
	}
	if pre.JPEGKey != "" {
		if _, err := provider.Create(ctx, pre.JPEGKey, pre.Data, "image/jpeg"); err != nil {
			done()
			return fmt.Errorf("uploading converted JPEG: %w", err)
		}
	}
	done()

	// Metadata: pixel dimensions with orientation applied.
	done, err = p.stage(ctx, task.ID, StageMetadata)
	if err != nil {
		return err
	}
	meta, err := media.ExtractMeta(pre.Data)
	done()
	if err != nil {
		return fmt.Errorf("metadata extraction failed: %w", err)
	}

	// Thumbnail: preview artifact plus perceptual hash, uploaded under the
	// shared thumbnails/ prefix.
	done, err = p.stage(ctx, task.ID, StageThumbnail)
	if err != nil {
		return err
	}
	thumb, err := media.GenerateThumbnail(pre.Data)
	if err != nil {
		done()
		return fmt.Errorf("thumbnail generation failed: %w", err)
	}
	thumbKey := "thumbnails/" + photoID + thumb.Ext
	thumbObj, err := provider.Create(ctx, thumbKey, thumb.Data, thumb.ContentType)
	done()
	if err != nil {
		return fmt.Errorf("uploading thumbnail: %w", err)
	}

	// EXIF: read from the untouched original first, since format
	// conversion can strip metadata.
	done, err = p.stage(ctx, task.ID, StageEXIF)
	if err != nil {
		return err
	}
	exifData := exif.Extract(raw)
	if exifData == nil && pre.Converted {
		exifData = exif.Extract(pre.Data)
	}
	done()

	// Reverse geocoding inside the photo pipeline is best-effort: a
	// geocoder outage should not fail the whole ingestion.
	done, err = p.stage(ctx, task.ID, StageReverseGeocoding)
	if err != nil {
		return err
	}
	var location *geocode.Location
	if exifData.HasCoordinates() {
		location, err = p.geocoder.Reverse(ctx, *exifData.Latitude, *exifData.Longitude)
		if err != nil {
			p.log.Warn("[%d] reverse geocoding failed, continuing: %v", task.ID, err)
			location = nil
		}
	}
	done()

	// Motion photo: some stills carry an embedded video clip announced in
	// their XMP header.
	done, err = p.stage(ctx, task.ID, StageMotionPhoto)
	if err != nil {
		return err
	}
	var liveVideoKey, liveVideoURL string
	if video := extractMotionVideo(raw); video != nil {
		motionKey := "motion-videos/" + photoID + ".mp4"
		if _, err := provider.Create(ctx, motionKey, video, "video/mp4"); err != nil {
			done()
			return fmt.Errorf("uploading motion photo video: %w", err)
		}
		liveVideoKey = motionKey
		liveVideoURL = provider.PublicURL(motionKey)
		p.log.Info("[%d:in-stage] extracted motion photo video: %s", task.ID, motionKey)
	}
	done()

	// Live photo: pair with a standalone sibling video when no embedded
	// clip was found. Absence is normal here; the dedicated video task
	// handles uploads that arrive after the photo.
	done, err = p.stage(ctx, task.ID, StageLivePhoto)
	if err != nil {
		return err
	}
	if liveVideoKey == "" {
		videoKey, ferr := p.findLivePhotoVideo(ctx, provider, key)
		if ferr != nil {
			done()
			return ferr
		}
		if videoKey != "" {
			liveVideoKey = videoKey
			liveVideoURL = provider.PublicURL(videoKey)
			p.log.Info("[%d:in-stage] found live photo video: %s", task.ID, videoKey)
		}
	}
	done()

	photo := &database.Photo{
		ID:            photoID,
		Title:         titleFromKey(key),
		Width:         meta.Width,
		Height:        meta.Height,
		StorageKey:    key,
		ThumbnailKey:  thumbObj.Key,
		FileSize:      obj.Size,
		LastModified:  obj.LastModified,
		OriginalURL:   provider.PublicURL(key),
		ThumbnailURL:  provider.PublicURL(thumbObj.Key),
		ThumbnailHash: thumb.Hash,
	}
	if meta.Height > 0 {
		photo.AspectRatio = float64(meta.Width) / float64(meta.Height)
	}
	if photo.LastModified.IsZero() {
		photo.LastModified = time.Now()
	}
	if pre.JPEGKey != "" {
		photo.OriginalURL = provider.PublicURL(pre.JPEGKey)
	}
	if exifData != nil {
		if tags, merr := json.Marshal(exifData.Tags); merr == nil {
			photo.EXIF = string(tags)
		}
		photo.DateTaken = exifData.DateTaken
		photo.Latitude = exifData.Latitude
		photo.Longitude = exifData.Longitude
	}
	if location != nil {
		photo.Country = location.Country
		photo.City = location.City
		photo.LocationName = location.DisplayName
	}
	if liveVideoKey != "" {
		photo.IsLivePhoto = 1
		photo.LivePhotoVideoKey = liveVideoKey
		photo.LivePhotoVideoURL = liveVideoURL
	}

	if err := p.db.UpsertPhoto(ctx, photo); err != nil {
		return fmt.Errorf("persisting photo: %w", err)
	}

	p.log.Info("Task %d processed successfully: photo %s", task.ID, photoID)
	return nil
}

// findLivePhotoVideo probes storage for a video sharing the photo's
// basename. Returns an empty key when no sibling exists.
func (p *Processor) findLivePhotoVideo(ctx context.Context, provider storage.Provider, photoKey string) (string, error) {
	dir := path.Dir(photoKey)
	base := strings.TrimSuffix(path.Base(photoKey), path.Ext(photoKey))

	for _, ext := range []string{".MOV", ".mov", ".MP4", ".mp4"} {
		candidate := base + ext
		if dir != "." {
			candidate = dir + "/" + candidate
		}
		obj, err := provider.FileMeta(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probing live photo video %s: %w", candidate, err)
		}
		if obj != nil {
			return candidate, nil
		}
	}
	return "", nil
}

func titleFromKey(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
