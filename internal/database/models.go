package database

import "time"

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	// TaskStatusPending means the task is waiting to be claimed.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInStages means a worker has claimed the task and is
	// driving it through its pipeline stages.
	TaskStatusInStages TaskStatus = "in-stages"
	// TaskStatusCompleted is the terminal success state.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed is the terminal failure state, entered once the
	// attempt budget is exhausted.
	TaskStatusFailed TaskStatus = "failed"
)

// Task payload types.
const (
	TaskTypePhoto           = "photo"
	TaskTypeReverseGeocode  = "photo-reverse-geocoding"
	TaskTypeLivePhotoVideo  = "live-photo-video"
	DefaultTaskMaxAttempts  = 3
	DefaultTaskPriority     = 0
)

// TaskPayload is the tagged union carried by a queue row. Type selects the
// processor; the remaining fields are per-type.
type TaskPayload struct {
	Type       string   `json:"type"`
	StorageKey string   `json:"storageKey,omitempty"`
	PhotoID    string   `json:"photoId,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// Task is one persisted pipeline queue row.
type Task struct {
	ID           int64       `json:"id"`
	Payload      TaskPayload `json:"payload"`
	Status       TaskStatus  `json:"status"`
	StatusStage  string      `json:"statusStage,omitempty"`
	Priority     int         `json:"priority"`
	Attempts     int         `json:"attempts"`
	MaxAttempts  int         `json:"maxAttempts"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
}

// TaskOptions overrides queue defaults when enqueueing.
type TaskOptions struct {
	Priority    int
	MaxAttempts int
}

// Photo is the fully-indexed record the photo pipeline produces.
type Photo struct {
	ID                string     `json:"id"`
	Title             string     `json:"title,omitempty"`
	Description       string     `json:"description,omitempty"`
	DateTaken         *time.Time `json:"dateTaken,omitempty"`
	Width             int        `json:"width"`
	Height            int        `json:"height"`
	AspectRatio       float64    `json:"aspectRatio"`
	StorageKey        string     `json:"storageKey"`
	ThumbnailKey      string     `json:"thumbnailKey,omitempty"`
	FileSize          int64      `json:"fileSize"`
	LastModified      time.Time  `json:"lastModified"`
	OriginalURL       string     `json:"originalUrl,omitempty"`
	ThumbnailURL      string     `json:"thumbnailUrl,omitempty"`
	ThumbnailHash     string     `json:"thumbnailHash,omitempty"`
	EXIF              string     `json:"exif,omitempty"` // JSON tag map
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	Country           string     `json:"country,omitempty"`
	City              string     `json:"city,omitempty"`
	LocationName      string     `json:"locationName,omitempty"`
	IsLivePhoto       int        `json:"isLivePhoto"`
	LivePhotoVideoURL string     `json:"livePhotoVideoUrl,omitempty"`
	LivePhotoVideoKey string     `json:"livePhotoVideoKey,omitempty"`
}
