package storage

import (
	"context"
	"errors"
	"time"
)

// Object is the normalized shape every provider returns from metadata and
// list calls, regardless of the backend-native response.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// Provider is the uniform capability contract implemented once per backend.
//
// Get and FileMeta return (nil, nil) when the object does not exist: absence
// is not an error at this contract level. Delete is idempotent.
type Provider interface {
	// Kind identifies the backend implementation.
	Kind() Kind

	// Create writes the object under the provider's rooting convention and
	// returns post-write metadata. Size is always populated; ETag and
	// LastModified when the backend exposes them.
	Create(ctx context.Context, key string, data []byte, contentType string) (*Object, error)

	// Get fetches object content, or (nil, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. Deleting a missing key is not fatal.
	Delete(ctx context.Context, key string) error

	// FileMeta is a metadata-only fetch, cheaper than Get. (nil, nil) when
	// absent.
	FileMeta(ctx context.Context, key string) (*Object, error)

	// ListAll returns the full inventory under the configured root.
	ListAll(ctx context.Context) ([]Object, error)

	// ListImages returns the inventory filtered by the image extension
	// allow-list.
	ListImages(ctx context.Context) ([]Object, error)

	// PublicURL derives a stable externally-reachable URL for a key.
	// Synchronous, pure, no I/O.
	PublicURL(key string) string
}

// URLSigner is implemented only by backends with native presigned-upload
// support. Callers that find a provider does not implement it fall back to
// a server-mediated upload path.
type URLSigner interface {
	SignedUploadURL(ctx context.Context, key string, expiry time.Duration, contentType string) (string, error)
}

// ConfigStore is the narrow settings-store surface providers need: reading
// the active configuration and compare-and-swap persistence of rotated
// OAuth refresh tokens.
type ConfigStore interface {
	// ActiveConfig returns the currently active stored configuration, or
	// (nil, nil) when none is configured.
	ActiveConfig(ctx context.Context) (*StoredConfig, error)

	// CompareAndSwapRefreshToken persists a rotated refresh token into the
	// stored config identified by id, but only if the stored token still
	// equals oldToken. Returns whether the swap happened.
	CompareAndSwapRefreshToken(ctx context.Context, id int64, oldToken, newToken string) (bool, error)
}

// StoredConfig is one persisted provider configuration row.
type StoredConfig struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Config Config `json:"config"`
}

// ErrNotInitialized is returned by Manager.Provider when no provider has
// been successfully constructed yet.
var ErrNotInitialized = errors.New("storage provider not initialized")
