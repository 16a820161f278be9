package mediatypes

import (
	"path"
	"strings"
)

// FileType represents the type of a media object.
type FileType string

const (
	// FileTypeImage represents an image object.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video object.
	FileTypeVideo FileType = "video"
	// FileTypeOther represents an unknown or unsupported object type.
	FileTypeOther FileType = "other"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
// This is the allow-list storage providers use for ListImages.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
	".hif":  true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".m4v":  true,
	".webm": true,
	".3gp":  true,
}

// LivePhotoVideoExtensions lists the sidecar video extensions checked when
// pairing a live photo with its companion clip. Order matters: the first
// match wins.
var LivePhotoVideoExtensions = []string{".mov", ".MOV", ".mp4", ".MP4"}

// LivePhotoImageExtensions lists the still-image extensions checked when an
// orphan video looks for its owning photo.
var LivePhotoImageExtensions = []string{".HEIC", ".heic", ".JPG", ".jpg", ".JPEG", ".jpeg"}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".hif":  "image/heif",

	// Videos
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns FileTypeOther if the extension is not recognized.
func GetFileType(ext string) FileType {
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsImageKey reports whether a storage key names a supported image format.
func IsImageKey(key string) bool {
	return ImageExtensions[strings.ToLower(path.Ext(key))]
}

// IsHEICKey reports whether a storage key names a HEIC/HEIF image that the
// pipeline must normalize to JPEG before further processing.
func IsHEICKey(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".heic", ".heif", ".hif":
		return true
	}
	return false
}
