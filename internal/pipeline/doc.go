// Package pipeline turns queued ingestion tasks into fully indexed photo
// records. A Processor handles three task types: full photo ingestion
// (preprocess, measure, thumbnail, EXIF, geocode, motion and live photo
// detection), standalone reverse geocoding, and pairing of separately
// uploaded live-photo videos.
//
// Photo ingestion is idempotent: photo IDs derive deterministically from
// storage keys, and results land via upsert, so re-running a task for the
// same key overwrites rather than duplicates.
package pipeline
