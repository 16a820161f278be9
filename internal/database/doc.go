// Package database manages all persistence for the photoframe ingestion
// core: the durable pipeline task queue, the photo records the pipeline
// produces, and storage provider configurations.
//
// The queue's correctness-critical operation is ClaimNextTask, which marks
// the next eligible pending task in-stages within a single UPDATE statement
// so that concurrent workers (including separate processes sharing the
// database file) never claim the same task.
package database
