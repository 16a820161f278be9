// Package mediatypes defines supported media file types, the extension
// allow-lists used by storage providers and live-photo pairing, and MIME
// type lookups.
package mediatypes
