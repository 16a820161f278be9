// Package media implements the image processing used by the ingestion
// pipeline: format normalization (HEIC and BMP to JPEG), dimension and
// orientation extraction with layered decoder fallbacks, and preview
// generation with a perceptual difference hash.
//
// Heavy lifting is delegated to libvips when InitVips has been called;
// every entry point degrades to pure-Go decoders when it has not.
package media
