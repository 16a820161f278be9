// Package startup handles application initialization, configuration
// loading, and formatted startup/shutdown logging.
//
// Configuration is read from environment variables with sensible
// defaults. LoadConfig validates directories, verifies write access to
// the data directory, and returns a Config consumed by main. The rest
// of the package is presentation: the startup banner, system
// information, route listings, and the structured shutdown log that
// makes container logs readable.
package startup
